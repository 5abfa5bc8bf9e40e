package zonalib

import (
	"encoding/json"
	"math"

	"github.com/wgdzlh/zonalib/cover"
	"github.com/wgdzlh/zonalib/log"
	"github.com/wgdzlh/zonalib/utils"

	"go.uber.org/zap"
)

type geoJSONGeom struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// pixelRing holds one ring's vertices in full-grid pixel coordinates.
type pixelRing struct {
	xs, ys []float64
}

// pixelShape is one geometry decoded for coverage rasterization. Non-area
// geometries keep no rings and fall back to a binary all-touched mask.
type pixelShape struct {
	rings                  []pixelRing
	minX, minY, maxX, maxY float64
	bounded                bool
	area                   bool
}

func signedRingArea(r *pixelRing) (a float64) {
	n := len(r.xs)
	for i := 0; i < n; i++ {
		j := i + 1
		if j == n {
			j = 0
		}
		a += r.xs[i]*r.ys[j] - r.xs[j]*r.ys[i]
	}
	return a / 2
}

func reverseRing(r *pixelRing) {
	for i, j := 0, len(r.xs)-1; i < j; i, j = i+1, j-1 {
		r.xs[i], r.xs[j] = r.xs[j], r.xs[i]
		r.ys[i], r.ys[j] = r.ys[j], r.ys[i]
	}
}

func (s *pixelShape) expand(x, y float64) {
	if !s.bounded {
		s.minX, s.maxX, s.minY, s.maxY = x, x, y, y
		s.bounded = true
		return
	}
	if x < s.minX {
		s.minX = x
	}
	if x > s.maxX {
		s.maxX = x
	}
	if y < s.minY {
		s.minY = y
	}
	if y > s.maxY {
		s.maxY = y
	}
}

// addPolygon converts one GeoJSON polygon to pixel rings. The first ring is
// normalized to positive signed area and holes to negative, so holes
// subtract under the nonzero rule.
func (s *pixelShape) addPolygon(poly [][][]float64, l *gridLayout) {
	for ri, coords := range poly {
		r := pixelRing{
			xs: make([]float64, len(coords)),
			ys: make([]float64, len(coords)),
		}
		for i, pt := range coords {
			r.xs[i] = (pt[0] - l.gt[0]) / l.dx
			r.ys[i] = (pt[1] - l.gt[3]) / l.dy
			s.expand(r.xs[i], r.ys[i])
		}
		a := signedRingArea(&r)
		if (ri == 0) == (a < 0) {
			reverseRing(&r)
		}
		s.rings = append(s.rings, r)
	}
}

// decodeShape exports the geometry as GeoJSON and converts polygonal parts
// into pixel-space rings.
func (g *ZonalToolbox) decodeShape(geo *Geometry, l *gridLayout) (s *pixelShape, err error) {
	gj, err := geo.GeoJSON()
	if err != nil {
		log.Error(g.logTag+"geojson export failed", zap.Error(err))
		return
	}
	var gg geoJSONGeom
	if err = json.Unmarshal(utils.S2B(gj), &gg); err != nil {
		log.Error(g.logTag+"geojson decode failed", zap.Error(err))
		return
	}
	s = &pixelShape{}
	switch gg.Type {
	case "Polygon":
		var poly [][][]float64
		if err = json.Unmarshal(gg.Coordinates, &poly); err != nil {
			return
		}
		s.area = true
		s.addPolygon(poly, l)
	case "MultiPolygon":
		var mp [][][][]float64
		if err = json.Unmarshal(gg.Coordinates, &mp); err != nil {
			return
		}
		s.area = true
		for _, poly := range mp {
			s.addPolygon(poly, l)
		}
	default:
		// points and lines carry no area, handled with a binary mask
	}
	return
}

// window maps the shape's pixel bounding box onto a clamped cell window.
func (s *pixelShape) window(l *gridLayout) (col0, row0, w, h int, ok bool) {
	col0 = clampInt(int(math.Floor(s.minX)), 0, l.nx)
	col1 := clampInt(int(math.Ceil(s.maxX)), 0, l.nx)
	row0 = clampInt(int(math.Floor(s.minY)), 0, l.ny)
	row1 := clampInt(int(math.Ceil(s.maxY)), 0, l.ny)
	w, h = col1-col0, row1-row0
	ok = w > 0 && h > 0 && len(s.rings) > 0
	return
}

// addShiftedRings feeds the shape's rings to the rasterizer, translated so
// that the window origin (col0, row0) becomes (0, 0).
func (s *pixelShape) addShiftedRings(r *cover.Rasterizer, col0, row0 int) {
	ox, oy := float64(col0), float64(row0)
	xs := make([]float64, 0, 16)
	ys := make([]float64, 0, 16)
	for _, ring := range s.rings {
		xs, ys = xs[:0], ys[:0]
		for i := range ring.xs {
			xs = append(xs, ring.xs[i]-ox)
			ys = append(ys, ring.ys[i]-oy)
		}
		r.AddRing(xs, ys)
	}
}

// gatherWeighted collects cells selected with fractional coverage weights
// for one grid slice.
func gatherWeighted(grid *RasterGrid, l *gridLayout, base int, cov []float64, col0, row0, w, h int, nodata *float64, z *zoneCells) {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			wt := cov[r*w+c]
			if wt <= 0 {
				continue
			}
			v := grid.Values[l.cellOffset(base, row0+r, col0+c)]
			if isMissing(v, nodata) {
				z.missing++
				continue
			}
			z.add(v, wt)
		}
	}
}

// zonalExact computes fractional per-cell coverage weights for every
// polygonal geometry. Non-area geometries fall back to an all-touched binary
// mask with unit weights.
func (g *ZonalToolbox) zonalExact(grid *RasterGrid, l *gridLayout, geos []*Geometry, stats []resolvedStat, a *assembler, nodata *float64, strategy string) (err error) {
	shapes := make([]*pixelShape, len(geos))
	for gi, geo := range geos {
		if shapes[gi], err = g.decodeShape(geo, l); err != nil {
			return
		}
	}
	if strategy == StrategyRasterSequential {
		return g.exactRasterSeq(grid, l, geos, shapes, stats, a, nodata)
	}
	return g.exactFeatureSeq(grid, l, geos, shapes, stats, a, nodata)
}

// exactFeatureSeq walks geometries in the outer loop, rendering each one's
// coverage over its own bounding-box window.
func (g *ZonalToolbox) exactFeatureSeq(grid *RasterGrid, l *gridLayout, geos []*Geometry, shapes []*pixelShape, stats []resolvedStat, a *assembler, nodata *float64) (err error) {
	rast := cover.NewRasterizer(1, 1)
	z := &zoneCells{}
	for gi, s := range shapes {
		if !s.area {
			if err = g.maskedFallback(grid, l, geos[gi], gi, stats, a, nodata); err != nil {
				return
			}
			continue
		}
		col0, row0, w, h, ok := s.window(l)
		var cov []float64
		if ok {
			rast.Reset(w, h)
			s.addShiftedRings(rast, col0, row0)
			cov = rast.Coverage()
		}
		for k := 0; k < l.nSlices; k++ {
			z.reset()
			if ok {
				gatherWeighted(grid, l, l.sliceBase(k), cov, col0, row0, w, h, nodata, z)
			}
			a.reduce(gi, k, stats, z)
		}
	}
	return
}

// exactRasterSeq walks the raster in row blocks in the outer loop,
// accumulating every geometry's covered cells across blocks before reducing.
// Trades repeated geometry setup for bounded coverage buffers.
func (g *ZonalToolbox) exactRasterSeq(grid *RasterGrid, l *gridLayout, geos []*Geometry, shapes []*pixelShape, stats []resolvedStat, a *assembler, nodata *float64) (err error) {
	acc := make([]zoneCells, len(geos)*l.nSlices)
	rast := cover.NewRasterizer(1, 1)
	for r0 := 0; r0 < l.ny; r0 += RasterBlockRows {
		r1 := r0 + RasterBlockRows
		if r1 > l.ny {
			r1 = l.ny
		}
		for gi, s := range shapes {
			if !s.area {
				continue
			}
			col0, row0, w, h, ok := s.window(l)
			if !ok || row0 >= r1 || row0+h <= r0 {
				continue
			}
			b0 := row0
			if b0 < r0 {
				b0 = r0
			}
			b1 := row0 + h
			if b1 > r1 {
				b1 = r1
			}
			rast.Reset(w, b1-b0)
			s.addShiftedRings(rast, col0, b0)
			cov := rast.Coverage()
			for k := 0; k < l.nSlices; k++ {
				gatherWeighted(grid, l, l.sliceBase(k), cov, col0, b0, w, b1-b0, nodata, &acc[gi*l.nSlices+k])
			}
		}
	}
	for gi, s := range shapes {
		if !s.area {
			if err = g.maskedFallback(grid, l, geos[gi], gi, stats, a, nodata); err != nil {
				return
			}
			continue
		}
		for k := 0; k < l.nSlices; k++ {
			a.reduce(gi, k, stats, &acc[gi*l.nSlices+k])
		}
	}
	return
}

// maskedFallback reduces one non-polygonal geometry from an all-touched
// binary mask.
func (g *ZonalToolbox) maskedFallback(grid *RasterGrid, l *gridLayout, geo *Geometry, gi int, stats []resolvedStat, a *assembler, nodata *float64) error {
	mask, col0, row0, w, h, ok, err := g.geometryMask(l, geo, true)
	if err != nil {
		return err
	}
	z := &zoneCells{}
	for k := 0; k < l.nSlices; k++ {
		z.reset()
		if ok {
			gatherMasked(grid, l, l.sliceBase(k), mask, col0, row0, w, h, nodata, z)
		}
		a.reduce(gi, k, stats, z)
	}
	return nil
}
