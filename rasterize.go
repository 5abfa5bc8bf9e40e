package zonalib

import (
	"github.com/wgdzlh/zonalib/log"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// zonalRasterize burns every geometry onto one grid-shaped Int32 label band
// and gathers cells by label. Overlapping geometries keep the label burned
// last, so each cell counts toward a single zone.
func (g *ZonalToolbox) zonalRasterize(grid *RasterGrid, l *gridLayout, geos []*Geometry, stats []resolvedStat, a *assembler, nodata *float64, allTouched bool) (err error) {
	ds, err := gdal.Create(gdal.Memory, "", 1, gdal.Int32, l.nx, l.ny)
	if err != nil {
		log.Error(g.logTag+"create label band failed", zap.Error(err))
		return
	}
	defer ds.Close()
	if err = ds.SetGeoTransform(l.gt); err != nil {
		return
	}
	opts := []gdal.RasterizeGeometryOption{gdal.Bands(0)}
	if allTouched {
		opts = append(opts, gdal.AllTouched())
	}
	for i, geo := range geos {
		burn := append(append([]gdal.RasterizeGeometryOption{}, opts...), gdal.Values(float64(i+1)))
		if err = ds.RasterizeGeometry(geo, burn...); err != nil {
			log.Error(g.logTag+"burn geometry failed", zap.Int("idx", i), zap.Error(err))
			return
		}
	}
	labels := make([]int32, l.nx*l.ny)
	if err = ds.Bands()[0].Read(0, 0, labels, l.nx, l.ny); err != nil {
		log.Error(g.logTag+"read label band failed", zap.Error(err))
		return
	}

	// per-zone cell offsets relative to a slice base, reused across slices
	cellOffs := make([][]int, len(geos))
	p := 0
	for row := 0; row < l.ny; row++ {
		for col := 0; col < l.nx; col++ {
			if lb := labels[p]; lb > 0 {
				gi := int(lb) - 1
				cellOffs[gi] = append(cellOffs[gi], row*l.sy+col*l.sx)
			}
			p++
		}
	}

	z := &zoneCells{}
	for k := 0; k < l.nSlices; k++ {
		base := l.sliceBase(k)
		for gi := range geos {
			z.reset()
			for _, off := range cellOffs[gi] {
				v := grid.Values[base+off]
				if isMissing(v, nodata) {
					z.missing++
					continue
				}
				z.add(v, 1)
			}
			a.reduce(gi, k, stats, z)
		}
	}
	return
}
