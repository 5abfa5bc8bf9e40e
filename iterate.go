package zonalib

import (
	"runtime"
	"sync"

	"github.com/wgdzlh/zonalib/log"
	"github.com/wgdzlh/zonalib/utils"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// geometryMask burns one geometry onto a byte mask covering its bounding-box
// cell window. ok is false when the geometry misses the grid entirely.
func (g *ZonalToolbox) geometryMask(l *gridLayout, geo *Geometry, allTouched bool) (mask []byte, col0, row0, w, h int, ok bool, err error) {
	bounds, err := geo.Bounds()
	if err != nil {
		log.Error(g.logTag+"geometry bounds failed", zap.Error(err))
		return
	}
	col0, row0, w, h, ok = l.window(bounds)
	if !ok {
		return
	}
	ds, err := gdal.Create(gdal.Memory, "", 1, gdal.Byte, w, h)
	if err != nil {
		log.Error(g.logTag+"create mask band failed", zap.Error(err))
		return
	}
	defer ds.Close()
	if err = ds.SetGeoTransform(l.windowGt(col0, row0)); err != nil {
		return
	}
	opts := []gdal.RasterizeGeometryOption{gdal.Bands(0), gdal.Values(1)}
	if allTouched {
		opts = append(opts, gdal.AllTouched())
	}
	if err = ds.RasterizeGeometry(geo, opts...); err != nil {
		log.Error(g.logTag+"burn mask failed", zap.Error(err))
		return
	}
	mask = make([]byte, w*h)
	err = ds.Bands()[0].Read(0, 0, mask, w, h)
	return
}

// gatherMasked collects the cells selected by a binary window mask for one
// grid slice, with unit weights.
func gatherMasked(grid *RasterGrid, l *gridLayout, base int, mask []byte, col0, row0, w, h int, nodata *float64, z *zoneCells) {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if mask[r*w+c] == 0 {
				continue
			}
			v := grid.Values[l.cellOffset(base, row0+r, col0+c)]
			if isMissing(v, nodata) {
				z.missing++
				continue
			}
			z.add(v, 1)
		}
	}
}

// zonalIterate masks each geometry independently over its own bounding-box
// window, fanning geometries out over a bounded worker pool. Overlapping
// geometries each see the shared cells.
func (g *ZonalToolbox) zonalIterate(grid *RasterGrid, l *gridLayout, geos []*Geometry, stats []resolvedStat, a *assembler, nodata *float64, allTouched bool, nJobs int) error {
	if nJobs <= 0 {
		nJobs = runtime.NumCPU()
	}
	var (
		cl       = utils.NewConcLimiter(nJobs)
		errLock  sync.Mutex
		firstErr error
	)
	for gi := range geos {
		cl.Increase()
		go func(gi int) {
			defer cl.Decrease()
			if err := g.iterateOne(grid, l, geos[gi], gi, stats, a, nodata, allTouched); err != nil {
				errLock.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errLock.Unlock()
			}
		}(gi)
	}
	cl.Wait()
	return firstErr
}

func (g *ZonalToolbox) iterateOne(grid *RasterGrid, l *gridLayout, geo *Geometry, gi int, stats []resolvedStat, a *assembler, nodata *float64, allTouched bool) error {
	mask, col0, row0, w, h, ok, err := g.geometryMask(l, geo, allTouched)
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
