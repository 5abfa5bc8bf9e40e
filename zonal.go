package zonalib

import (
	"fmt"
	"time"

	"github.com/wgdzlh/zonalib/log"

	"go.uber.org/zap"
)

// ZonalStats aggregates grid cells per geometry zone. xDim and yDim name the
// grid's two spatial axes; every other axis is carried through to the
// result. A nil opts requests the mean with the rasterize method.
func (g *ZonalToolbox) ZonalStats(grid *RasterGrid, geoms *GeometryCollection, xDim, yDim string, opts *ZonalOptions) (res *ZonalResult, err error) {
	if opts == nil {
		opts = &ZonalOptions{}
	}
	method := opts.Method
	if method == "" {
		method = MethodRasterize
	}
	switch method {
	case MethodRasterize, MethodIterate, MethodExactExtract:
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
		return
	}
	strategy := opts.Strategy
	if method == MethodExactExtract {
		if strategy == "" {
			strategy = StrategyFeatureSequential
		}
		switch strategy {
		case StrategyFeatureSequential, StrategyRasterSequential:
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
			return
		}
		if geoms.SRID == 0 {
			err = ErrMissingCRS
			return
		}
	}
	stats, err := resolveStats(opts.Stats, method == MethodExactExtract)
	if err != nil {
		return
	}
	l, err := grid.layout(xDim, yDim)
	if err != nil {
		return
	}
	nodata := grid.Nodata
	if opts.Nodata != nil {
		nodata = opts.Nodata
	}
	geos, err := g.openGeometries(geoms, grid.SRID)
	if err != nil {
		return
	}
	defer closeGeometries(geos)

	a := newAssembler(len(geos), l.nSlices, stats)
	start := time.Now()
	switch method {
	case MethodRasterize:
		err = g.zonalRasterize(grid, l, geos, stats, a, nodata, opts.AllTouched)
	case MethodIterate:
		err = g.zonalIterate(grid, l, geos, stats, a, nodata, opts.AllTouched, opts.NJobs)
	case MethodExactExtract:
		err = g.zonalExact(grid, l, geos, stats, a, nodata, strategy)
	}
	if err != nil {
		return
	}
	res = buildResult(grid, l, geoms, stats, a, opts.Index)
	log.Info(g.logTag+"zonal stats done", zap.String("method", method), zap.Int("geoms", len(geos)),
		zap.Int("slices", l.nSlices), zap.Duration("cost", time.Since(start)))
	return
}

// ZonalStatsDataset runs ZonalStats over every named grid of the dataset,
// keeping the dataset's grid order.
func (g *ZonalToolbox) ZonalStatsDataset(ds *GridDataset, geoms *GeometryCollection, xDim, yDim string, opts *ZonalOptions) (out *ZonalDataset, err error) {
	out = &ZonalDataset{Results: map[string]*ZonalResult{}}
	for _, name := range ds.Names {
		grid := ds.Grids[name]
		if grid == nil {
			continue
		}
		var res *ZonalResult
		if res, err = g.ZonalStats(grid, geoms, xDim, yDim, opts); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			out = nil
			return
		}
		out.Names = append(out.Names, name)
		out.Results[name] = res
	}
	return
}
