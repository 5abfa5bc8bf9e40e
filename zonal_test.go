package zonalib

import (
	"errors"
	"math"
	"testing"
)

const (
	// axis-aligned rectangle covering 3x4 cells of the test grid
	rectWkt = "POLYGON((21 22,24 22,24 26,21 26,21 22))"
	// right trapezoid with area 16.5
	trapWkt = "POLYGON((26 22,29 22,29 29,26 26,26 22))"
)

func seqCoords(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// onesGrid builds a time/y/x grid of unit cells spanning [20,30)x[20,30),
// filled with ones.
func onesGrid(nt int) *RasterGrid {
	values := make([]float64, nt*10*10)
	for i := range values {
		values[i] = 1
	}
	return &RasterGrid{
		Axes: []Axis{
			{Name: "time", Coords: seqCoords(0, 1, nt)},
			{Name: "y", Coords: seqCoords(20.5, 1, 10)},
			{Name: "x", Coords: seqCoords(20.5, 1, 10)},
		},
		Values: values,
		SRID:   4326,
	}
}

// planeGrid is onesGrid without the time axis.
func planeGrid() *RasterGrid {
	g := onesGrid(1)
	g.Axes = g.Axes[1:]
	return g
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestZonalRasterizeRectangle(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := onesGrid(5)
	res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{
		Stats: []StatSpec{Stat(StatSum), Stat(StatCount), Stat(StatMean)},
	})
	if err != nil {
		t.Fatal(err)
	}
	shape := res.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != 5 || shape[2] != 3 {
		t.Fatal("unexpected result shape", shape)
	}
	if res.Axes[0].Name != GeometryAxisName || res.Axes[1].Name != "time" || res.Axes[2].Name != StatsAxisName {
		t.Fatal("unexpected axis order")
	}
	for ti := 0; ti < 5; ti++ {
		if v := res.At(0, ti, 0); !almost(v, 12) {
			t.Fatal("sum at time", ti, "=", v)
		}
		if v := res.At(0, ti, 1); !almost(v, 12) {
			t.Fatal("count at time", ti, "=", v)
		}
		if v := res.At(0, ti, 2); !almost(v, 1) {
			t.Fatal("mean at time", ti, "=", v)
		}
	}
}

func TestZonalSingleStatHasNoStatsAxis(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ZonalStats(onesGrid(3), gc, "x", "y", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Axes) != 2 {
		t.Fatal("expected geometry and time axes only, got", len(res.Axes))
	}
	for ti := 0; ti < 3; ti++ {
		if v := res.At(0, ti); !almost(v, 1) {
			t.Fatal("default mean at time", ti, "=", v)
		}
	}
	if v := res.Mean(); !almost(v, 1) {
		t.Fatal("result mean =", v)
	}
}

func TestZonalIterateMatchesRasterize(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt, trapWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := onesGrid(4)
	opts := func(method string, nJobs int) *ZonalOptions {
		return &ZonalOptions{
			Stats:  []StatSpec{Stat(StatSum), Stat(StatCount)},
			Method: method,
			NJobs:  nJobs,
		}
	}
	base, err := g.ZonalStats(grid, gc, "x", "y", opts(MethodRasterize, 0))
	if err != nil {
		t.Fatal(err)
	}
	for _, nJobs := range []int{1, 4} {
		res, err := g.ZonalStats(grid, gc, "x", "y", opts(MethodIterate, nJobs))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Values) != len(base.Values) {
			t.Fatal("value count mismatch")
		}
		for i := range res.Values {
			if !almost(res.Values[i], base.Values[i]) {
				t.Fatal("iterate nJobs", nJobs, "diverges at", i, res.Values[i], base.Values[i])
			}
		}
	}
}

func TestZonalExactTrapezoid(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{trapWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := onesGrid(5)
	for _, strategy := range []string{StrategyFeatureSequential, StrategyRasterSequential} {
		res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{
			Stats:    []StatSpec{Stat(StatSum), Stat(StatMean), Stat(StatCoverage)},
			Method:   MethodExactExtract,
			Strategy: strategy,
		})
		if err != nil {
			t.Fatal(strategy, err)
		}
		for ti := 0; ti < 5; ti++ {
			if v := res.At(0, ti, 0); !almost(v, 16.5) {
				t.Fatal(strategy, "weighted sum at time", ti, "=", v)
			}
			if v := res.At(0, ti, 1); !almost(v, 1) {
				t.Fatal(strategy, "weighted mean at time", ti, "=", v)
			}
			if v := res.At(0, ti, 2); !almost(v, 16.5) {
				t.Fatal(strategy, "coverage at time", ti, "=", v)
			}
		}
	}
}

func TestZonalExactRectangleIsExactCellCount(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ZonalStats(planeGrid(), gc, "x", "y", &ZonalOptions{
		Stats:  []StatSpec{Stat(StatSum)},
		Method: MethodExactExtract,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 12) {
		t.Fatal("cell-aligned rectangle sum =", v)
	}
}

func TestZonalAllTouched(t *testing.T) {
	g := NewZonalToolbox()
	// straddles four cells without containing any cell center
	gc, err := g.CollectionFromWKT([]string{"POLYGON((21.6 22.6,22.4 22.6,22.4 23.4,21.6 23.4,21.6 22.6))"}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatCount)}})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !math.IsNaN(v) {
		t.Fatal("center rule should select no cells, count =", v)
	}
	res, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatCount)}, AllTouched: true})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 4) {
		t.Fatal("all-touched count =", v)
	}
}

func TestZonalOutOfBoundsGeometryIsNaN(t *testing.T) {
	g := NewZonalToolbox()
	// second geometry lies fully outside the grid extent
	farWkt := "POLYGON((40 40,45 40,45 45,40 45,40 40))"
	gc, err := g.CollectionFromWKT([]string{rectWkt, farWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	for _, method := range []string{MethodRasterize, MethodIterate, MethodExactExtract} {
		res, err := g.ZonalStats(planeGrid(), gc, "x", "y", &ZonalOptions{
			Stats:  []StatSpec{Stat(StatSum)},
			Method: method,
		})
		if err != nil {
			t.Fatal(method, err)
		}
		if v := res.At(0); !almost(v, 12) {
			t.Fatal(method, "in-bounds sum =", v)
		}
		if v := res.At(1); !math.IsNaN(v) {
			t.Fatal(method, "out-of-bounds sum =", v)
		}
	}
}

func TestZonalAllTouchedMonotonic(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	for _, method := range []string{MethodRasterize, MethodIterate} {
		var counts [2]float64
		for i, at := range []bool{false, true} {
			res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{
				Stats:      []StatSpec{Stat(StatCount)},
				Method:     method,
				AllTouched: at,
			})
			if err != nil {
				t.Fatal(method, err)
			}
			counts[i] = res.At(0)
		}
		if !almost(counts[0], 12) {
			t.Fatal(method, "center-rule count =", counts[0])
		}
		if counts[1] < counts[0] {
			t.Fatal(method, "all-touched shrank the zone:", counts[1], "<", counts[0])
		}
	}
}

func TestZonalExactLineFallback(t *testing.T) {
	g := NewZonalToolbox()
	// horizontal line crossing three cell interiors of one row
	gc, err := g.CollectionFromWKT([]string{"LINESTRING(21.2 22.5,23.8 22.5)"}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	var counts [2]float64
	for i, at := range []bool{false, true} {
		res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{
			Stats:      []StatSpec{Stat(StatCount)},
			Method:     MethodExactExtract,
			AllTouched: at,
		})
		if err != nil {
			t.Fatal(err)
		}
		counts[i] = res.At(0)
	}
	// lines always select every touched cell with unit weights
	if !almost(counts[0], 3) || counts[1] < counts[0] {
		t.Fatal("line fallback counts:", counts)
	}
}

func TestZonalNodataMasking(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	nd := -9999.0
	grid.Nodata = &nd
	// two cells inside the rectangle: rows 2 and 3, col 1
	grid.Values[2*10+1] = nd
	grid.Values[3*10+1] = nd
	res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{
		Stats: []StatSpec{Stat(StatSum), Stat(StatCount), Stat(StatNodataCount)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0, 0); !almost(v, 10) {
		t.Fatal("sum with nodata =", v)
	}
	if v := res.At(0, 1); !almost(v, 10) {
		t.Fatal("count with nodata =", v)
	}
	if v := res.At(0, 2); !almost(v, 2) {
		t.Fatal("nodata_count =", v)
	}
}

func TestZonalNaNCellsAreAlwaysMasked(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	grid.Values[2*10+1] = math.NaN()
	res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatSum)}})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 11) {
		t.Fatal("sum skipping NaN =", v)
	}
}

func TestZonalQuantileSequenceAxis(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ZonalStats(onesGrid(2), gc, "x", "y", &ZonalOptions{
		Stats: []StatSpec{
			Stat(StatMean),
			StatParams(StatQuantile, map[string]interface{}{"q": []float64{0.25, 0.75}}),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	shape := res.Shape()
	if len(shape) != 4 || shape[3] != 2 {
		t.Fatal("unexpected shape", shape)
	}
	if res.Axes[3].Name != StatQuantile {
		t.Fatal("missing quantile axis")
	}
	// scalar mean broadcast along the quantile axis
	if res.At(0, 0, 0, 0) != res.At(0, 0, 0, 1) {
		t.Fatal("mean not broadcast")
	}
	for e := 0; e < 2; e++ {
		if v := res.At(0, 0, 1, e); !almost(v, 1) {
			t.Fatal("quantile of ones =", v)
		}
	}
}

func TestZonalInlineQuantileIsScalar(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ZonalStats(planeGrid(), gc, "x", "y", &ZonalOptions{
		Stats: []StatSpec{Stat("quantile(q=0.5)")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Axes) != 1 {
		t.Fatal("scalar quantile grew an axis", res.Shape())
	}
	if v := res.At(0); !almost(v, 1) {
		t.Fatal("median of ones =", v)
	}
}

func TestZonalCustomReduce(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.ZonalStats(planeGrid(), gc, "x", "y", &ZonalOptions{
		Stats: []StatSpec{StatFunc("range", func(vals []float64) float64 {
			lo, hi := vals[0], vals[0]
			for _, v := range vals[1:] {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			return hi - lo
		})},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 0) {
		t.Fatal("range of ones =", v)
	}
}

func TestZonalGeometryIndex(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt, trapWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	gc.Index = []string{"plot_a", "plot_b"}
	gc.IndexName = "plot"
	res, err := g.ZonalStats(planeGrid(), gc, "x", "y", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IndexName != "plot" || len(res.Index) != 2 || res.Index[1] != "plot_b" {
		t.Fatal("index not carried over")
	}
	if res.Axes[0].Name != "plot" || res.Axes[0].Labels[0] != "plot_a" {
		t.Fatal("geometry axis not named and labeled by the index")
	}
}

func TestZonalValidation(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := onesGrid(1)

	_, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Method: "banana"})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatal("method:", err)
	}
	_, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Method: MethodExactExtract, Strategy: "banana"})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatal("strategy:", err)
	}
	_, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat("banana")}})
	if !errors.Is(err, ErrInvalidAggregation) {
		t.Fatal("stat:", err)
	}
	_, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatQuantile)}})
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("quantile without q:", err)
	}
	_, err = g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatCoverage)}})
	if !errors.Is(err, ErrInvalidAggregation) {
		t.Fatal("coverage outside exactextract:", err)
	}
	_, err = g.ZonalStats(grid, gc, "lon", "y", nil)
	if !errors.Is(err, ErrDimNotFound) {
		t.Fatal("dim:", err)
	}
	_, err = g.ZonalStats(grid, &GeometryCollection{SRID: 4326}, "x", "y", nil)
	if !errors.Is(err, ErrEmptyCollection) {
		t.Fatal("empty:", err)
	}
	noCrs := &GeometryCollection{Geoms: gc.Geoms}
	_, err = g.ZonalStats(grid, noCrs, "x", "y", &ZonalOptions{Method: MethodExactExtract})
	if !errors.Is(err, ErrMissingCRS) {
		t.Fatal("missing crs:", err)
	}
}

func TestZonalDescendingYAxis(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	grid := planeGrid()
	grid.Axes[0].Coords = seqCoords(29.5, -1, 10)
	res, err := g.ZonalStats(grid, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatSum)}})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 12) {
		t.Fatal("sum on descending y =", v)
	}
}

func TestZonalStatsDataset(t *testing.T) {
	g := NewZonalToolbox()
	gc, err := g.CollectionFromWKT([]string{rectWkt}, 4326)
	if err != nil {
		t.Fatal(err)
	}
	ones := planeGrid()
	twos := planeGrid()
	for i := range twos.Values {
		twos.Values[i] = 2
	}
	ds := &GridDataset{
		Names: []string{"ndvi", "lst"},
		Grids: map[string]*RasterGrid{"ndvi": ones, "lst": twos},
	}
	out, err := g.ZonalStatsDataset(ds, gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatSum)}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Names) != 2 || out.Names[0] != "ndvi" {
		t.Fatal("dataset order lost")
	}
	if v := out.Results["ndvi"].At(0); !almost(v, 12) {
		t.Fatal("ndvi sum =", v)
	}
	if v := out.Results["lst"].At(0); !almost(v, 24) {
		t.Fatal("lst sum =", v)
	}
}

func TestZonalReprojectsGeometries(t *testing.T) {
	g := NewZonalToolbox()
	// rectangle given in web mercator, grid in lon/lat
	wkb4326, err := g.WktToWkb(rectWkt, 4326)
	if err != nil {
		t.Fatal(err)
	}
	wkb3857, err := g.TransformWkb(wkb4326, 4326, 3857)
	if err != nil {
		t.Fatal(err)
	}
	gc := &GeometryCollection{Geoms: []GdalGeo{wkb3857}, SRID: 3857}
	res, err := g.ZonalStats(planeGrid(), gc, "x", "y", &ZonalOptions{Stats: []StatSpec{Stat(StatCount)}})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.At(0); !almost(v, 12) {
		t.Fatal("count after reprojection =", v)
	}
}
