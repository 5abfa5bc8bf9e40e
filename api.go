package zonalib

// GdalGeo is a WKB-encoded vector geometry.
type GdalGeo = []byte

// ReduceFunc reduces a 1-D slice of valid (non-missing) cell values to a
// single statistic. Used for caller-supplied aggregations.
type ReduceFunc func(values []float64) float64

// Axis is one named dimension of a grid or result, carrying either a numeric
// coordinate vector or string labels (statistics axis).
type Axis struct {
	Name   string
	Coords []float64
	Labels []string
}

func (a *Axis) Len() int {
	if a.Labels != nil {
		return len(a.Labels)
	}
	return len(a.Coords)
}

// RasterGrid is an N-dimensional labeled numeric array stored row-major in
// axis order. Two of its axes are designated spatial per call; their
// coordinate vectors must be monotonic and near-evenly spaced. SRID 0 means
// the grid carries no coordinate reference system.
type RasterGrid struct {
	Axes   []Axis
	Values []float64
	Nodata *float64
	SRID   int
}

// GridDataset is an ordered collection of named grids sharing spatial and
// extra axes.
type GridDataset struct {
	Names []string
	Grids map[string]*RasterGrid
}

// GeometryCollection is an ordered sequence of WKB geometries sharing one
// SRID, with optional per-geometry row labels. SRID 0 means undefined CRS.
type GeometryCollection struct {
	Geoms     []GdalGeo
	SRID      int
	Index     []string
	IndexName string
}

// StatSpec requests one statistic: a built-in by name (optionally
// parameterized, either inline as "quantile(q=0.2)" or via Params), or a
// caller-supplied reduction. Construct with Stat, StatParams or StatFunc;
// a zero value fails validation.
type StatSpec struct {
	Name   string
	Params map[string]interface{}
	Fn     ReduceFunc
	Label  string
}

func Stat(name string) StatSpec {
	return StatSpec{Name: name}
}

func StatParams(name string, params map[string]interface{}) StatSpec {
	return StatSpec{Name: name, Params: params}
}

func StatFunc(label string, fn ReduceFunc) StatSpec {
	return StatSpec{Label: label, Fn: fn}
}

// ZonalOptions controls one zonal statistics call. Zero value means:
// stats=mean, method=rasterize, all cores, grid nodata only, no index.
type ZonalOptions struct {
	Stats      []StatSpec
	Method     string
	Strategy   string // exactextract only
	AllTouched bool
	NJobs      int // <=0 means all available workers
	Nodata     *float64
	Index      bool
}

// ZonalResult is the labeled output array. Axis order is: geometry, the
// grid's extra axes in original order, the statistics axis (only when more
// than one statistic was requested), and a secondary statistic axis (e.g.
// quantile levels) last. Missing values are NaN.
type ZonalResult struct {
	Axes      []Axis
	Values    []float64
	Geoms     []GdalGeo
	SRID      int
	Index     []string
	IndexName string
}

// ZonalDataset holds per-named-grid results of a dataset call.
type ZonalDataset struct {
	Names   []string
	Results map[string]*ZonalResult
}
