package zonalib

import (
	"fmt"
	"math"
)

// Shape returns the grid's axis lengths in storage order.
func (g *RasterGrid) Shape() []int {
	shape := make([]int, len(g.Axes))
	for i := range g.Axes {
		shape[i] = g.Axes[i].Len()
	}
	return shape
}

// Axis returns the named axis, or nil.
func (g *RasterGrid) Axis(name string) *Axis {
	for i := range g.Axes {
		if g.Axes[i].Name == name {
			return &g.Axes[i]
		}
	}
	return nil
}

func (g *RasterGrid) axisIndex(name string) int {
	for i := range g.Axes {
		if g.Axes[i].Name == name {
			return i
		}
	}
	return -1
}

// strides returns per-axis value strides for the row-major layout.
func (g *RasterGrid) strides() []int {
	n := len(g.Axes)
	strides := make([]int, n)
	s := 1
	for i := n - 1; i >= 0; i-- {
		strides[i] = s
		s *= g.Axes[i].Len()
	}
	return strides
}

// gridLayout is the resolved spatial/extra decomposition of a grid for one
// call: pixel sizes, GDAL-order geotransform, value strides of the spatial
// axes and of every extra axis in original order.
type gridLayout struct {
	xi, yi int // axis positions of the x and y dims
	nx, ny int
	dx, dy float64
	gt     [6]float64
	sx, sy int // value strides of the x and y dims

	extras       []int // axis positions of extra dims, original order
	extraShape   []int
	extraStrides []int
	nSlices      int // product of extraShape, at least 1
}

// axisStep derives the pixel step of a spatial coordinate vector, verifying
// monotonic near-even spacing.
func axisStep(coords []float64) (float64, error) {
	if len(coords) < 2 {
		// single-cell axis, step is arbitrary
		return 1, nil
	}
	step := (coords[len(coords)-1] - coords[0]) / float64(len(coords)-1)
	if step == 0 {
		return 0, ErrBadSpatialAxis
	}
	tol := math.Abs(step) * SpacingTolerance
	for i := 1; i < len(coords); i++ {
		if math.Abs(coords[i]-coords[i-1]-step) > tol {
			return 0, ErrBadSpatialAxis
		}
	}
	return step, nil
}

// layout resolves the two spatial dims and derives the geotransform. The
// coordinate vectors hold cell centers, so the grid origin sits half a pixel
// out from the first coordinate.
func (g *RasterGrid) layout(xDim, yDim string) (*gridLayout, error) {
	size := 1
	for _, n := range g.Shape() {
		size *= n
	}
	if size != len(g.Values) {
		return nil, fmt.Errorf("%w: %d axis cells vs %d values", ErrAxisMismatch, size, len(g.Values))
	}
	l := &gridLayout{
		xi: g.axisIndex(xDim),
		yi: g.axisIndex(yDim),
	}
	if l.xi < 0 {
		return nil, fmt.Errorf("%w: %q", ErrDimNotFound, xDim)
	}
	if l.yi < 0 {
		return nil, fmt.Errorf("%w: %q", ErrDimNotFound, yDim)
	}
	xAxis, yAxis := &g.Axes[l.xi], &g.Axes[l.yi]
	if xAxis.Coords == nil || yAxis.Coords == nil {
		return nil, fmt.Errorf("%w: spatial dims need numeric coords", ErrBadSpatialAxis)
	}
	var err error
	if l.dx, err = axisStep(xAxis.Coords); err != nil {
		return nil, fmt.Errorf("%w: %q", err, xDim)
	}
	if l.dy, err = axisStep(yAxis.Coords); err != nil {
		return nil, fmt.Errorf("%w: %q", err, yDim)
	}
	l.nx, l.ny = len(xAxis.Coords), len(yAxis.Coords)
	l.gt = [6]float64{xAxis.Coords[0] - l.dx/2, l.dx, 0, yAxis.Coords[0] - l.dy/2, 0, l.dy}

	strides := g.strides()
	l.sx, l.sy = strides[l.xi], strides[l.yi]
	l.nSlices = 1
	for i := range g.Axes {
		if i == l.xi || i == l.yi {
			continue
		}
		l.extras = append(l.extras, i)
		l.extraShape = append(l.extraShape, g.Axes[i].Len())
		l.extraStrides = append(l.extraStrides, strides[i])
		l.nSlices *= g.Axes[i].Len()
	}
	return l, nil
}

// sliceBase returns the value offset of the k-th extra-dimension combination.
func (l *gridLayout) sliceBase(k int) int {
	base := 0
	for i := len(l.extraShape) - 1; i >= 0; i-- {
		base += (k % l.extraShape[i]) * l.extraStrides[i]
		k /= l.extraShape[i]
	}
	return base
}

// cellOffset returns the value offset of spatial cell (row, col) within the
// slice starting at base.
func (l *gridLayout) cellOffset(base, row, col int) int {
	return base + row*l.sy + col*l.sx
}

// window maps a world-coordinate envelope (minx,miny,maxx,maxy) onto the cell
// window it touches, clamped to the grid. ok is false when the envelope does
// not intersect the grid extent.
func (l *gridLayout) window(bounds [4]float64) (col0, row0, w, h int, ok bool) {
	cxa := (bounds[0] - l.gt[0]) / l.dx
	cxb := (bounds[2] - l.gt[0]) / l.dx
	if cxa > cxb {
		cxa, cxb = cxb, cxa
	}
	rya := (bounds[1] - l.gt[3]) / l.dy
	ryb := (bounds[3] - l.gt[3]) / l.dy
	if rya > ryb {
		rya, ryb = ryb, rya
	}
	col0 = clampInt(int(math.Floor(cxa)), 0, l.nx)
	col1 := clampInt(int(math.Ceil(cxb)), 0, l.nx)
	row0 = clampInt(int(math.Floor(rya)), 0, l.ny)
	row1 := clampInt(int(math.Ceil(ryb)), 0, l.ny)
	w, h = col1-col0, row1-row0
	ok = w > 0 && h > 0
	return
}

// windowGt returns the geotransform of a cell window of the grid.
func (l *gridLayout) windowGt(col0, row0 int) [6]float64 {
	return [6]float64{
		l.gt[0] + float64(col0)*l.dx, l.dx, 0,
		l.gt[3] + float64(row0)*l.dy, 0, l.dy,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isMissing(v float64, nodata *float64) bool {
	return math.IsNaN(v) || (nodata != nil && v == *nodata)
}
