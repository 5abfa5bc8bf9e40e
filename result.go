package zonalib

import (
	"math"
	"strconv"
)

// assembler collects reduced statistics into the flat result buffer. The
// layout is row-major over geometry, extra-dimension combination, statistic,
// secondary element; length-1 trailing parts collapse when axes are built.
type assembler struct {
	nGeom, nSlices, nStats, secLen int
	values                         []float64
}

func newAssembler(nGeom, nSlices int, stats []resolvedStat) *assembler {
	secLen := 1
	for i := range stats {
		if stats[i].axis != nil {
			secLen = stats[i].outLen
		}
	}
	a := &assembler{
		nGeom:   nGeom,
		nSlices: nSlices,
		nStats:  len(stats),
		secLen:  secLen,
		values:  make([]float64, nGeom*nSlices*len(stats)*secLen),
	}
	for i := range a.values {
		a.values[i] = math.NaN()
	}
	return a
}

// put stores one statistic's output; scalar outputs broadcast along the
// secondary axis.
func (a *assembler) put(gi, k, si int, vals []float64) {
	base := ((gi*a.nSlices+k)*a.nStats + si) * a.secLen
	if len(vals) == a.secLen {
		copy(a.values[base:base+a.secLen], vals)
		return
	}
	for e := 0; e < a.secLen; e++ {
		a.values[base+e] = vals[0]
	}
}

// reduce runs every statistic over one zone's cells and stores the outputs.
// Distinct geometries write disjoint ranges, so per-geometry reduction may
// run concurrently.
func (a *assembler) reduce(gi, k int, stats []resolvedStat, z *zoneCells) {
	for si := range stats {
		a.put(gi, k, si, stats[si].fn(z))
	}
}

// buildResult shapes the assembled buffer into a labeled result: geometry
// axis first, the grid's extra axes in their original order, the statistics
// axis when more than one was requested, and any secondary axis last.
func buildResult(grid *RasterGrid, l *gridLayout, gc *GeometryCollection, stats []resolvedStat, a *assembler, withIndex bool) *ZonalResult {
	res := &ZonalResult{
		Values:    a.values,
		Geoms:     gc.Geoms,
		SRID:      gc.SRID,
		Index:     gc.Index,
		IndexName: gc.IndexName,
	}
	if withIndex && len(res.Index) == 0 {
		res.Index = make([]string, len(gc.Geoms))
		for i := range res.Index {
			res.Index[i] = strconv.Itoa(i)
		}
	}
	gAxis := Axis{Name: GeometryAxisName}
	if gc.IndexName != "" {
		gAxis.Name = gc.IndexName
	}
	if len(res.Index) == len(gc.Geoms) {
		gAxis.Labels = res.Index
	} else {
		gAxis.Coords = make([]float64, len(gc.Geoms))
		for i := range gAxis.Coords {
			gAxis.Coords[i] = float64(i)
		}
	}
	res.Axes = append(res.Axes, gAxis)
	for _, i := range l.extras {
		res.Axes = append(res.Axes, grid.Axes[i])
	}
	if len(stats) > 1 {
		labels := make([]string, len(stats))
		for i := range stats {
			labels[i] = stats[i].label
		}
		res.Axes = append(res.Axes, Axis{Name: StatsAxisName, Labels: labels})
	}
	for i := range stats {
		if stats[i].axis != nil {
			res.Axes = append(res.Axes, *stats[i].axis)
			break
		}
	}
	return res
}

// Shape returns the result's axis lengths in storage order.
func (r *ZonalResult) Shape() []int {
	shape := make([]int, len(r.Axes))
	for i := range r.Axes {
		shape[i] = r.Axes[i].Len()
	}
	return shape
}

// Axis returns the named result axis, or nil.
func (r *ZonalResult) Axis(name string) *Axis {
	for i := range r.Axes {
		if r.Axes[i].Name == name {
			return &r.Axes[i]
		}
	}
	return nil
}

// Mean averages the result's non-missing values.
func (r *ZonalResult) Mean() float64 {
	s, n := 0.0, 0
	for _, v := range r.Values {
		if !math.IsNaN(v) {
			s += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// At indexes the result row-major, one index per axis.
func (r *ZonalResult) At(idx ...int) float64 {
	off := 0
	for i, n := range r.Shape() {
		off = off*n + idx[i]
	}
	return r.Values[off]
}
