// Package cover computes the fraction of each pixel covered by filled
// polygon rings, using signed cover/area accumulation per scanline and the
// nonzero winding rule. Ring vertices are given in pixel coordinates; hole
// rings must wind opposite to their outer ring so that they subtract.
package cover

import (
	"math"
)

// edges with vertical extent below this are treated as horizontal and skipped
const horizontalEdgeThreshold = 1e-10

type edge struct {
	x0, y0 float64
	x1, y1 float64
	dxdy   float64
}

// Rasterizer accumulates rings and renders pixel coverage over a fixed
// width*height window. Buffers grow as needed and are reused across Reset.
// Not safe for concurrent use.
type Rasterizer struct {
	width, height int

	edges       []edge
	cover       []float64
	area        []float64
	rowHasEdges []bool
}

func NewRasterizer(width, height int) *Rasterizer {
	r := &Rasterizer{}
	r.Reset(width, height)
	return r
}

// Reset clears accumulated rings and resizes the window.
func (r *Rasterizer) Reset(width, height int) {
	r.width, r.height = width, height
	r.edges = r.edges[:0]
	size := width * height
	if cap(r.cover) < size {
		r.cover = make([]float64, size)
		r.area = make([]float64, size)
	} else {
		r.cover = r.cover[:size]
		r.area = r.area[:size]
		for i := range r.cover {
			r.cover[i] = 0
			r.area[i] = 0
		}
	}
	if cap(r.rowHasEdges) < height {
		r.rowHasEdges = make([]bool, height)
	} else {
		r.rowHasEdges = r.rowHasEdges[:height]
		for i := range r.rowHasEdges {
			r.rowHasEdges[i] = false
		}
	}
}

// AddRing appends one ring given as parallel x/y pixel-coordinate vertex
// slices. The ring is closed implicitly.
func (r *Rasterizer) AddRing(xs, ys []float64) {
	n := len(xs)
	if n < 3 || n != len(ys) {
		return
	}
	for i := 0; i < n; i++ {
		j := i + 1
		if j == n {
			j = 0
		}
		r.addEdge(xs[i], ys[i], xs[j], ys[j])
	}
}

func (r *Rasterizer) addEdge(x0, y0, x1, y1 float64) {
	dy := y1 - y0
	if dy > -horizontalEdgeThreshold && dy < horizontalEdgeThreshold {
		return
	}
	r.edges = append(r.edges, edge{
		x0: x0, y0: y0,
		x1: x1, y1: y1,
		dxdy: (x1 - x0) / dy,
	})
}

// Coverage renders the accumulated rings and returns the row-major
// width*height coverage buffer, each value in [0,1]. The buffer is owned by
// the Rasterizer and valid until the next Reset.
func (r *Rasterizer) Coverage() []float64 {
	for i := range r.edges {
		e := &r.edges[i]
		lo, hi := e.y0, e.y1
		if lo > hi {
			lo, hi = hi, lo
		}
		rowMin := int(math.Floor(lo))
		rowMax := int(math.Floor(hi)) + 1
		if rowMin < 0 {
			rowMin = 0
		}
		if rowMax > r.height {
			rowMax = r.height
		}
		for y := rowMin; y < rowMax; y++ {
			off := y * r.width
			r.accumulateEdge(e, y, r.cover[off:off+r.width], r.area[off:off+r.width])
			r.rowHasEdges[y] = true
		}
	}
	for row := 0; row < r.height; row++ {
		if !r.rowHasEdges[row] {
			continue
		}
		off := row * r.width
		integrateNonZero(r.cover[off:off+r.width], r.area[off:off+r.width])
	}
	return r.cover
}

// accumulateEdge adds the edge's contribution to one scanline [y, y+1).
// An edge crossing a pixel contributes cover = sign*dy and
// area = cover*(1-xFrac); integration later turns these into the signed area
// of the rings within each pixel.
func (r *Rasterizer) accumulateEdge(e *edge, y int, cover, area []float64) {
	yTop := float64(y)
	yBot := float64(y + 1)
	edgeYMin, edgeYMax := e.y0, e.y1
	if edgeYMin > edgeYMax {
		edgeYMin, edgeYMax = edgeYMax, edgeYMin
	}
	if yTop < edgeYMin {
		yTop = edgeYMin
	}
	if yBot > edgeYMax {
		yBot = edgeYMax
	}
	if yBot <= yTop {
		return
	}

	sign := 1.0
	if e.y1 < e.y0 {
		sign = -1
	}

	xAtYTop := e.x0 + e.dxdy*(yTop-e.y0)
	xAtYBot := e.x0 + e.dxdy*(yBot-e.y0)
	xLeft, xRight := xAtYTop, xAtYBot
	if xLeft > xRight {
		xLeft, xRight = xRight, xLeft
	}
	pixLeft := int(math.Floor(xLeft))
	pixRight := int(math.Floor(xRight))

	// fully left of the window: behaves like a crossing at x=0
	if pixRight < 0 {
		coverVal := sign * (yBot - yTop)
		cover[0] += coverVal
		area[0] += coverVal
		return
	}
	if pixLeft >= r.width {
		return
	}

	if pixLeft == pixRight {
		r.columnContribution(e, yTop, yBot, sign, pixLeft, cover, area)
		return
	}

	// split the crossing at pixel boundaries
	dydx := 1 / e.dxdy
	for pix := pixLeft; pix <= pixRight; pix++ {
		yAtPixLeft := e.y0 + dydx*(float64(pix)-e.x0)
		yAtPixRight := e.y0 + dydx*(float64(pix+1)-e.x0)
		segYMin, segYMax := yAtPixLeft, yAtPixRight
		if segYMin > segYMax {
			segYMin, segYMax = segYMax, segYMin
		}
		if segYMin < yTop {
			segYMin = yTop
		}
		if segYMax > yBot {
			segYMax = yBot
		}
		if segYMax <= segYMin {
			continue
		}
		coverVal := sign * (segYMax - segYMin)
		yMid := (segYMin + segYMax) / 2
		xMid := e.x0 + e.dxdy*(yMid-e.y0)
		if pix < 0 {
			cover[0] += coverVal
			area[0] += coverVal
		} else if pix < r.width {
			cover[pix] += coverVal
			area[pix] += coverVal * (1 - (xMid - float64(pix)))
		}
	}
}

func (r *Rasterizer) columnContribution(e *edge, yTop, yBot, sign float64, pix int, cover, area []float64) {
	coverVal := sign * (yBot - yTop)
	if pix < 0 {
		cover[0] += coverVal
		area[0] += coverVal
		return
	}
	if pix >= r.width {
		return
	}
	yMid := (yTop + yBot) / 2
	xMid := e.x0 + e.dxdy*(yMid-e.y0)
	cover[pix] += coverVal
	area[pix] += coverVal * (1 - (xMid - float64(pix)))
}

// integrateNonZero folds accumulated cover/area into final per-pixel
// coverage, in place in cover.
func integrateNonZero(cover, area []float64) {
	accum := 0.0
	for i := range cover {
		raw := accum + area[i]
		accum += cover[i]
		if raw < 0 {
			raw = -raw
		}
		if raw > 1 {
			raw = 1
		}
		cover[i] = raw
	}
}
