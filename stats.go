package zonalib

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// zoneCells holds the gathered cells of one zone in one grid slice: valid
// values with parallel coverage weights (1 for binary selection), plus the
// count of cells skipped as nodata.
type zoneCells struct {
	vals    []float64
	wts     []float64
	missing int
}

func (z *zoneCells) add(v, w float64) {
	z.vals = append(z.vals, v)
	z.wts = append(z.wts, w)
}

func (z *zoneCells) reset() {
	z.vals = z.vals[:0]
	z.wts = z.wts[:0]
	z.missing = 0
}

// resolvedStat is one validated statistic ready to run. Scalar statistics
// have outLen 1 and a nil axis; vector ones (quantile sequences) carry the
// secondary output axis.
type resolvedStat struct {
	label  string
	fn     func(z *zoneCells) []float64
	outLen int
	axis   *Axis
}

// resolveStats validates and compiles the requested statistics. Defaults to
// mean. exact reports whether the cells will carry fractional weights, which
// coverage requires.
func resolveStats(specs []StatSpec, exact bool) (stats []resolvedStat, err error) {
	if len(specs) == 0 {
		specs = []StatSpec{Stat(StatMean)}
	}
	stats = make([]resolvedStat, 0, len(specs))
	vectors := 0
	for _, spec := range specs {
		var rs resolvedStat
		if rs, err = compileStat(spec, exact); err != nil {
			return
		}
		if rs.axis != nil {
			vectors++
		}
		stats = append(stats, rs)
	}
	if vectors > 1 {
		err = fmt.Errorf("%w: at most one statistic may produce a secondary axis", ErrInvalidAggregation)
		return
	}
	dedupLabels(stats)
	return
}

func compileStat(spec StatSpec, exact bool) (rs resolvedStat, err error) {
	if spec.Fn != nil {
		fn := spec.Fn
		rs.label = spec.Label
		if rs.label == "" {
			rs.label = DefaultStatLabel
		}
		rs.outLen = 1
		rs.fn = func(z *zoneCells) []float64 {
			if len(z.vals) == 0 {
				return []float64{math.NaN()}
			}
			return []float64{fn(z.vals)}
		}
		return
	}
	name, params, err := parseStatName(spec.Name)
	if err != nil {
		return
	}
	inline := params != nil
	for k, v := range spec.Params {
		if params == nil {
			params = map[string]interface{}{}
		}
		params[k] = v
	}
	switch name {
	case StatStddev:
		name = StatStd
	case StatVarianceFull:
		name = StatVariance
	case StatMode:
		name = StatMajority
	case StatFraction:
		name = StatCoverage
	}
	rs.label = name
	if inline {
		// inline-parameterized requests keep the raw form as their label
		rs.label = strings.TrimSpace(spec.Name)
	}
	if spec.Label != "" {
		rs.label = spec.Label
	}
	if err = checkStatParams(name, params); err != nil {
		return
	}
	rs.outLen = 1
	switch name {
	case StatMean:
		rs.fn = scalarStat(weightedMean)
	case StatSum:
		rs.fn = scalarStat(weightedSum)
	case StatCount:
		rs.fn = scalarStat(weightedCount)
	case StatMin:
		rs.fn = scalarStat(minOf)
	case StatMax:
		rs.fn = scalarStat(maxOf)
	case StatMedian:
		rs.fn = scalarStat(func(vals, wts []float64) float64 {
			return weightedQuantile(vals, wts, 0.5)
		})
	case StatStd:
		rs.fn = scalarStat(func(vals, wts []float64) float64 {
			return math.Sqrt(weightedVariance(vals, wts))
		})
	case StatVariance:
		rs.fn = scalarStat(weightedVariance)
	case StatMajority:
		rs.fn = scalarStat(func(vals, _ []float64) float64 { return modeOf(vals, true) })
	case StatMinority:
		rs.fn = scalarStat(func(vals, _ []float64) float64 { return modeOf(vals, false) })
	case StatUnique:
		rs.fn = scalarStat(func(vals, _ []float64) float64 { return uniqueCount(vals) })
	case StatNodataCount:
		// reports the masked cell count even when the zone is all nodata
		rs.fn = func(z *zoneCells) []float64 { return []float64{float64(z.missing)} }
	case StatCoverage:
		if !exact {
			err = fmt.Errorf("%w: %q needs method %q", ErrInvalidAggregation, name, MethodExactExtract)
			return
		}
		rs.fn = func(z *zoneCells) []float64 {
			s := 0.0
			for _, w := range z.wts {
				s += w
			}
			return []float64{s}
		}
	case StatQuantile:
		var (
			qs  []float64
			seq bool
		)
		if qs, seq, err = quantileLevels(params); err != nil {
			return
		}
		if !seq {
			q := qs[0]
			rs.fn = scalarStat(func(vals, wts []float64) float64 {
				return weightedQuantile(vals, wts, q)
			})
			return
		}
		rs.outLen = len(qs)
		rs.axis = &Axis{Name: StatQuantile, Coords: qs}
		rs.fn = func(z *zoneCells) []float64 {
			out := make([]float64, len(qs))
			if len(z.vals) == 0 {
				for i := range out {
					out[i] = math.NaN()
				}
				return out
			}
			sorted, wts := sortedByValue(z.vals, z.wts)
			for i, q := range qs {
				out[i] = quantileOfSorted(sorted, wts, q)
			}
			return out
		}
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidAggregation, name)
	}
	return
}

// parseStatName splits an inline-parameterized name like "quantile(q=0.2)"
// into the bare name and its parameters. Inline parameters imply a scalar
// output.
func parseStatName(raw string) (name string, params map[string]interface{}, err error) {
	name = strings.TrimSpace(raw)
	open := strings.IndexByte(name, '(')
	if open < 0 {
		return
	}
	if !strings.HasSuffix(name, ")") {
		err = fmt.Errorf("%w: malformed %q", ErrBadStatParam, raw)
		return
	}
	inner := name[open+1 : len(name)-1]
	name = strings.TrimSpace(name[:open])
	params = map[string]interface{}{}
	for _, kv := range strings.Split(inner, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			err = fmt.Errorf("%w: malformed %q", ErrBadStatParam, raw)
			return
		}
		key := strings.TrimSpace(kv[:eq])
		val := strings.TrimSpace(kv[eq+1:])
		if f, e := strconv.ParseFloat(val, 64); e == nil {
			params[key] = f
		} else if b, e := strconv.ParseBool(val); e == nil {
			params[key] = b
		} else {
			params[key] = val
		}
	}
	return
}

// checkStatParams rejects parameters the statistic does not take.
func checkStatParams(name string, params map[string]interface{}) error {
	for k := range params {
		if name == StatQuantile && k == "q" {
			continue
		}
		return fmt.Errorf("%w: unknown parameter %q for %q", ErrBadStatParam, k, name)
	}
	return nil
}

// quantileLevels extracts the q parameter; seq reports whether it was a
// sequence, which turns the statistic into a vector with a quantile axis.
func quantileLevels(params map[string]interface{}) (qs []float64, seq bool, err error) {
	raw, ok := params["q"]
	if !ok {
		err = fmt.Errorf("%w: quantile needs q", ErrBadStatParam)
		return
	}
	switch v := raw.(type) {
	case float64:
		qs = []float64{v}
	case int:
		qs = []float64{float64(v)}
	case []float64:
		qs = v
		seq = true
	case []interface{}:
		seq = true
		for _, e := range v {
			f, ok := e.(float64)
			if !ok {
				err = fmt.Errorf("%w: quantile q must be numeric", ErrBadStatParam)
				return
			}
			qs = append(qs, f)
		}
	default:
		err = fmt.Errorf("%w: quantile q must be numeric", ErrBadStatParam)
		return
	}
	if len(qs) == 0 {
		err = fmt.Errorf("%w: quantile needs q", ErrBadStatParam)
		return
	}
	for _, q := range qs {
		if q < 0 || q > 1 {
			err = fmt.Errorf("%w: quantile q out of [0,1]: %v", ErrBadStatParam, q)
			return
		}
	}
	return
}

// dedupLabels suffixes repeated output labels so every column stays
// addressable.
func dedupLabels(stats []resolvedStat) {
	seen := map[string]int{}
	for i := range stats {
		n := seen[stats[i].label]
		seen[stats[i].label] = n + 1
		if n > 0 {
			stats[i].label = fmt.Sprintf("%s_%d", stats[i].label, n)
		}
	}
}

func scalarStat(fn func(vals, wts []float64) float64) func(z *zoneCells) []float64 {
	return func(z *zoneCells) []float64 {
		if len(z.vals) == 0 {
			return []float64{math.NaN()}
		}
		return []float64{fn(z.vals, z.wts)}
	}
}

func weightedSum(vals, wts []float64) (s float64) {
	for i, v := range vals {
		s += v * wts[i]
	}
	return
}

func weightedCount(_, wts []float64) (s float64) {
	for _, w := range wts {
		s += w
	}
	return
}

func weightedMean(vals, wts []float64) float64 {
	w := weightedCount(vals, wts)
	if w == 0 {
		return math.NaN()
	}
	return weightedSum(vals, wts) / w
}

func weightedVariance(vals, wts []float64) float64 {
	w := weightedCount(vals, wts)
	if w == 0 {
		return math.NaN()
	}
	m := weightedSum(vals, wts) / w
	s := 0.0
	for i, v := range vals {
		d := v - m
		s += wts[i] * d * d
	}
	return s / w
}

func minOf(vals, _ []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals, _ []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// modeOf returns the most (or least) frequent value, ties broken by the
// smaller value.
func modeOf(vals []float64, most bool) float64 {
	counts := make(map[float64]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	best := math.NaN()
	bestN := 0
	for v, n := range counts {
		better := n > bestN
		if !most {
			better = n < bestN
		}
		if bestN == 0 || better || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

func uniqueCount(vals []float64) float64 {
	set := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return float64(len(set))
}

type valueWeights struct {
	vals []float64
	wts  []float64
}

func (s *valueWeights) Len() int      { return len(s.vals) }
func (s *valueWeights) Swap(i, j int) {
	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
	s.wts[i], s.wts[j] = s.wts[j], s.wts[i]
}
func (s *valueWeights) Less(i, j int) bool { return s.vals[i] < s.vals[j] }

func sortedByValue(vals, wts []float64) ([]float64, []float64) {
	sv := append([]float64(nil), vals...)
	sw := append([]float64(nil), wts...)
	sort.Sort(&valueWeights{sv, sw})
	return sv, sw
}

func weightedQuantile(vals, wts []float64, q float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sv, sw := sortedByValue(vals, wts)
	return quantileOfSorted(sv, sw, q)
}

// quantileOfSorted interpolates the q-th quantile over value-sorted cells.
// Cell positions follow the leading cumulative weight, which reduces to the
// usual linear interpolation for unit weights.
func quantileOfSorted(vals, wts []float64, q float64) float64 {
	n := len(vals)
	if n == 1 {
		return vals[0]
	}
	total := 0.0
	for _, w := range wts {
		total += w
	}
	span := total - wts[n-1]
	if span <= 0 {
		return vals[n-1]
	}
	target := q * span
	cum := 0.0
	for i := 0; i < n-1; i++ {
		next := cum + wts[i]
		if target <= next {
			frac := (target - cum) / wts[i]
			return vals[i] + frac*(vals[i+1]-vals[i])
		}
		cum = next
	}
	return vals[n-1]
}
