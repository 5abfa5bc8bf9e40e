package zonalib

import (
	"errors"
	"math"
	"testing"
)

func cellsOf(vals ...float64) *zoneCells {
	z := &zoneCells{}
	for _, v := range vals {
		z.add(v, 1)
	}
	return z
}

func TestResolveStatsDefaultsToMean(t *testing.T) {
	stats, err := resolveStats(nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].label != StatMean {
		t.Fatal("default stats:", stats)
	}
	out := stats[0].fn(cellsOf(1, 2, 3))
	if out[0] != 2 {
		t.Fatal("mean =", out[0])
	}
}

func TestResolveStatsLabelDedup(t *testing.T) {
	stats, err := resolveStats([]StatSpec{
		Stat(StatMean),
		Stat(StatMean),
		StatFunc("", func(vals []float64) float64 { return 0 }),
		StatFunc("", func(vals []float64) float64 { return 0 }),
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"mean", "mean_1", "stat", "stat_1"}
	for i, w := range want {
		if stats[i].label != w {
			t.Fatal("label", i, "=", stats[i].label)
		}
	}
}

func TestStatNameAliases(t *testing.T) {
	stats, err := resolveStats([]StatSpec{
		Stat(StatStddev), Stat(StatVarianceFull), Stat(StatMode), Stat(StatFraction),
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{StatStd, StatVariance, StatMajority, StatCoverage}
	for i, w := range want {
		if stats[i].label != w {
			t.Fatal("alias label", i, "=", stats[i].label)
		}
	}
	out := stats[0].fn(cellsOf(1, 2, 3))
	if !almost(out[0], math.Sqrt(2.0/3)) {
		t.Fatal("stddev =", out[0])
	}
}

func TestUnknownStatParamRejected(t *testing.T) {
	_, err := resolveStats([]StatSpec{Stat("mean(foo=1)")}, false)
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("mean with param:", err)
	}
	_, err = resolveStats([]StatSpec{Stat("quantile(q=0.5,bogus=1)")}, false)
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("quantile with stray param:", err)
	}
	_, err = resolveStats([]StatSpec{StatParams(StatSum, map[string]interface{}{"q": 0.5})}, false)
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("sum with q:", err)
	}
}

func TestInlineParamLabelKeepsRawForm(t *testing.T) {
	stats, err := resolveStats([]StatSpec{Stat("quantile(q=0.2)")}, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats[0].label != "quantile(q=0.2)" {
		t.Fatal("inline label =", stats[0].label)
	}
	stats, err = resolveStats([]StatSpec{StatParams(StatQuantile, map[string]interface{}{"q": 0.2})}, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats[0].label != StatQuantile {
		t.Fatal("params label =", stats[0].label)
	}
}

func TestParseStatNameInlineParams(t *testing.T) {
	name, params, err := parseStatName("quantile(q=0.2)")
	if err != nil {
		t.Fatal(err)
	}
	if name != StatQuantile || params["q"] != 0.2 {
		t.Fatal(name, params)
	}
	if _, _, err = parseStatName("quantile(q=0.2"); err == nil {
		t.Fatal("unclosed params accepted")
	}
	if _, _, err = parseStatName("quantile(junk)"); err == nil {
		t.Fatal("malformed pair accepted")
	}
}

func TestQuantileValidation(t *testing.T) {
	_, err := resolveStats([]StatSpec{Stat(StatQuantile)}, false)
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("missing q:", err)
	}
	_, err = resolveStats([]StatSpec{StatParams(StatQuantile, map[string]interface{}{"q": 1.5})}, false)
	if !errors.Is(err, ErrBadStatParam) {
		t.Fatal("out of range q:", err)
	}
	_, err = resolveStats([]StatSpec{
		StatParams(StatQuantile, map[string]interface{}{"q": []float64{0.1}}),
		StatParams(StatQuantile, map[string]interface{}{"q": []float64{0.9}}),
	}, false)
	if !errors.Is(err, ErrInvalidAggregation) {
		t.Fatal("two vector stats:", err)
	}
}

func TestWeightedQuantileUnitWeights(t *testing.T) {
	vals := []float64{5, 1, 3, 2, 4}
	wts := []float64{1, 1, 1, 1, 1}
	if q := weightedQuantile(vals, wts, 0.5); q != 3 {
		t.Fatal("median =", q)
	}
	if q := weightedQuantile([]float64{1, 2, 3, 4}, wts[:4], 0.25); !almost(q, 1.75) {
		t.Fatal("q25 =", q)
	}
	if q := weightedQuantile(vals, wts, 0); q != 1 {
		t.Fatal("q0 =", q)
	}
	if q := weightedQuantile(vals, wts, 1); q != 5 {
		t.Fatal("q1 =", q)
	}
}

func TestWeightedMoments(t *testing.T) {
	vals := []float64{1, 2, 3}
	wts := []float64{1, 1, 1}
	if v := weightedVariance(vals, wts); !almost(v, 2.0/3) {
		t.Fatal("var =", v)
	}
	// doubling one weight shifts mean towards it
	if m := weightedMean([]float64{1, 3}, []float64{1, 3}); !almost(m, 2.5) {
		t.Fatal("weighted mean =", m)
	}
}

func TestModeTiesPickSmallest(t *testing.T) {
	if m := modeOf([]float64{2, 2, 1, 1, 3}, true); m != 1 {
		t.Fatal("majority =", m)
	}
	if m := modeOf([]float64{2, 2, 1, 3}, false); m != 1 {
		t.Fatal("minority =", m)
	}
	if u := uniqueCount([]float64{1, 1, 2, 3, 3}); u != 3 {
		t.Fatal("unique =", u)
	}
}

func TestEmptyZoneReducesToNaN(t *testing.T) {
	stats, err := resolveStats([]StatSpec{Stat(StatSum), Stat(StatNodataCount)}, false)
	if err != nil {
		t.Fatal(err)
	}
	z := &zoneCells{missing: 7}
	if out := stats[0].fn(z); !math.IsNaN(out[0]) {
		t.Fatal("sum of empty zone =", out[0])
	}
	// nodata_count still reports the masked cells
	if out := stats[1].fn(z); out[0] != 7 {
		t.Fatal("nodata_count =", out[0])
	}
}

func TestCoverageNeedsExact(t *testing.T) {
	_, err := resolveStats([]StatSpec{Stat(StatCoverage)}, false)
	if !errors.Is(err, ErrInvalidAggregation) {
		t.Fatal(err)
	}
	stats, err := resolveStats([]StatSpec{Stat(StatCoverage)}, true)
	if err != nil {
		t.Fatal(err)
	}
	z := &zoneCells{}
	z.add(1, 0.5)
	z.add(1, 0.25)
	if out := stats[0].fn(z); !almost(out[0], 0.75) {
		t.Fatal("coverage =", out[0])
	}
}
