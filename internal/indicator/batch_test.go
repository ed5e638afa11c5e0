package indicator

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func randomWalk(seed int64, n int, start float64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := start
	for i := range out {
		p += r.NormFloat64()
		out[i] = p
	}
	return out
}

func bruteMean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_KnownSeries(t *testing.T) {
	got := SMA([]float64{100, 102, 104, 103, 105}, 3)
	want := []float64{102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 1e-12)
	}
}

func TestSMA_MatchesBruteForce(t *testing.T) {
	data := randomWalk(1, 300, 100)
	for _, period := range []int{1, 2, 7, 20, 150, 300} {
		got := SMA(data, period)
		if len(got) != len(data)-period+1 {
			t.Fatalf("period %d: expected len %d, got %d", period, len(data)-period+1, len(got))
		}
		for j := range got {
			assertClose(t, "SMA brute force", got[j], bruteMean(data[j:j+period]), 1e-9)
		}
	}
}

func TestSMA_PeriodOneIsIdentity(t *testing.T) {
	data := []float64{3, -1, 4.5}
	got := SMA(data, 1)
	for i := range data {
		if got[i] != data[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], data[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_SeedAndRecurrence(t *testing.T) {
	// EMA(3), k = 0.5: seed 102, then 102.5, 103.75
	got := EMA([]float64{100, 102, 104, 103, 105}, 3)
	want := []float64{102, 102.5, 103.75}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-12)
	}
}

func TestEMA_AlignedWithSMA(t *testing.T) {
	data := randomWalk(2, 50, 10)
	ema := EMA(data, 10)
	sma := SMA(data, 10)
	if len(ema) != len(sma) {
		t.Fatalf("EMA len %d != SMA len %d", len(ema), len(sma))
	}
	assertClose(t, "first EMA == first SMA", ema[0], sma[0], 1e-12)
}

// ────────────────────────────────────────────────────────────
// StdDev / RollingStdDev
// ────────────────────────────────────────────────────────────

func TestStdDev_MatchesGonum(t *testing.T) {
	data := randomWalk(3, 500, 25000)
	assertClose(t, "StdDev vs gonum", StdDev(data), stat.PopStdDev(data, nil), 1e-9)
}

func TestStdDev_Degenerate(t *testing.T) {
	cases := map[string][]float64{
		"empty":  nil,
		"single": {42},
		"nan":    {1, math.NaN(), 3},
		"inf":    {1, math.Inf(1)},
	}
	for name, data := range cases {
		if got := StdDev(data); got != 0 {
			t.Errorf("%s: expected 0, got %v", name, got)
		}
	}
	assertClose(t, "constant", StdDev([]float64{5, 5, 5, 5}), 0, 0)
	assertClose(t, "{2,4,4,4,5,5,7,9}", StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 2, 1e-12)
}

func TestRollingStdDev_FirstWindowMatchesStdDev(t *testing.T) {
	data := randomWalk(4, 200, 100)
	for _, period := range []int{2, 5, 20, 200} {
		got := RollingStdDev(data, period)
		assertClose(t, "RollingStdDev[0] vs StdDev", got[0], StdDev(data[:period]), 1e-9)
		assertClose(t, "RollingStdDev[0] vs gonum", got[0], stat.PopStdDev(data[:period], nil), 1e-9)
	}
}

func TestRollingStdDev_EveryWindowMatchesGonum(t *testing.T) {
	// Prices far from zero exercise the shifted sums
	data := randomWalk(5, 3000, 60000)
	const period = 30
	got := RollingStdDev(data, period)
	if len(got) != len(data)-period+1 {
		t.Fatalf("expected len %d, got %d", len(data)-period+1, len(got))
	}
	for j := range got {
		want := stat.PopStdDev(data[j:j+period], nil)
		if math.Abs(got[j]-want) > 1e-6 {
			t.Fatalf("window %d: got %.12f, want %.12f", j, got[j], want)
		}
	}
}

func TestRollingStdDev_ConstantIsZero(t *testing.T) {
	data := []float64{7, 7, 7, 7, 7, 7}
	for i, v := range RollingStdDev(data, 3) {
		if v != 0 {
			t.Errorf("window %d: expected 0, got %v", i, v)
		}
	}
}

func TestRollingStdDev_RecoversAfterOverflow(t *testing.T) {
	data := []float64{0, 2e154, 0, 0, 0, 0}
	got := RollingStdDev(data, 2)
	want := []float64{1e154, 1e154, 0, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !finite(got[i]) {
			t.Fatalf("window %d: non-finite %v", i, got[i])
		}
		assertClose(t, "overflow window", got[i], want[i], 1e-9*want[i])
		assertClose(t, "overflow window vs StdDev", got[i], StdDev(data[i:i+2]), 1e-9*want[i])
	}

	b := BollingerBands(data, 2, DefaultMultiplier)
	for i := range want {
		if !finite(b.Upper[i]) || !finite(b.Lower[i]) {
			t.Fatalf("index %d: bands %v/%v", i, b.Lower[i], b.Upper[i])
		}
	}
	assertClose(t, "upper after overflow", b.Upper[4], 0, 0)
}

func TestStdDev_LargeValues(t *testing.T) {
	assertClose(t, "StdDev{0,2e154}", StdDev([]float64{0, 2e154}), 1e154, 1)
	assertClose(t, "StdDev{1e154,1e154}", StdDev([]float64{1e154, 1e154}), 0, 0)
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollingerBands_MiddleIsSMA(t *testing.T) {
	data := randomWalk(6, 400, 100)
	b := BollingerBands(data, 20, DefaultMultiplier)
	sma := SMA(data, 20)
	if b.Len() != len(sma) || len(b.Upper) != len(sma) || len(b.Lower) != len(sma) {
		t.Fatalf("band lengths %d/%d/%d, want %d", len(b.Upper), len(b.Middle), len(b.Lower), len(sma))
	}
	for i := range sma {
		if b.Middle[i] != sma[i] {
			t.Fatalf("index %d: middle %.17g != SMA %.17g", i, b.Middle[i], sma[i])
		}
	}
}

func TestBollingerBands_WidthIsTwiceMultiplierStd(t *testing.T) {
	data := randomWalk(7, 400, 100)
	for _, m := range []float64{0, 1, DefaultMultiplier, 2.5} {
		b := BollingerBands(data, 20, m)
		std := RollingStdDev(data, 20)
		for i := range std {
			assertClose(t, "band width", b.Upper[i]-b.Lower[i], 2*m*std[i], 1e-9)
			if b.Upper[i] < b.Middle[i] || b.Lower[i] > b.Middle[i] {
				t.Fatalf("index %d: bands not ordered: %v %v %v", i, b.Lower[i], b.Middle[i], b.Upper[i])
			}
		}
	}
}

func TestBollingerBands_BadMultiplier(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	for _, m := range []float64{-1, math.NaN(), math.Inf(1)} {
		if b := BollingerBands(data, 2, m); b.Len() != 0 || b.Upper != nil || b.Lower != nil {
			t.Errorf("multiplier %v: expected empty bands, got %+v", m, b)
		}
	}
	if !errors.Is(ValidateMultiplier(-1), ErrInvalidMultiplier) {
		t.Error("expected ErrInvalidMultiplier")
	}
}

// ────────────────────────────────────────────────────────────
// Shared properties
// ────────────────────────────────────────────────────────────

func TestIndicators_InvalidInputIsEmpty(t *testing.T) {
	good := []float64{1, 2, 3, 4, 5}
	cases := []struct {
		name   string
		data   []float64
		period int
	}{
		{"zero period", good, 0},
		{"negative period", good, -3},
		{"period > len", good, 6},
		{"empty data", nil, 1},
		{"nan", []float64{1, math.NaN(), 3}, 2},
		{"+inf", []float64{1, 2, math.Inf(1)}, 2},
		{"-inf", []float64{math.Inf(-1), 2, 3}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SMA(tc.data, tc.period); len(got) != 0 {
				t.Errorf("SMA: expected empty, got %v", got)
			}
			if got := EMA(tc.data, tc.period); len(got) != 0 {
				t.Errorf("EMA: expected empty, got %v", got)
			}
			if got := RollingStdDev(tc.data, tc.period); len(got) != 0 {
				t.Errorf("RollingStdDev: expected empty, got %v", got)
			}
			if got := BollingerBands(tc.data, tc.period, DefaultMultiplier); got.Len() != 0 {
				t.Errorf("BollingerBands: expected empty, got %+v", got)
			}
			if Validate(tc.data, tc.period) == nil {
				t.Error("Validate: expected error")
			}
		})
	}
}

func TestValidate_SentinelErrors(t *testing.T) {
	if err := Validate([]float64{1, 2}, 3); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if err := Validate([]float64{1, math.NaN()}, 1); !errors.Is(err, ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
	if err := Validate([]float64{1, 2}, 2); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestIndicators_Idempotent(t *testing.T) {
	data := randomWalk(8, 120, 50)
	orig := append([]float64(nil), data...)

	equal := func(a, b []float64) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}

	if !equal(SMA(data, 9), SMA(data, 9)) {
		t.Error("SMA not idempotent")
	}
	if !equal(EMA(data, 9), EMA(data, 9)) {
		t.Error("EMA not idempotent")
	}
	if !equal(RollingStdDev(data, 9), RollingStdDev(data, 9)) {
		t.Error("RollingStdDev not idempotent")
	}
	if StdDev(data) != StdDev(data) {
		t.Error("StdDev not idempotent")
	}
	b1, b2 := BollingerBands(data, 9, 2), BollingerBands(data, 9, 2)
	if !equal(b1.Upper, b2.Upper) || !equal(b1.Middle, b2.Middle) || !equal(b1.Lower, b2.Lower) {
		t.Error("BollingerBands not idempotent")
	}
	if !equal(data, orig) {
		t.Error("input slice was mutated")
	}
}
