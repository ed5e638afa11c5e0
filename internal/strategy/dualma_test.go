package strategy

import (
	"errors"
	"math"
	"testing"

	"fastquant/internal/model"
)

func ticksFor(symbol string, prices ...float64) []model.Tick {
	ticks := make([]model.Tick, len(prices))
	for i, p := range prices {
		ticks[i] = model.Tick{Symbol: symbol, Price: p, Volume: 1, Timestamp: int64(1700000000000 + i*1000)}
	}
	return ticks
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// referenceSignals recomputes every average from scratch on each tick.
func referenceSignals(prices []float64, fast, slow int) ([]model.Signal, []float64, []float64) {
	sigs := make([]model.Signal, len(prices))
	fastMAs := make([]float64, len(prices))
	slowMAs := make([]float64, len(prices))
	var pf, ps float64
	have := false
	for i := range prices {
		sigs[i] = model.SignalHold
		if i+1 < slow {
			continue
		}
		f := mean(prices[i+1-fast : i+1])
		s := mean(prices[i+1-slow : i+1])
		fastMAs[i], slowMAs[i] = f, s
		if have {
			if pf <= ps && f > s {
				sigs[i] = model.SignalBuy
			} else if pf >= ps && f < s {
				sigs[i] = model.SignalSell
			}
		}
		pf, ps, have = f, s, true
	}
	return sigs, fastMAs, slowMAs
}

var fixturePrices = []float64{
	100, 102, 101, 103, 105, 104, 106, 108, 107, 110,
	112, 111, 113, 115, 114, 116, 118, 117, 119, 121,
	120, 119, 118, 116, 115,
}

func TestDualMA_Fixture(t *testing.T) {
	d, err := NewDualMA("BTCUSDT", 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	wantSigs, wantFast, wantSlow := referenceSignals(fixturePrices, 5, 20)

	for i, tk := range ticksFor("BTCUSDT", fixturePrices...) {
		sig := d.OnTick(tk)
		if sig != wantSigs[i] {
			t.Errorf("tick %d: got %s, want %s", i+1, sig, wantSigs[i])
		}
		if i < 19 {
			if d.Ready() {
				t.Errorf("tick %d: should still be warming up", i+1)
			}
			continue
		}
		if math.Abs(d.FastMA()-wantFast[i]) > 1e-9 || math.Abs(d.SlowMA()-wantSlow[i]) > 1e-9 {
			t.Errorf("tick %d: fast=%.6f slow=%.6f, want fast=%.6f slow=%.6f",
				i+1, d.FastMA(), d.SlowMA(), wantFast[i], wantSlow[i])
		}
	}
}

func TestDualMA_FixtureHasNoCrossover(t *testing.T) {
	sigs, err := Replay("BTCUSDT", 5, 20, ticksFor("BTCUSDT", fixturePrices...))
	if err != nil {
		t.Fatal(err)
	}
	c := Count(sigs)
	if c.Hold != 25 || c.Buy != 0 || c.Sell != 0 {
		t.Fatalf("expected 25 HOLD, got %+v", c)
	}

	// Pinned averages at the last tick
	d, _ := NewDualMA("BTCUSDT", 5, 20)
	d.Backtest(ticksFor("BTCUSDT", fixturePrices...))
	if math.Abs(d.FastMA()-117.6) > 1e-9 || math.Abs(d.SlowMA()-113.95) > 1e-9 {
		t.Fatalf("final averages fast=%.6f slow=%.6f, want 117.6 / 113.95", d.FastMA(), d.SlowMA())
	}
}

func TestDualMA_CrossBothWays(t *testing.T) {
	prices := []float64{10, 9, 8, 7, 6, 7, 8, 9, 10, 9, 8, 7, 6}
	want := []model.Signal{
		model.SignalHold, model.SignalHold, model.SignalHold, model.SignalHold, model.SignalHold,
		model.SignalHold, model.SignalBuy, model.SignalHold, model.SignalHold, model.SignalHold,
		model.SignalSell, model.SignalHold, model.SignalHold,
	}
	got, err := Replay("ETHUSDT", 2, 4, ticksFor("ETHUSDT", prices...))
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick %d (price %.0f): got %s, want %s", i, prices[i], got[i], want[i])
		}
	}

	ref, _, _ := referenceSignals(prices, 2, 4)
	for i := range ref {
		if got[i] != ref[i] {
			t.Errorf("tick %d: disagrees with reference (%s vs %s)", i, got[i], ref[i])
		}
	}
}

func TestDualMA_FirstActiveTickHolds(t *testing.T) {
	// fast=1 slow=2: at tick 2 fast (6) > slow (5.5), but there is no previous pair
	got, _ := Replay("X", 1, 2, ticksFor("X", 5, 6))
	if got[1] != model.SignalHold {
		t.Fatalf("first active tick should be HOLD, got %s", got[1])
	}
}

func TestDualMA_TouchThenCross(t *testing.T) {
	cases := []struct {
		name   string
		prices []float64
		want   []model.Signal
	}{
		{
			// equal averages at tick 2, then fast moves above and below
			name:   "from equality",
			prices: []float64{5, 5, 6, 5},
			want:   []model.Signal{model.SignalHold, model.SignalHold, model.SignalBuy, model.SignalSell},
		},
		{
			// touching is not crossing; the move away from equality is
			name:   "touch",
			prices: []float64{5, 6, 6, 7},
			want:   []model.Signal{model.SignalHold, model.SignalHold, model.SignalHold, model.SignalBuy},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := Replay("X", 1, 2, ticksFor("X", tc.prices...))
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("tick %d: got %s, want %s", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestDualMA_SymbolMismatch(t *testing.T) {
	d, _ := NewDualMA("BTCUSDT", 2, 3)
	for _, tk := range ticksFor("ETHUSDT", 1, 2, 3, 4, 5, 4, 3, 2, 1) {
		if sig := d.OnTick(tk); sig != model.SignalHold {
			t.Fatalf("mismatched symbol should yield HOLD, got %s", sig)
		}
	}
	s := d.Snapshot()
	if s.Ready || s.FastMA != 0 || s.SlowMA != 0 || s.Observations != 0 || s.Phase != "WARMUP" {
		t.Fatalf("state changed by foreign ticks: %+v", s)
	}
}

func TestDualMA_NonFinitePriceIgnored(t *testing.T) {
	d, _ := NewDualMA("X", 1, 2)
	d.OnTick(model.Tick{Symbol: "X", Price: 1})
	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if sig := d.OnTick(model.Tick{Symbol: "X", Price: p}); sig != model.SignalHold {
			t.Fatalf("price %v should yield HOLD, got %s", p, sig)
		}
	}
	if d.Snapshot().Observations != 1 {
		t.Fatalf("non-finite prices must not enter the window, got %d observations", d.Snapshot().Observations)
	}
}

func TestDualMA_EmptyReplay(t *testing.T) {
	got, err := Replay("X", 2, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestDualMA_BacktestContinuesState(t *testing.T) {
	ticks := ticksFor("X", 10, 9, 8, 7, 6, 7, 8, 9, 10, 9, 8, 7, 6)
	whole, _ := Replay("X", 2, 4, ticks)

	d, _ := NewDualMA("X", 2, 4)
	first := d.Backtest(ticks[:5])
	second := d.Backtest(ticks[5:])
	split := append(first, second...)
	for i := range whole {
		if whole[i] != split[i] {
			t.Fatalf("tick %d: split backtest %s != whole %s", i, split[i], whole[i])
		}
	}
}

func TestNewDualMA_Validation(t *testing.T) {
	cases := []struct {
		name       string
		symbol     string
		fast, slow int
	}{
		{"empty symbol", "", 5, 20},
		{"zero fast", "X", 0, 20},
		{"negative slow", "X", 5, -1},
		{"fast equals slow", "X", 5, 5},
		{"fast above slow", "X", 20, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDualMA(tc.symbol, tc.fast, tc.slow); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDualMA_Accessors(t *testing.T) {
	d, _ := NewDualMA("BTCUSDT", 5, 20)
	if d.Symbol() != "BTCUSDT" || d.FastPeriod() != 5 || d.SlowPeriod() != 20 {
		t.Fatalf("unexpected accessors: %s %d %d", d.Symbol(), d.FastPeriod(), d.SlowPeriod())
	}
	if d.Name() != "DualMA_5_20" {
		t.Fatalf("unexpected name %s", d.Name())
	}
	if d.Phase() != PhaseWarmup {
		t.Fatalf("new strategy should be warming up")
	}
}
