package indicator

import (
	"errors"
	"math"
	"testing"

	"fastquant/internal/model"
)

func tick(symbol string, price float64) model.Tick {
	return model.Tick{Symbol: symbol, Price: price, Volume: 1, Timestamp: 1700000000000}
}

func TestMonitor_SMA20(t *testing.T) {
	m, err := NewMonitor([]Spec{{Type: "SMA", Period: 20}})
	if err != nil {
		t.Fatal(err)
	}

	// Feed 25 ticks at 100.00
	for i := 0; i < 25; i++ {
		results := m.Update(tick("BTCUSDT", 100))
		if len(results) != 1 {
			t.Fatalf("tick %d: expected 1 result, got %d", i, len(results))
		}
		if results[0].Ready != (i >= 19) {
			t.Errorf("tick %d: Ready=%v", i, results[0].Ready)
		}
		if i >= 19 && math.Abs(results[0].Value-100.0) > 0.001 {
			t.Errorf("tick %d: expected SMA=100.0, got %.4f", i, results[0].Value)
		}
		if results[0].Name != "SMA_20" {
			t.Errorf("tick %d: expected name=SMA_20, got %s", i, results[0].Name)
		}
	}
}

func TestMonitor_MultiIndicator(t *testing.T) {
	m, err := NewMonitor(DefaultSpecs())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		results := m.Update(tick("A", 100+float64(i)))
		if len(results) != 3 {
			t.Fatalf("tick %d: expected 3 results, got %d", i, len(results))
		}
	}
	rsi, ok := m.RSI("A")
	if !ok {
		t.Fatal("RSI should be ready after 20 rising ticks")
	}
	assertClose(t, "RSI all up", rsi, 100, 0.001)
}

func TestMonitor_SymbolsIsolated(t *testing.T) {
	m, _ := NewMonitor([]Spec{{Type: "SMA", Period: 2}})
	m.Update(tick("A", 10))
	m.Update(tick("B", 1000))
	m.Update(tick("A", 20))
	m.Update(tick("B", 3000))

	a, ok := m.Value("A", "SMA_2")
	if !ok {
		t.Fatal("A SMA_2 should be ready")
	}
	assertClose(t, "A", a, 15, 1e-12)
	b, _ := m.Value("B", "SMA_2")
	assertClose(t, "B", b, 2000, 1e-12)

	if _, ok := m.Value("C", "SMA_2"); ok {
		t.Error("unknown symbol should not report a value")
	}
}

func TestMonitor_SkipsUnusableTick(t *testing.T) {
	m, _ := NewMonitor([]Spec{{Type: "SMA", Period: 1}})
	if r := m.Update(tick("A", math.NaN())); r != nil {
		t.Fatalf("NaN tick should produce no readings, got %v", r)
	}
	if r := m.Update(tick("", 1)); r != nil {
		t.Fatalf("tick without symbol should produce no readings, got %v", r)
	}
}

func TestNewMonitor_RejectsBadSpec(t *testing.T) {
	if _, err := NewMonitor([]Spec{{Type: "MACD", Period: 3}}); err == nil {
		t.Error("unknown type should fail")
	}
	if _, err := NewMonitor([]Spec{{Type: "SMA", Period: 0}}); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("sma:20, EMA:9,RSI:14")
	if err != nil {
		t.Fatal(err)
	}
	want := []Spec{{"SMA", 20}, {"EMA", 9}, {"RSI", 14}}
	if len(specs) != len(want) {
		t.Fatalf("expected %d specs, got %d", len(want), len(specs))
	}
	for i := range want {
		if specs[i] != want[i] {
			t.Errorf("spec %d: got %+v, want %+v", i, specs[i], want[i])
		}
	}

	for _, bad := range []string{"SMA", "SMA:x", "SMA:-1", "FOO:3"} {
		if _, err := ParseSpecs(bad); err == nil {
			t.Errorf("ParseSpecs(%q) should fail", bad)
		}
	}

	empty, err := ParseSpecs("")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: got %v, %v", empty, err)
	}
}
