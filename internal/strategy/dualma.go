package strategy

import (
	"errors"
	"fmt"
	"math"

	"fastquant/internal/model"
	"fastquant/internal/ringbuf"
)

// ErrInvalidConfig is returned by NewDualMA for unusable parameters.
var ErrInvalidConfig = errors.New("strategy: invalid config")

// Phase is the lifecycle state of a DualMA.
type Phase int

const (
	// PhaseWarmup: fewer than slowPeriod prices observed.
	PhaseWarmup Phase = iota
	// PhaseActive: both averages are defined on every tick.
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "ACTIVE"
	}
	return "WARMUP"
}

// DualMA implements a dual simple-moving-average crossover.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross).
// Sell signal: fast SMA crosses below slow SMA (death cross).
//
// The first tick on which both averages exist only records them and yields
// HOLD, since there is no previous pair to compare against.
type DualMA struct {
	symbol     string
	fastPeriod int
	slowPeriod int

	// Windows over the last fastPeriod and slowPeriod prices
	fast *ringbuf.Window
	slow *ringbuf.Window

	// Averages from the most recent ACTIVE tick
	fastMA   float64
	slowMA   float64
	hasValue bool
}

// NewDualMA creates a crossover strategy for symbol with 0 < fast < slow.
func NewDualMA(symbol string, fastPeriod, slowPeriod int) (*DualMA, error) {
	switch {
	case symbol == "":
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidConfig)
	case fastPeriod <= 0 || slowPeriod <= 0:
		return nil, fmt.Errorf("%w: periods must be positive (fast=%d slow=%d)", ErrInvalidConfig, fastPeriod, slowPeriod)
	case fastPeriod >= slowPeriod:
		return nil, fmt.Errorf("%w: fast period %d must be below slow period %d", ErrInvalidConfig, fastPeriod, slowPeriod)
	}
	return &DualMA{
		symbol:     symbol,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		fast:       ringbuf.New(fastPeriod),
		slow:       ringbuf.New(slowPeriod),
	}, nil
}

func (d *DualMA) Name() string {
	return fmt.Sprintf("DualMA_%d_%d", d.fastPeriod, d.slowPeriod)
}

func (d *DualMA) Symbol() string  { return d.symbol }
func (d *DualMA) FastPeriod() int { return d.fastPeriod }
func (d *DualMA) SlowPeriod() int { return d.slowPeriod }

// FastMA returns the fast average from the latest ACTIVE tick, or 0 before that.
func (d *DualMA) FastMA() float64 { return d.fastMA }

// SlowMA returns the slow average from the latest ACTIVE tick, or 0 before that.
func (d *DualMA) SlowMA() float64 { return d.slowMA }

// Ready reports whether averages have been computed at least once.
func (d *DualMA) Ready() bool { return d.hasValue }

// Phase reports WARMUP until slowPeriod prices have been observed.
func (d *DualMA) Phase() Phase {
	if d.slow.Full() {
		return PhaseActive
	}
	return PhaseWarmup
}

// OnTick advances the state machine by one tick.
// Ticks for another symbol or with a non-finite price are ignored.
func (d *DualMA) OnTick(t model.Tick) model.Signal {
	if t.Symbol != d.symbol || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return model.SignalHold
	}

	d.fast.Push(t.Price)
	d.slow.Push(t.Price)

	if !d.slow.Full() {
		return model.SignalHold
	}

	newFast := d.fast.Mean()
	newSlow := d.slow.Mean()

	sig := model.SignalHold
	if d.hasValue {
		switch {
		case d.fastMA <= d.slowMA && newFast > newSlow:
			sig = model.SignalBuy
		case d.fastMA >= d.slowMA && newFast < newSlow:
			sig = model.SignalSell
		}
	}

	d.fastMA = newFast
	d.slowMA = newSlow
	d.hasValue = true
	return sig
}

// Backtest feeds ticks through this instance in order and returns one signal per tick.
func (d *DualMA) Backtest(ticks []model.Tick) []model.Signal {
	return Run(d, ticks)
}

// Replay runs ticks through a fresh DualMA.
func Replay(symbol string, fastPeriod, slowPeriod int, ticks []model.Tick) ([]model.Signal, error) {
	d, err := NewDualMA(symbol, fastPeriod, slowPeriod)
	if err != nil {
		return nil, err
	}
	return d.Backtest(ticks), nil
}

// State is a read-only view of a DualMA.
type State struct {
	Symbol       string  `json:"symbol"`
	FastPeriod   int     `json:"fast_period"`
	SlowPeriod   int     `json:"slow_period"`
	FastMA       float64 `json:"fast_ma"`
	SlowMA       float64 `json:"slow_ma"`
	Ready        bool    `json:"ready"`
	Phase        string  `json:"phase"`
	Observations int     `json:"observations"` // prices held in the slow window
}

// Snapshot returns the current state.
func (d *DualMA) Snapshot() State {
	return State{
		Symbol:       d.symbol,
		FastPeriod:   d.fastPeriod,
		SlowPeriod:   d.slowPeriod,
		FastMA:       d.fastMA,
		SlowMA:       d.slowMA,
		Ready:        d.hasValue,
		Phase:        d.Phase().String(),
		Observations: d.slow.Len(),
	}
}
