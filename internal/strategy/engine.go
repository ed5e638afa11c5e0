// Package strategy provides tick-driven trading strategies.
//
// A Strategy receives ticks for one symbol and emits exactly one signal per
// tick (BUY, SELL or HOLD). Strategies are not synchronized: each instance
// has a single owner, normally a runner.Runner goroutine.
package strategy

import "fastquant/internal/model"

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy instance.
	Name() string

	// Symbol returns the only symbol the strategy reacts to.
	Symbol() string

	// OnTick advances the strategy by one tick and returns its signal.
	// Ticks for other symbols are ignored and yield HOLD.
	OnTick(tick model.Tick) model.Signal
}

// Run feeds ticks through s in order and returns one signal per tick.
// Empty input yields an empty slice.
func Run(s Strategy, ticks []model.Tick) []model.Signal {
	signals := make([]model.Signal, 0, len(ticks))
	for _, t := range ticks {
		signals = append(signals, s.OnTick(t))
	}
	return signals
}

// Counts tallies signals by kind.
type Counts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

// Count tallies a signal series.
func Count(signals []model.Signal) Counts {
	var c Counts
	for _, s := range signals {
		switch s {
		case model.SignalBuy:
			c.Buy++
		case model.SignalSell:
			c.Sell++
		default:
			c.Hold++
		}
	}
	return c
}
