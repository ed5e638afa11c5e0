package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Signal is the per-tick output of a strategy.
type Signal string

const (
	SignalHold Signal = "HOLD"
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

func (s Signal) String() string { return string(s) }

// Valid reports whether s is one of BUY, SELL or HOLD.
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool {
	return s == SignalBuy || s == SignalSell
}

// ParseSignal converts "BUY", "SELL" or "HOLD" into a Signal.
func ParseSignal(v string) (Signal, error) {
	s := Signal(v)
	if !s.Valid() {
		return "", fmt.Errorf("model: unknown signal %q", v)
	}
	return s, nil
}

// SignalEvent is what leaves the process for order-management collaborators.
type SignalEvent struct {
	Strategy  string  `json:"strategy"`
	Symbol    string  `json:"symbol"`
	Signal    Signal  `json:"signal"`
	Price     float64 `json:"price"`
	FastMA    float64 `json:"fast_ma"`
	SlowMA    float64 `json:"slow_ma"`
	Timestamp int64   `json:"ts"` // tick time, epoch ms
	TraceID   string  `json:"trace_id,omitempty"`
}

// StreamKey returns the Redis stream key: "signal:{symbol}".
func (e *SignalEvent) StreamKey() string {
	return "signal:" + e.Symbol
}

// PubSubChannel returns the Redis PubSub channel: "pub:signal:{symbol}".
func (e *SignalEvent) PubSubChannel() string {
	return "pub:signal:" + e.Symbol
}

// Reason renders a short human description for logs and alerts.
func (e *SignalEvent) Reason() string {
	switch e.Signal {
	case SignalBuy:
		return "golden cross (fast " + ftoa(e.FastMA) + " > slow " + ftoa(e.SlowMA) + ")"
	case SignalSell:
		return "death cross (fast " + ftoa(e.FastMA) + " < slow " + ftoa(e.SlowMA) + ")"
	}
	return "no crossover"
}

// JSON returns the JSON-encoded event.
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
