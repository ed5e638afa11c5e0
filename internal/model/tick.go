package model

import (
	"encoding/json"
	"math"
	"time"
)

// Tick is a single trade print from the market-data feed.
// Timestamp is the exchange trade time in epoch milliseconds.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"ts"`
}

// NewTick builds a tick stamped with t.
func NewTick(symbol string, price, volume float64, t time.Time) Tick {
	return Tick{Symbol: symbol, Price: price, Volume: volume, Timestamp: t.UnixMilli()}
}

// Usable reports whether the tick carries a finite price and a symbol.
func (t *Tick) Usable() bool {
	return t.Symbol != "" && !math.IsNaN(t.Price) && !math.IsInf(t.Price, 0)
}

// Time returns the tick timestamp as UTC time.
func (t *Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// StreamKey returns the Redis stream key: "tick:{symbol}".
func (t *Tick) StreamKey() string {
	return TickStreamKey(t.Symbol)
}

// TickStreamKey returns the Redis stream key for a symbol's ticks.
func TickStreamKey(symbol string) string {
	return "tick:" + symbol
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
