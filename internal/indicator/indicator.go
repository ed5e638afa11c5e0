// Package indicator provides technical indicator calculations over price data.
//
// Two flavours live here. Batch functions (SMA, EMA, StdDev, RollingStdDev,
// BollingerBands) are pure and take a complete series. Streaming indicators
// implement the Indicator interface and are fed one price at a time by the
// Monitor on the live tick path.
package indicator

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA", "RSI").
	Name() string

	// Update feeds a new price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}
