package indicator

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidPeriod is returned when period <= 0 or period > len(data).
	ErrInvalidPeriod = errors.New("indicator: invalid period")
	// ErrNonFinite is returned when the input contains NaN or ±Inf.
	ErrNonFinite = errors.New("indicator: non-finite input")
	// ErrInvalidMultiplier is returned for a negative or non-finite band multiplier.
	ErrInvalidMultiplier = errors.New("indicator: invalid multiplier")
)

// Validate reports why a batch call over data with the given period would
// return an empty result. It returns nil when the input is usable.
func Validate(data []float64, period int) error {
	if period <= 0 || period > len(data) {
		return fmt.Errorf("%w: period=%d len=%d", ErrInvalidPeriod, period, len(data))
	}
	for i, v := range data {
		if !finite(v) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}

// ValidateMultiplier checks a Bollinger band multiplier.
func ValidateMultiplier(m float64) error {
	if !finite(m) || m < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, m)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
