// Package execution places orders, either against Binance spot or in a paper
// simulation, and journals every fill to SQLite.
//
// Both executors implement model.OrderPlacer so the strategy runner does not
// know which one it drives.
package execution

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrRejected is returned when the venue refuses an order.
	ErrRejected = errors.New("execution: order rejected")
	// ErrInvalidOrder is returned for orders that cannot be sent at all.
	ErrInvalidOrder = errors.New("execution: invalid order")
)

// Fill statuses.
const (
	StatusFilled          = "FILLED"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
)

// NewClientOrderID returns a venue-safe client order id with the given prefix.
// Binance accepts at most 36 characters from [A-Za-z0-9_-].
func NewClientOrderID(prefix string) string {
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}
