package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"fastquant/internal/model"
)

// ErrRiskLimit is returned when an order would violate a risk limit.
var ErrRiskLimit = errors.New("portfolio: risk limit")

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	MaxPosition  float64 `json:"max_position"`   // absolute position cap per symbol
	MaxDailyLoss float64 `json:"max_daily_loss"` // 0 disables the check
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPosition:  1.0,
		MaxDailyLoss: 0,
	}
}

// RiskGate validates orders against risk limits and tracks daily P&L.
type RiskGate struct {
	mu       sync.RWMutex
	limits   RiskLimits
	dailyPnL decimal.Decimal
	equity   decimal.Decimal
	peak     decimal.Decimal
}

// NewRiskGate creates a RiskGate with the given limits.
func NewRiskGate(limits RiskLimits) *RiskGate {
	return &RiskGate{limits: limits}
}

// Check returns nil when an order on side may be placed with the current
// signed position. BUY is blocked once position >= MaxPosition, SELL once
// position <= -MaxPosition. Once the day's loss reaches MaxDailyLoss only
// orders that reduce an open position pass.
func (rg *RiskGate) Check(side model.OrderSide, position float64) error {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	if side == model.SideBuy && position >= rg.limits.MaxPosition {
		return fmt.Errorf("%w: position %.8g at upper limit %.8g", ErrRiskLimit, position, rg.limits.MaxPosition)
	}
	if side == model.SideSell && position <= -rg.limits.MaxPosition {
		return fmt.Errorf("%w: position %.8g at lower limit %.8g", ErrRiskLimit, position, -rg.limits.MaxPosition)
	}
	if rg.limits.MaxDailyLoss > 0 && opens(side, position) &&
		rg.dailyPnL.LessThanOrEqual(decimal.NewFromFloat(-rg.limits.MaxDailyLoss)) {
		return fmt.Errorf("%w: daily loss %s reached %.2f", ErrRiskLimit, rg.dailyPnL.StringFixed(2), rg.limits.MaxDailyLoss)
	}
	return nil
}

// opens reports whether an order on side grows the absolute position.
func opens(side model.OrderSide, position float64) bool {
	if side == model.SideBuy {
		return position >= 0
	}
	return position <= 0
}

// RecordPnL updates daily P&L and equity tracking.
func (rg *RiskGate) RecordPnL(pnl decimal.Decimal) {
	if pnl.IsZero() {
		return
	}
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.dailyPnL = rg.dailyPnL.Add(pnl)
	rg.equity = rg.equity.Add(pnl)
	if rg.equity.GreaterThan(rg.peak) {
		rg.peak = rg.equity
	}

	slog.Debug("risk pnl updated",
		"daily_pnl", rg.dailyPnL.StringFixed(2),
		"equity", rg.equity.StringFixed(2),
		"peak", rg.peak.StringFixed(2),
	)
}

// ResetDaily resets the daily P&L counter.
func (rg *RiskGate) ResetDaily() {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.dailyPnL = decimal.Zero
}

// RiskStatus is a snapshot of the gate.
type RiskStatus struct {
	Limits   RiskLimits      `json:"limits"`
	DailyPnL decimal.Decimal `json:"daily_pnl"`
	Equity   decimal.Decimal `json:"equity"`
	Drawdown decimal.Decimal `json:"drawdown"` // peak - equity
}

// Status returns current risk status.
func (rg *RiskGate) Status() RiskStatus {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return RiskStatus{
		Limits:   rg.limits,
		DailyPnL: rg.dailyPnL,
		Equity:   rg.equity,
		Drawdown: rg.peak.Sub(rg.equity),
	}
}
