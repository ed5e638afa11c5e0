package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fastquant/internal/model"
)

// PaperExecutor simulates order execution without real venue calls.
// Used for backtesting and paper trading.
type PaperExecutor struct {
	mu    sync.RWMutex
	fills []model.Fill

	// Simulation parameters
	slippageBps decimal.Decimal // basis points of slippage (e.g., 5 = 0.05%)
	now         func() time.Time
}

// NewPaperExecutor creates a paper trading executor.
// slippageBps controls simulated slippage in basis points.
func NewPaperExecutor(slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]model.Fill, 0, 1000),
		slippageBps: decimal.NewFromFloat(slippageBps),
		now:         time.Now,
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// PlaceOrder fills the order immediately at its reference price, moved
// against the order by the configured slippage.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, order model.Order) (model.Fill, error) {
	if err := ctx.Err(); err != nil {
		return model.Fill{}, err
	}
	if order.Quantity <= 0 || order.Price <= 0 {
		return model.Fill{}, fmt.Errorf("%w: qty=%v price=%v", ErrInvalidOrder, order.Quantity, order.Price)
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = NewClientOrderID("paper-")
	}

	price := decimal.NewFromFloat(order.Price)
	slippage := price.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))
	if order.Side == model.SideBuy {
		price = price.Add(slippage) // buy higher
	} else {
		price = price.Sub(slippage) // sell lower
	}

	fillPrice, _ := price.Float64()
	slip, _ := slippage.Float64()

	fill := model.Fill{
		OrderID:   order.ClientOrderID,
		Order:     order,
		Price:     fillPrice,
		Quantity:  order.Quantity,
		Slippage:  slip,
		Status:    StatusFilled,
		FilledAt:  p.now(),
		Simulated: true,
	}

	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	slog.Info("paper fill",
		"side", string(order.Side),
		"symbol", order.Symbol,
		"qty", order.Quantity,
		"price", fillPrice,
		"slippage", slip,
		"order_id", fill.OrderID,
		"reason", order.Reason,
	)
	return fill, nil
}
