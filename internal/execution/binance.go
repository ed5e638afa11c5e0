package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"fastquant/internal/model"
)

// TestnetBaseURL is the Binance spot testnet REST endpoint.
const TestnetBaseURL = "https://testnet.binance.vision"

// BinanceConfig configures a BinanceExecutor.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
	BaseURL   string // overrides the default endpoint when set
}

// BinanceExecutor places MARKET orders on Binance spot.
type BinanceExecutor struct {
	client *binance.Client
}

// NewBinanceExecutor creates a live executor.
func NewBinanceExecutor(cfg BinanceConfig) *BinanceExecutor {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.Testnet:
		client.BaseURL = TestnetBaseURL
	}
	return &BinanceExecutor{client: client}
}

// PlaceOrder sends a MARKET order and converts the venue response into a Fill.
// The fill price is the volume-weighted average: cumulative quote / executed qty.
func (b *BinanceExecutor) PlaceOrder(ctx context.Context, order model.Order) (model.Fill, error) {
	if order.Quantity <= 0 || order.Symbol == "" {
		return model.Fill{}, fmt.Errorf("%w: symbol=%q qty=%v", ErrInvalidOrder, order.Symbol, order.Quantity)
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = NewClientOrderID("fq-")
	}

	resp, err := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(binance.SideType(order.Side)).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(order.Quantity, 'f', -1, 64)).
		NewClientOrderID(order.ClientOrderID).
		Do(ctx)
	if err != nil {
		return model.Fill{}, fmt.Errorf("execution: binance create order %s %s: %w", order.Side, order.Symbol, err)
	}

	status := string(resp.Status)
	if status != StatusFilled && status != StatusPartiallyFilled {
		return model.Fill{}, fmt.Errorf("%w: order %d status %s", ErrRejected, resp.OrderID, status)
	}

	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return model.Fill{}, fmt.Errorf("execution: parse executed qty %q: %w", resp.ExecutedQuantity, err)
	}
	quote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return model.Fill{}, fmt.Errorf("execution: parse quote qty %q: %w", resp.CummulativeQuoteQuantity, err)
	}

	price := decimal.NewFromFloat(order.Price)
	if executed.IsPositive() {
		price = quote.Div(executed)
	}
	fillPrice, _ := price.Float64()
	qty, _ := executed.Float64()

	filledAt := time.Now()
	if resp.TransactTime > 0 {
		filledAt = time.UnixMilli(resp.TransactTime)
	}

	fill := model.Fill{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Order:    order,
		Price:    fillPrice,
		Quantity: qty,
		Status:   status,
		FilledAt: filledAt,
	}
	if order.Price > 0 {
		fill.Slippage = fillPrice - order.Price
		if order.Side == model.SideSell {
			fill.Slippage = -fill.Slippage
		}
	}

	slog.Info("binance fill",
		"side", string(order.Side),
		"symbol", order.Symbol,
		"qty", qty,
		"price", fillPrice,
		"order_id", fill.OrderID,
		"client_order_id", resp.ClientOrderID,
		"status", status,
	)
	return fill, nil
}

// LastPrice returns the latest ticker price for symbol.
func (b *BinanceExecutor) LastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("execution: binance price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil {
				return 0, fmt.Errorf("execution: parse price %q: %w", p.Price, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("execution: no price for %s", symbol)
}
