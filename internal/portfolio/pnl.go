package portfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fastquant/internal/model"
)

// Trade represents a completed fill for P&L calculation.
type Trade struct {
	Timestamp int64           `json:"ts"` // epoch ms
	Symbol    string          `json:"symbol"`
	Side      model.OrderSide `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	PnL       decimal.Decimal `json:"pnl"`     // realized by this trade
	Closing   bool            `json:"closing"` // reduced an open position
}

// TradeFromFill converts an execution fill into a Trade.
func TradeFromFill(f model.Fill) Trade {
	ts := f.Order.Timestamp
	if ts == 0 {
		ts = f.FilledAt.UnixMilli()
	}
	return Trade{
		Timestamp: ts,
		Symbol:    f.Order.Symbol,
		Side:      f.Order.Side,
		Price:     decimal.NewFromFloat(f.Price),
		Qty:       decimal.NewFromFloat(f.Quantity),
	}
}

// PnLTracker tracks realized and unrealized P&L with average-cost accounting.
// Safe for concurrent use.
type PnLTracker struct {
	mu        sync.RWMutex
	trades    []Trade
	realized  decimal.Decimal
	positions map[string]*Position
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]Trade, 0, 500),
		positions: make(map[string]*Position),
	}
}

// RecordTrade books a trade and returns the P&L it realized.
func (p *PnLTracker) RecordTrade(t Trade) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[t.Symbol]
	if !ok {
		pos = &Position{Symbol: t.Symbol}
		p.positions[t.Symbol] = pos
	}

	delta := t.Qty
	if t.Side == model.SideSell {
		delta = delta.Neg()
	}
	before := pos.Qty
	t.PnL = pos.apply(delta, t.Price)
	t.Closing = !before.IsZero() && before.Sign() != delta.Sign()
	p.realized = p.realized.Add(t.PnL)
	p.trades = append(p.trades, t)

	if t.Closing {
		slog.Info("realized pnl",
			"symbol", t.Symbol,
			"side", string(t.Side),
			"pnl", t.PnL.StringFixed(2),
			"price", t.Price.String(),
			"qty", t.Qty.String(),
		)
	}
	return t.PnL
}

// RecordFill books an execution fill.
func (p *PnLTracker) RecordFill(f model.Fill) decimal.Decimal {
	return p.RecordTrade(TradeFromFill(f))
}

// RealizedPnL returns total realized P&L.
func (p *PnLTracker) RealizedPnL() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// UnrealizedPnL marks open positions to prices (symbol → last price).
// Symbols without a price contribute nothing.
func (p *PnLTracker) UnrealizedPnL(prices map[string]float64) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unrealizedLocked(prices)
}

func (p *PnLTracker) unrealizedLocked(prices map[string]float64) decimal.Decimal {
	total := decimal.Zero
	for sym, pos := range p.positions {
		if px, ok := prices[sym]; ok {
			total = total.Add(pos.UnrealizedPnL(decimal.NewFromFloat(px)))
		}
	}
	return total
}

// Position returns the current position in symbol.
func (p *PnLTracker) Position(symbol string) Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pos, ok := p.positions[symbol]; ok {
		return *pos
	}
	return Position{Symbol: symbol}
}

// Trades returns a snapshot of all trades.
func (p *PnLTracker) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// Stats is a P&L summary.
type Stats struct {
	TotalTrades   int             `json:"total_trades"`
	BuyTrades     int             `json:"buy_trades"`
	SellTrades    int             `json:"sell_trades"`
	ClosingTrades int             `json:"closing_trades"`
	WinningTrades int             `json:"winning_trades"`
	WinRate       float64         `json:"win_rate"` // percent of closing trades with positive P&L
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	OpenPositions []Position      `json:"open_positions"`
}

// Stats returns the current summary, marking open positions to prices.
func (p *PnLTracker) Stats(prices map[string]float64) Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Stats{
		TotalTrades: len(p.trades),
		RealizedPnL: p.realized,
	}
	for _, t := range p.trades {
		if t.Side == model.SideBuy {
			s.BuyTrades++
		} else {
			s.SellTrades++
		}
		if t.Closing {
			s.ClosingTrades++
			if t.PnL.IsPositive() {
				s.WinningTrades++
			}
		}
	}
	if s.ClosingTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.ClosingTrades) * 100
	}

	s.UnrealizedPnL = p.unrealizedLocked(prices)
	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)

	for _, pos := range p.positions {
		if !pos.IsFlat() {
			s.OpenPositions = append(s.OpenPositions, *pos)
		}
	}
	sort.Slice(s.OpenPositions, func(i, j int) bool {
		return s.OpenPositions[i].Symbol < s.OpenPositions[j].Symbol
	})
	return s
}

// WriteReport prints a human-readable trade report.
func (p *PnLTracker) WriteReport(w io.Writer, prices map[string]float64, quote string) error {
	s := p.Stats(prices)
	line := "============================================================"
	sep := "------------------------------------------------------------"

	var err error
	pf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	pf("\n%s\nTRADE REPORT\n%s\n", line, line)
	pf("Total trades:   %d\n", s.TotalTrades)
	pf("Buy trades:     %d\n", s.BuyTrades)
	pf("Sell trades:    %d\n", s.SellTrades)
	pf("Win rate:       %.2f%%\n", s.WinRate)
	pf("%s\n", sep)
	pf("Realized PnL:   %s %s\n", s.RealizedPnL.StringFixed(2), quote)
	pf("Unrealized PnL: %s %s\n", s.UnrealizedPnL.StringFixed(2), quote)
	pf("Total PnL:      %s %s\n", s.TotalPnL.StringFixed(2), quote)
	pf("%s\n", sep)
	if len(s.OpenPositions) == 0 {
		pf("Open positions: none\n")
	}
	for _, pos := range s.OpenPositions {
		pf("Position %-10s qty=%s avg=%s %s\n", pos.Symbol, pos.Qty.String(), pos.AvgPrice.StringFixed(2), quote)
	}
	pf("%s\n\n", line)
	return err
}

var csvHeader = []string{"Timestamp", "DateTime", "Symbol", "Side", "Price", "Quantity", "PnL"}

// ExportCSV writes every trade as CSV with a header row.
func (p *PnLTracker) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range p.Trades() {
		row := []string{
			strconv.FormatInt(t.Timestamp, 10),
			time.UnixMilli(t.Timestamp).UTC().Format("2006-01-02 15:04:05"),
			t.Symbol,
			string(t.Side),
			t.Price.String(),
			t.Qty.String(),
			t.PnL.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSVFile writes the trade CSV to path.
func (p *PnLTracker) ExportCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("portfolio: create %s: %w", path, err)
	}
	if err := p.ExportCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("portfolio: export csv: %w", err)
	}
	slog.Info("trades exported", "path", path, "trades", len(p.Trades()))
	return f.Close()
}
