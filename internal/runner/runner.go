// Package runner drives one strategy for one symbol: it feeds ticks to the
// strategy, publishes its signals and turns signal changes into orders
// under the risk gate.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"fastquant/internal/execution"
	"fastquant/internal/indicator"
	"fastquant/internal/logger"
	"fastquant/internal/metrics"
	"fastquant/internal/model"
	"fastquant/internal/notification"
	"fastquant/internal/portfolio"
	"fastquant/internal/strategy"
)

// Strategy is a crossover strategy that exposes its averages.
type Strategy interface {
	strategy.Strategy
	FastMA() float64
	SlowMA() float64
}

// FillRecorder persists fills (the SQLite trade journal).
type FillRecorder interface {
	RecordFill(ctx context.Context, fill model.Fill) error
}

// Sink is a named signal publisher; the name labels metrics and logs.
type Sink struct {
	Name      string
	Publisher model.SignalPublisher
}

// Config holds the trading parameters of one runner.
type Config struct {
	TradeQuantity float64
	EnableTrading bool // live orders; only used to label logs

	// RSI filter on execution: skip BUY above Overbought, SELL below Oversold.
	RSIFilter     bool
	RSIOverbought float64
	RSIOversold   float64

	PublishTimeout time.Duration
}

// DefaultConfig mirrors the bot defaults.
func DefaultConfig() Config {
	return Config{
		TradeQuantity:  0.001,
		RSIOverbought:  70,
		RSIOversold:    30,
		PublishTimeout: 2 * time.Second,
	}
}

// Deps are the collaborators of a runner. Strategy, Orders, Risk and PnL are
// required; the rest may be nil.
type Deps struct {
	Strategy Strategy
	Orders   model.OrderPlacer
	Risk     *portfolio.RiskGate
	PnL      *portfolio.PnLTracker

	Monitor  *indicator.Monitor
	Sinks    []Sink
	Journal  FillRecorder
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Status is a point-in-time view of a runner.
type Status struct {
	Running    bool         `json:"is_running"`
	Symbol     string       `json:"symbol"`
	Position   float64      `json:"position"`
	LastSignal model.Signal `json:"last_signal"`
	FastMA     float64      `json:"fast_ma"`
	SlowMA     float64      `json:"slow_ma"`
	LastPrice  float64      `json:"last_price"`
	Ticks      int64        `json:"ticks"`
	Orders     int64        `json:"orders"`
}

// Runner is a single-goroutine actor; only Status and LastPrice may be
// called concurrently with Run.
type Runner struct {
	cfg Config
	d   Deps
	log *slog.Logger

	mu         sync.RWMutex
	running    bool
	position   float64
	lastSignal model.Signal
	lastPrice  float64
	fastMA     float64
	slowMA     float64
	ticks      int64
	orders     int64
}

// New validates cfg and deps.
func New(cfg Config, d Deps) (*Runner, error) {
	var errs []error
	if d.Strategy == nil {
		errs = append(errs, errors.New("strategy is required"))
	}
	if d.Orders == nil {
		errs = append(errs, errors.New("order placer is required"))
	}
	if d.Risk == nil {
		errs = append(errs, errors.New("risk gate is required"))
	}
	if d.PnL == nil {
		errs = append(errs, errors.New("pnl tracker is required"))
	}
	if cfg.TradeQuantity <= 0 || math.IsNaN(cfg.TradeQuantity) {
		errs = append(errs, fmt.Errorf("trade quantity must be positive, got %v", cfg.TradeQuantity))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		d:          d,
		log:        log.With("strategy", d.Strategy.Name(), "symbol", d.Strategy.Symbol()),
		lastSignal: model.SignalHold,
	}, nil
}

// Symbol returns the traded symbol.
func (r *Runner) Symbol() string { return r.d.Strategy.Symbol() }

// Run consumes ticks until ctx is cancelled or ticks is closed.
// A closed channel is a normal end and returns nil.
func (r *Runner) Run(ctx context.Context, ticks <-chan model.Tick) error {
	r.setRunning(true)
	defer r.setRunning(false)
	r.log.Info("strategy runner started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("strategy runner stopped")
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				r.log.Info("tick stream closed, strategy runner stopped")
				return nil
			}
			r.OnTick(ctx, t)
		}
	}
}

// OnTick processes one tick synchronously and returns the strategy signal.
func (r *Runner) OnTick(ctx context.Context, t model.Tick) model.Signal {
	start := time.Now()
	sig := r.d.Strategy.OnTick(t)
	fast, slow := r.d.Strategy.FastMA(), r.d.Strategy.SlowMA()

	var readings []indicator.Reading
	if r.d.Monitor != nil {
		readings = r.d.Monitor.Update(t)
	}

	r.mu.Lock()
	r.ticks++
	if t.Symbol == r.Symbol() && t.Usable() {
		r.lastPrice = t.Price
	}
	r.fastMA, r.slowMA = fast, slow
	r.mu.Unlock()

	r.observe(t, sig, fast, slow, readings, time.Since(start))

	if !sig.Actionable() {
		return sig
	}

	traceID := logger.GenerateTraceID(t.Symbol, t.Time())
	ctx = logger.WithTraceID(ctx, traceID)
	ev := model.SignalEvent{
		Strategy:  r.d.Strategy.Name(),
		Symbol:    t.Symbol,
		Signal:    sig,
		Price:     t.Price,
		FastMA:    fast,
		SlowMA:    slow,
		Timestamp: t.Timestamp,
		TraceID:   traceID,
	}
	r.log.Info("signal",
		append([]any{"signal", sig.String(), "price", t.Price, "fast_ma", fast, "slow_ma", slow},
			logger.LogWithTrace(ctx)...)...)
	r.publish(ctx, ev)

	r.mu.Lock()
	changed := sig != r.lastSignal
	// The last signal advances even if the trade is blocked or fails, so a
	// repeated signal never retries.
	r.lastSignal = sig
	r.mu.Unlock()

	if changed {
		r.execute(ctx, ev)
	}
	return sig
}

func (r *Runner) observe(t model.Tick, sig model.Signal, fast, slow float64, readings []indicator.Reading, took time.Duration) {
	m := r.d.Metrics
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(t.Symbol).Inc()
	m.TickProcessDur.Observe(took.Seconds())
	m.SignalsTotal.WithLabelValues(t.Symbol, sig.String()).Inc()
	m.MovingAverage.WithLabelValues(t.Symbol, "fast").Set(fast)
	m.MovingAverage.WithLabelValues(t.Symbol, "slow").Set(slow)
	for _, rd := range readings {
		if rd.Ready {
			m.IndicatorValue.WithLabelValues(rd.Symbol, rd.Name).Set(rd.Value)
		}
	}
}

func (r *Runner) publish(ctx context.Context, ev model.SignalEvent) {
	for _, s := range r.d.Sinks {
		pctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		start := time.Now()
		err := s.Publisher.Publish(pctx, ev)
		cancel()
		if r.d.Metrics != nil {
			r.d.Metrics.PublishDur.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if r.d.Metrics != nil {
				r.d.Metrics.PublishFailures.WithLabelValues(s.Name).Inc()
			}
			r.log.Warn("signal publish failed", append([]any{"sink", s.Name, "error", err}, logger.LogWithTrace(ctx)...)...)
		}
	}
}

// execute applies the risk gate and the optional RSI filter, places the
// order and books the fill.
func (r *Runner) execute(ctx context.Context, ev model.SignalEvent) {
	side, ok := model.SideFor(ev.Signal)
	if !ok {
		return
	}
	trace := logger.LogWithTrace(ctx)

	position := r.Position()
	if err := r.d.Risk.Check(side, position); err != nil {
		r.block(side, "risk gate", append([]any{"position", position, "error", err}, trace...))
		return
	}
	if reason, blocked := r.rsiBlocks(ev.Symbol, side); blocked {
		r.block(side, reason, trace)
		return
	}

	mode := "paper"
	if r.cfg.EnableTrading {
		mode = "live"
	}
	r.log.Info("placing order", append([]any{"mode", mode, "side", side, "qty", r.cfg.TradeQuantity, "price", ev.Price}, trace...)...)

	order := model.Order{
		ClientOrderID: execution.NewClientOrderID("fq-"),
		Strategy:      ev.Strategy,
		Symbol:        ev.Symbol,
		Side:          side,
		Type:          model.OrderTypeMarket,
		Quantity:      r.cfg.TradeQuantity,
		Price:         ev.Price,
		Timestamp:     ev.Timestamp,
		Reason:        ev.Reason(),
		TraceID:       ev.TraceID,
	}
	fill, err := r.d.Orders.PlaceOrder(ctx, order)
	if err != nil {
		r.countOrder(side, "error")
		r.log.Error("order failed", append([]any{"side", side, "error", err}, trace...)...)
		r.notify(ctx, notification.ErrorAlert(fmt.Sprintf("%s %s order failed", side, ev.Symbol), err))
		return
	}
	r.book(ctx, fill)
}

func (r *Runner) book(ctx context.Context, fill model.Fill) {
	side := fill.Order.Side

	r.mu.Lock()
	if side == model.SideBuy {
		r.position += fill.Quantity
	} else {
		r.position -= fill.Quantity
	}
	position := r.position
	r.orders++
	r.mu.Unlock()

	realized := r.d.PnL.RecordFill(fill)
	r.d.Risk.RecordPnL(realized)

	r.countOrder(side, fill.Status)
	if m := r.d.Metrics; m != nil {
		m.Position.WithLabelValues(fill.Order.Symbol).Set(position)
		total, _ := r.d.PnL.RealizedPnL().Float64()
		m.RealizedPnL.Set(total)
	}

	r.log.Info("order filled", append([]any{
		"order_id", fill.OrderID, "side", side, "qty", fill.Quantity, "price", fill.Price,
		"slippage", fill.Slippage, "position", position, "realized_pnl", realized.StringFixed(2),
	}, logger.LogWithTrace(ctx)...)...)

	if r.d.Journal != nil {
		if err := r.d.Journal.RecordFill(ctx, fill); err != nil {
			r.log.Error("journal write failed", "order_id", fill.OrderID, "error", err)
		}
	}
	r.notify(ctx, notification.FillAlert(fill))
}

func (r *Runner) rsiBlocks(symbol string, side model.OrderSide) (string, bool) {
	if !r.cfg.RSIFilter || r.d.Monitor == nil {
		return "", false
	}
	rsi, ok := r.d.Monitor.RSI(symbol)
	if !ok {
		return "", false
	}
	if side == model.SideBuy && rsi > r.cfg.RSIOverbought {
		return fmt.Sprintf("rsi %.1f overbought", rsi), true
	}
	if side == model.SideSell && rsi < r.cfg.RSIOversold {
		return fmt.Sprintf("rsi %.1f oversold", rsi), true
	}
	return "", false
}

func (r *Runner) block(side model.OrderSide, reason string, attrs []any) {
	if r.d.Metrics != nil {
		r.d.Metrics.RiskBlocks.WithLabelValues(r.Symbol(), string(side)).Inc()
	}
	r.log.Warn("order suppressed", append([]any{"side", side, "reason", reason}, attrs...)...)
}

func (r *Runner) countOrder(side model.OrderSide, status string) {
	if r.d.Metrics != nil {
		r.d.Metrics.OrdersTotal.WithLabelValues(r.Symbol(), string(side), status).Inc()
	}
}

func (r *Runner) notify(ctx context.Context, a notification.Alert) {
	if r.d.Notifier == nil {
		return
	}
	if err := r.d.Notifier.Send(ctx, a); err != nil {
		r.log.Warn("notification failed", "title", a.Title, "error", err)
	}
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.running = v
	r.mu.Unlock()
}

// Position returns the signed position.
func (r *Runner) Position() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}

// LastPrice returns the last traded price seen, or 0.
func (r *Runner) LastPrice() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastPrice
}

// Status reports the runner state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Running:    r.running,
		Symbol:     r.d.Strategy.Symbol(),
		Position:   r.position,
		LastSignal: r.lastSignal,
		FastMA:     r.fastMA,
		SlowMA:     r.slowMA,
		LastPrice:  r.lastPrice,
		Ticks:      r.ticks,
		Orders:     r.orders,
	}
}
