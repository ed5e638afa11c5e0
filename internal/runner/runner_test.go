package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastquant/internal/execution"
	"fastquant/internal/indicator"
	"fastquant/internal/metrics"
	"fastquant/internal/model"
	"fastquant/internal/notification"
	"fastquant/internal/portfolio"
	"fastquant/internal/strategy"
)

// vShape crosses up at index 6 and down at index 10 with fast=2, slow=4.
var vShape = []float64{10, 9, 8, 7, 6, 7, 8, 9, 10, 9, 8, 7, 6}

func ticks(symbol string, prices ...float64) []model.Tick {
	out := make([]model.Tick, len(prices))
	for i, p := range prices {
		out[i] = model.Tick{Symbol: symbol, Price: p, Volume: 1, Timestamp: int64(1700000000000 + i*1000)}
	}
	return out
}

// scripted emits a fixed signal sequence regardless of price.
type scripted struct {
	signals []model.Signal
	i       int
}

func (s *scripted) Name() string    { return "Scripted" }
func (s *scripted) Symbol() string  { return "BTCUSDT" }
func (s *scripted) FastMA() float64 { return 2 }
func (s *scripted) SlowMA() float64 { return 1 }
func (s *scripted) OnTick(model.Tick) model.Signal {
	if s.i >= len(s.signals) {
		return model.SignalHold
	}
	sig := s.signals[s.i]
	s.i++
	return sig
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.SignalEvent
	err    error
}

func (r *recordingSink) Publish(_ context.Context, ev model.SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}
func (r *recordingSink) Close() error { return nil }

type recordingJournal struct{ fills []model.Fill }

func (j *recordingJournal) RecordFill(_ context.Context, f model.Fill) error {
	j.fills = append(j.fills, f)
	return nil
}

type recordingNotifier struct{ alerts []notification.Alert }

func (n *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type failingOrders struct{ calls int }

func (f *failingOrders) PlaceOrder(context.Context, model.Order) (model.Fill, error) {
	f.calls++
	return model.Fill{}, errors.New("exchange unavailable")
}

type harness struct {
	r       *Runner
	reg     *prometheus.Registry
	paper   *execution.PaperExecutor
	pnl     *portfolio.PnLTracker
	sink    *recordingSink
	journal *recordingJournal
	alerts  *recordingNotifier
}

func newHarness(t *testing.T, strat Strategy, limits portfolio.RiskLimits, mutate func(*Config, *Deps)) *harness {
	t.Helper()
	h := &harness{
		reg:     prometheus.NewRegistry(),
		paper:   execution.NewPaperExecutor(0),
		pnl:     portfolio.NewPnLTracker(),
		sink:    &recordingSink{},
		journal: &recordingJournal{},
		alerts:  &recordingNotifier{},
	}
	cfg := DefaultConfig()
	d := Deps{
		Strategy: strat,
		Orders:   h.paper,
		Risk:     portfolio.NewRiskGate(limits),
		PnL:      h.pnl,
		Sinks:    []Sink{{Name: "test", Publisher: h.sink}},
		Journal:  h.journal,
		Notifier: h.alerts,
		Metrics:  metrics.New(h.reg),
	}
	if mutate != nil {
		mutate(&cfg, &d)
	}
	r, err := New(cfg, d)
	require.NoError(t, err)
	h.r = r
	return h
}

func dualMA(t *testing.T) Strategy {
	t.Helper()
	s, err := strategy.NewDualMA("BTCUSDT", 2, 4)
	require.NoError(t, err)
	return s
}

func (h *harness) feed(ts []model.Tick) []model.Signal {
	out := make([]model.Signal, len(ts))
	for i, tk := range ts {
		out[i] = h.r.OnTick(context.Background(), tk)
	}
	return out
}

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRunner_TradesCrossovers(t *testing.T) {
	h := newHarness(t, dualMA(t), portfolio.DefaultRiskLimits(), nil)

	sigs := h.feed(ticks("BTCUSDT", vShape...))
	assert.Equal(t, model.SignalBuy, sigs[6])
	assert.Equal(t, model.SignalSell, sigs[10])

	fills := h.paper.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, model.SideBuy, fills[0].Order.Side)
	assert.Equal(t, 8.0, fills[0].Price)
	assert.Equal(t, model.SideSell, fills[1].Order.Side)
	assert.Equal(t, 8.0, fills[1].Price)
	assert.Equal(t, 0.001, fills[0].Quantity)
	assert.NotEmpty(t, fills[0].Order.TraceID)
	assert.Equal(t, "golden cross", fills[0].Order.Reason[:12])

	st := h.r.Status()
	assert.Equal(t, model.SignalSell, st.LastSignal)
	assert.InDelta(t, 0, st.Position, 1e-12)
	assert.Equal(t, "BTCUSDT", st.Symbol)
	assert.Equal(t, int64(len(vShape)), st.Ticks)
	assert.Equal(t, int64(2), st.Orders)
	assert.Equal(t, 6.0, st.LastPrice)
	assert.InDelta(t, 6.5, st.FastMA, 1e-9)
	assert.InDelta(t, 7.5, st.SlowMA, 1e-9)

	assert.Len(t, h.sink.events, 2)
	assert.Len(t, h.journal.fills, 2)
	assert.Len(t, h.alerts.alerts, 2)
	assert.Len(t, h.pnl.Trades(), 2)

	assert.Equal(t, float64(len(vShape)), counter(t, h.reg, "fastquant_ticks_total", map[string]string{"symbol": "BTCUSDT"}))
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_orders_total", map[string]string{"side": "BUY", "status": "FILLED"}))
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_signals_total", map[string]string{"signal": "SELL"}))
}

func TestRunner_RepeatedSignalTradesOnce(t *testing.T) {
	strat := &scripted{signals: []model.Signal{
		model.SignalBuy, model.SignalBuy, model.SignalHold, model.SignalBuy, model.SignalSell,
	}}
	limits := portfolio.RiskLimits{MaxPosition: 10}
	h := newHarness(t, strat, limits, nil)

	h.feed(ticks("BTCUSDT", 100, 101, 102, 103, 104))

	fills := h.paper.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, model.SideBuy, fills[0].Order.Side)
	assert.Equal(t, model.SideSell, fills[1].Order.Side)
	assert.Len(t, h.sink.events, 4, "every actionable signal is published")
}

func TestRunner_RiskGateBlocksButAdvancesLastSignal(t *testing.T) {
	strat := &scripted{signals: []model.Signal{model.SignalBuy, model.SignalBuy, model.SignalSell}}
	h := newHarness(t, strat, portfolio.RiskLimits{MaxPosition: 0}, nil)

	h.feed(ticks("BTCUSDT", 100, 101, 102))

	assert.Empty(t, h.paper.Fills())
	st := h.r.Status()
	assert.Equal(t, model.SignalSell, st.LastSignal)
	assert.Zero(t, st.Position)
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_risk_blocked_orders_total", map[string]string{"side": "BUY"}))
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_risk_blocked_orders_total", map[string]string{"side": "SELL"}))
}

func TestRunner_PositionLimit(t *testing.T) {
	strat := &scripted{signals: []model.Signal{
		model.SignalBuy, model.SignalSell, model.SignalBuy, model.SignalSell, model.SignalSell,
	}}
	h := newHarness(t, strat, portfolio.RiskLimits{MaxPosition: 0.001}, nil)

	h.feed(ticks("BTCUSDT", 100, 101, 102, 103, 104))
	assert.Len(t, h.paper.Fills(), 4)
	assert.InDelta(t, 0, h.r.Position(), 1e-12)

	// Already at the cap: BUY is refused, SELL goes through.
	strat2 := &scripted{signals: []model.Signal{model.SignalBuy, model.SignalSell}}
	h2 := newHarness(t, strat2, portfolio.RiskLimits{MaxPosition: 0.001}, nil)
	h2.r.position = 0.001
	h2.r.lastSignal = model.SignalSell
	h2.feed(ticks("BTCUSDT", 100, 101))
	fills := h2.paper.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, model.SideSell, fills[0].Order.Side)
}

func TestRunner_OrderFailure(t *testing.T) {
	orders := &failingOrders{}
	strat := &scripted{signals: []model.Signal{model.SignalBuy, model.SignalBuy}}
	h := newHarness(t, strat, portfolio.DefaultRiskLimits(), func(_ *Config, d *Deps) {
		d.Orders = orders
	})

	h.feed(ticks("BTCUSDT", 100, 101))

	assert.Equal(t, 1, orders.calls, "a failed order is not retried on the repeated signal")
	st := h.r.Status()
	assert.Equal(t, model.SignalBuy, st.LastSignal)
	assert.Zero(t, st.Position)
	require.Len(t, h.alerts.alerts, 1)
	assert.Equal(t, notification.AlertWarning, h.alerts.alerts[0].Level)
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_orders_total", map[string]string{"status": "error"}))
}

func TestRunner_PublishFailureDoesNotBlockTrading(t *testing.T) {
	strat := &scripted{signals: []model.Signal{model.SignalBuy}}
	h := newHarness(t, strat, portfolio.DefaultRiskLimits(), nil)
	h.sink.err = errors.New("redis down")

	h.feed(ticks("BTCUSDT", 100))

	assert.Len(t, h.paper.Fills(), 1)
	assert.Equal(t, 1.0, counter(t, h.reg, "fastquant_signal_publish_failures_total", map[string]string{"sink": "test"}))
}

func TestRunner_RSIFilter(t *testing.T) {
	mon, err := indicator.NewMonitor([]indicator.Spec{{Type: "RSI", Period: 2}})
	require.NoError(t, err)

	signals := make([]model.Signal, 6)
	for i := range signals {
		signals[i] = model.SignalHold
	}
	signals[5] = model.SignalBuy

	h := newHarness(t, &scripted{signals: signals}, portfolio.DefaultRiskLimits(), func(c *Config, d *Deps) {
		c.RSIFilter = true
		d.Monitor = mon
	})

	// Strictly rising prices: RSI is 100.
	h.feed(ticks("BTCUSDT", 1, 2, 3, 4, 5, 6))

	assert.Empty(t, h.paper.Fills())
	assert.Equal(t, model.SignalBuy, h.r.Status().LastSignal)
	assert.Equal(t, 100.0, counter(t, h.reg, "fastquant_indicator_value", map[string]string{"name": "RSI_2"}))
}

func TestRunner_RunStopsOnClose(t *testing.T) {
	h := newHarness(t, dualMA(t), portfolio.DefaultRiskLimits(), nil)

	in := make(chan model.Tick, len(vShape))
	for _, tk := range ticks("BTCUSDT", vShape...) {
		in <- tk
	}
	close(in)

	require.NoError(t, h.r.Run(context.Background(), in))
	assert.False(t, h.r.Status().Running)
	assert.Len(t, h.paper.Fills(), 2)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, dualMA(t), portfolio.DefaultRiskLimits(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx, make(chan model.Tick)) }()

	require.Eventually(t, func() bool { return h.r.Status().Running }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
	for _, want := range []string{"strategy", "order placer", "risk gate", "pnl tracker", "trade quantity"} {
		assert.Contains(t, err.Error(), want)
	}
}
