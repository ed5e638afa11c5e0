package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fastquant/config"
	"fastquant/internal/api"
	"fastquant/internal/execution"
	"fastquant/internal/gateway"
	"fastquant/internal/indicator"
	"fastquant/internal/marketdata/binance"
	"fastquant/internal/marketdata/bus"
	"fastquant/internal/markethours"
	"fastquant/internal/metrics"
	"fastquant/internal/model"
	"fastquant/internal/notification"
	"fastquant/internal/portfolio"
	"fastquant/internal/runner"
	kafkastore "fastquant/internal/store/kafka"
	redisstore "fastquant/internal/store/redis"
	sqlitestore "fastquant/internal/store/sqlite"
	"fastquant/internal/strategy"
)

const quoteAsset = "USDT"

type namedRecorder struct {
	name     string
	recorder model.TickRecorder
}

// pingFunc adapts a Ping method to metrics.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// trader holds the wired components of one process.
type trader struct {
	log  *slog.Logger
	prom *metrics.Metrics

	source    model.TickSource
	recorders []namedRecorder
	runners   []*runner.Runner
	pnl       *portfolio.PnLTracker
	risk      *portfolio.RiskGate
	prices    *execution.BinanceExecutor
	session   markethours.Session
	days      *markethours.DayRoller

	hub          *gateway.Hub
	redisClient  *goredis.Client
	signalWriter *redisstore.SignalWriter
	dbPinger     metrics.Pinger

	closers []io.Closer
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, prom *metrics.Metrics, health *metrics.HealthStatus) (*trader, error) {
	t := &trader{
		log:  log,
		prom: prom,
		pnl:  portfolio.NewPnLTracker(),
		risk: portfolio.NewRiskGate(portfolio.RiskLimits{MaxPosition: cfg.Trading.MaxPosition, MaxDailyLoss: cfg.Trading.MaxDailyLoss}),
	}
	t.session = markethours.Session{ResetHour: cfg.Trading.DailyResetHour}
	t.days = markethours.NewDayRoller(t.session)
	ok := false
	defer func() {
		if !ok {
			t.close()
		}
	}()

	binanceCfg := execution.BinanceConfig{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		Testnet:   cfg.Binance.Testnet,
		BaseURL:   cfg.Binance.RESTBaseURL,
	}
	t.prices = execution.NewBinanceExecutor(binanceCfg)

	var orders model.OrderPlacer
	if cfg.Trading.EnableTrading {
		orders = t.prices
	} else {
		orders = execution.NewPaperExecutor(cfg.Trading.SlippageBps)
	}

	if cfg.Redis.Enabled {
		client, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		t.redisClient = client
		t.signalWriter = redisstore.NewSignalWriter(client, redisstore.SignalWriterConfig{
			StreamMaxLen: cfg.Redis.StreamMaxLen,
			MaxFailures:  cfg.Redis.MaxFailures,
			ResetTimeout: cfg.Redis.ResetTimeout,
			OnStateChange: func(_, to redisstore.State) {
				prom.BreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.BreakerTrips.Inc()
				}
			},
		})
		// The signal writer owns the client and closes it.
		t.closers = append(t.closers, t.signalWriter)
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	source, err := buildSource(cfg, t, log, prom, health)
	if err != nil {
		return nil, err
	}
	t.source = source

	if cfg.Redis.Enabled && cfg.Redis.MirrorTicks && cfg.App.Source != "redis" {
		t.recorders = append(t.recorders, namedRecorder{"redis-mirror", redisstore.NewTickWriter(t.redisClient, 0)})
	}

	if cfg.SQLite.RecordTicks {
		if err := ensureDir(cfg.SQLite.TicksPath); err != nil {
			return nil, err
		}
		w, err := sqlitestore.New(sqlitestore.WriterConfig{
			DBPath: cfg.SQLite.TicksPath,
			OnCommit: func(n int, took time.Duration) {
				prom.TicksRecorded.Add(float64(n))
				prom.SQLiteCommitDur.Observe(took.Seconds())
			},
		})
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, w)
		t.recorders = append(t.recorders, namedRecorder{"sqlite", w})
		t.dbPinger = w.DB()
	}

	var journal runner.FillRecorder
	if cfg.SQLite.JournalPath != "" {
		if err := ensureDir(cfg.SQLite.JournalPath); err != nil {
			return nil, err
		}
		j, err := execution.NewJournal(cfg.SQLite.JournalPath)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, j)
		journal = j
		if t.dbPinger == nil {
			t.dbPinger = pingFunc(j.Ping)
		}
	}

	notifier := buildNotifier(cfg)
	sinks, err := t.buildSinks(cfg, notifier)
	if err != nil {
		return nil, err
	}

	specs, err := config.ParseIndicatorSpecs(cfg.Indicators.Specs)
	if err != nil {
		return nil, err
	}

	for _, sc := range cfg.Strategies {
		strat, err := strategy.NewDualMA(sc.Symbol, sc.FastPeriod, sc.SlowPeriod)
		if err != nil {
			return nil, err
		}
		var mon *indicator.Monitor
		if len(specs) > 0 {
			if mon, err = indicator.NewMonitor(specs); err != nil {
				return nil, err
			}
		}

		rcfg := runner.DefaultConfig()
		rcfg.TradeQuantity = cfg.Trading.TradeQuantity
		rcfg.EnableTrading = cfg.Trading.EnableTrading
		rcfg.RSIFilter = cfg.Trading.RSIFilter

		r, err := runner.New(rcfg, runner.Deps{
			Strategy: strat,
			Orders:   orders,
			Risk:     t.risk,
			PnL:      t.pnl,
			Monitor:  mon,
			Sinks:    sinks,
			Journal:  journal,
			Notifier: notifier,
			Metrics:  prom,
			Log:      log,
		})
		if err != nil {
			return nil, err
		}
		t.runners = append(t.runners, r)
		log.Info("strategy configured", "strategy", strat.Name(), "symbol", sc.Symbol)
	}

	ok = true
	return t, nil
}

func buildSource(cfg *config.Config, t *trader, log *slog.Logger, prom *metrics.Metrics, health *metrics.HealthStatus) (model.TickSource, error) {
	if cfg.App.Source == "redis" {
		s, err := redisstore.NewTickStream(t.redisClient, redisstore.TickStreamConfig{
			Symbols:       cfg.Symbols(),
			ConsumerGroup: cfg.Redis.ConsumerGroup,
			ConsumerName:  cfg.Redis.ConsumerName,
		})
		if err != nil {
			return nil, err
		}
		s.OnDecodeError = func(error) { prom.DroppedTicks.WithLabelValues("malformed").Inc() }
		health.SetFeedConnected(true)
		return s, nil
	}

	wsBase := cfg.Binance.WSBaseURL
	if wsBase == "" && cfg.Binance.Testnet {
		wsBase = binance.TestnetBaseURL
	}
	feed, err := binance.NewFeed(binance.Config{BaseURL: wsBase, Symbols: cfg.Symbols()}, log)
	if err != nil {
		return nil, err
	}
	feed.OnConnect = func() { health.SetFeedConnected(true) }
	feed.OnDisconnect = func(error) {
		health.SetFeedConnected(false)
		prom.FeedReconnects.Inc()
	}
	feed.OnDecodeError = func(error) { prom.DroppedTicks.WithLabelValues("malformed").Inc() }
	return feed, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	var ns notification.Multi
	if cfg.Notify.Log {
		ns = append(ns, notification.NewLogNotifier())
	}
	if cfg.Notify.WebhookURL != "" {
		ns = append(ns, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		ns = append(ns, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if len(ns) == 0 {
		return nil
	}
	return ns
}

func (t *trader) buildSinks(cfg *config.Config, notifier notification.Notifier) ([]runner.Sink, error) {
	t.hub = gateway.NewHub(cfg.App.SignalReplay, t.log)
	t.closers = append(t.closers, t.hub)
	sinks := []runner.Sink{{Name: "ws", Publisher: t.hub}}
	if t.signalWriter != nil {
		sinks = append(sinks, runner.Sink{Name: "redis", Publisher: t.signalWriter})
	}
	if cfg.Kafka.Enabled {
		p, err := kafkastore.New(kafkastore.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Compression:  cfg.Kafka.Compression,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, p)
		sinks = append(sinks, runner.Sink{Name: "kafka", Publisher: p})
	}
	if notifier != nil {
		sinks = append(sinks, runner.Sink{Name: "notify", Publisher: notification.NewPublisher(notifier)})
	}
	return sinks, nil
}

// observeDay resets the daily loss counter when tick time enters a new
// trading day. Called from the single health tap goroutine.
func (t *trader) observeDay(ts time.Time) {
	if t.days.Observe(ts) {
		prev := t.risk.Status().DailyPnL
		t.risk.ResetDaily()
		t.log.Info("daily risk counters reset", "day", t.days.Day().Format("2006-01-02"), "previous_daily_pnl", prev.StringFixed(4))
	}
}

func (t *trader) apiSources() api.Sources {
	src := api.Sources{PnL: t.pnl, Risk: t.risk}
	for _, r := range t.runners {
		src.Runners = append(src.Runners, r)
	}
	if t.signalWriter != nil {
		src.Signals = t.signalWriter
	}
	return src
}

// statusLoop logs every runner's status and channel saturation each interval.
func (t *trader) statusLoop(ctx context.Context, interval time.Duration, fan *bus.FanOut) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, r := range t.runners {
			st := r.Status()
			t.log.Info("status",
				"symbol", st.Symbol,
				"running", st.Running,
				"position", st.Position,
				"last_signal", st.LastSignal.String(),
				"fast_ma", st.FastMA,
				"slow_ma", st.SlowMA,
				"ticks", st.Ticks,
				"orders", st.Orders,
			)
		}
		risk := t.risk.Status()
		t.log.Info("pnl",
			"realized", t.pnl.RealizedPnL().StringFixed(4),
			"daily", risk.DailyPnL.StringFixed(4),
			"drawdown", risk.Drawdown.StringFixed(4),
			"session", t.session.StatusString(time.Now()),
		)
		if t.signalWriter != nil && t.signalWriter.Pending() > 0 {
			t.log.Warn("redis signals queued", "count", t.signalWriter.Pending(), "breaker", t.signalWriter.Breaker().CurrentState().String())
		}
		if lat := t.hub.Latency.Stats(); lat.Count > 0 {
			t.log.Info("ws signal latency", "clients", t.hub.ClientCount(), "p50_ms", lat.P50, "p99_ms", lat.P99, "max_ms", lat.Max)
		}
		for _, st := range fan.ChannelStats() {
			t.prom.ChannelSaturated.WithLabelValues(st.Name).Set(st.Saturation())
			if st.Saturation() >= 50 {
				t.log.Warn("tick channel saturated", "subscriber", st.Name, "pct", st.Saturation())
			}
		}
	}
}

// finalReport prices open positions at the last seen tick, falling back to
// the exchange ticker, and prints the PnL report.
func (t *trader) finalReport(w io.Writer) {
	prices := make(map[string]float64, len(t.runners))
	for _, r := range t.runners {
		px := r.LastPrice()
		if px == 0 && !t.pnl.Position(r.Symbol()).IsFlat() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			var err error
			px, err = t.prices.LastPrice(ctx, r.Symbol())
			cancel()
			if err != nil {
				t.log.Warn("no price for final report", "symbol", r.Symbol(), "error", err)
			}
		}
		if px > 0 {
			prices[r.Symbol()] = px
		}
	}
	if err := t.pnl.WriteReport(w, prices, quoteAsset); err != nil {
		t.log.Error("pnl report failed", "error", err)
	}
}

func (t *trader) close() {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.log.Warn("shutdown close errors", "error", err)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
