// cmd/trader runs the live dual moving-average bot: Binance (or Redis
// stream) ticks in, crossover signals out to Redis/Kafka/notifiers, and
// paper or live orders under the position limit.
//
// Usage:
//
//	go run ./cmd/trader --config=config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fastquant/config"
	"fastquant/internal/api"
	"fastquant/internal/logger"
	"fastquant/internal/marketdata/bus"
	"fastquant/internal/metrics"
	"fastquant/internal/model"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log, logCloser, err := logger.Init(logger.Options{
		Service:    cfg.App.Name,
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	mode := "paper"
	if cfg.Trading.EnableTrading {
		mode = "live"
	}
	log.Info("starting trader",
		"symbols", cfg.Symbols(),
		"mode", mode,
		"testnet", cfg.Binance.Testnet,
		"source", cfg.App.Source,
		"max_position", cfg.Trading.MaxPosition,
		"trade_quantity", cfg.Trading.TradeQuantity,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.New(reg)
	health := metrics.NewHealthStatus()
	health.MaxTickAge = 2 * time.Minute
	health.SetSymbols(cfg.Symbols())

	app, err := build(ctx, cfg, log, prom, health)
	if err != nil {
		return err
	}
	defer app.close()

	g, gctx := errgroup.WithContext(ctx)

	srv := metrics.NewServer(cfg.App.MetricsAddr, reg, health)
	srv.Mount("/api/v1/", api.NewRouter(app.apiSources()))
	srv.Mount("/ws/signals", app.hub)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		health.RunLivenessChecker(gctx, app.redisClient, app.dbPinger, 10*time.Second)
		return nil
	})

	rawTicks := make(chan model.Tick, 10000)
	g.Go(func() error {
		defer close(rawTicks)
		return app.source.Run(gctx, rawTicks)
	})

	fan := bus.New(5000)
	fan.OnDrop = func(name string) { prom.DroppedTicks.WithLabelValues("slow_" + name).Inc() }
	routed := fan.Subscribe("router")
	tapped := fan.Subscribe("health")
	for _, rec := range app.recorders {
		rec := rec
		in := fan.Subscribe(rec.name)
		g.Go(func() error {
			rec.recorder.Run(gctx, in)
			return nil
		})
	}
	g.Go(func() error {
		fan.Run(gctx, rawTicks)
		return nil
	})
	g.Go(func() error {
		for t := range tapped {
			health.SetLastTickTime(t.Time())
			app.observeDay(t.Time())
		}
		return nil
	})

	router := bus.NewRouter(1000)
	router.OnDrop = func(sym string) { prom.RouterDrops.WithLabelValues(sym).Inc() }
	router.OnUnrouted = func(string) { prom.DroppedTicks.WithLabelValues("unrouted").Inc() }
	for _, r := range app.runners {
		r := r
		in := router.Route(r.Symbol())
		g.Go(func() error { return r.Run(gctx, in) })
	}
	g.Go(func() error {
		router.Run(gctx, routed)
		return nil
	})

	g.Go(func() error {
		app.statusLoop(gctx, cfg.App.StatusInterval, fan)
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("trader stopped with error", "error", err)
	} else {
		err = nil
		log.Info("shutting down")
	}

	app.finalReport(os.Stdout)
	return err
}
