// cmd/tickserver serves a simulated Binance combined trade stream so the
// trader can run end to end without exchange access. Point the trader at it
// with FQ_BINANCE_WS_BASE_URL=ws://localhost:9001.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_SYMBOLS      comma-separated SYMBOL:START_PRICE pairs (default "BTCUSDT:50000,ETHUSDT:3000")
//	TICK_INTERVAL     trade interval per symbol (default "100ms")
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"fastquant/internal/marketdata/binance"
)

type serverConfig struct {
	Addr     string        `env:"TICK_SERVER_ADDR" envDefault:":9001"`
	Symbols  string        `env:"TICK_SYMBOLS" envDefault:"BTCUSDT:50000,ETHUSDT:3000"`
	Interval time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("[tickserver] config: %v", err)
	}
	prices, err := parseSymbols(cfg.Symbols)
	if err != nil {
		log.Fatalf("[tickserver] %v", err)
	}
	log.Printf("[tickserver] symbols=%v interval=%s", prices, cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := binance.NewSimulator(prices, cfg.Interval, nil)
	go sim.Run(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: sim.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tickserver] listening on %s (ws://localhost%s/stream?streams=btcusdt@trade)", cfg.Addr, cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// parseSymbols parses "BTCUSDT:50000,ETHUSDT:3000".
func parseSymbols(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, px, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("bad symbol spec %q, want SYMBOL:PRICE", part)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(px), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("bad start price in %q", part)
		}
		out[strings.ToUpper(strings.TrimSpace(sym))] = price
	}
	if len(out) == 0 {
		return nil, errors.New("no symbols configured via TICK_SYMBOLS")
	}
	return out, nil
}
