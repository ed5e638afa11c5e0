// cmd/backtest replays recorded ticks (SQLite) or a CSV file through a fresh
// dual moving-average strategy with paper execution and prints the result.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/ticks.db --symbol=BTCUSDT --fast=5 --slow=20
//	go run ./cmd/backtest --csv=trades.csv --symbol=BTCUSDT --export-csv=trades_out.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fastquant/internal/execution"
	"fastquant/internal/indicator"
	"fastquant/internal/marketdata/replay"
	"fastquant/internal/markethours"
	"fastquant/internal/model"
	"fastquant/internal/portfolio"
	"fastquant/internal/runner"
	sqlitestore "fastquant/internal/store/sqlite"
	"fastquant/internal/strategy"
)

type options struct {
	dbPath       string
	csvPath      string
	symbol       string
	fast, slow   int
	fromMs       int64
	speed        float64
	qty          float64
	maxPosition  float64
	maxDailyLoss float64
	slippageBps  float64
	indicators   string
	rsiFilter    bool
	exportCSV    string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var o options
	flag.StringVar(&o.dbPath, "db", "data/ticks.db", "SQLite tick database recorded by the trader")
	flag.StringVar(&o.csvPath, "csv", "", "CSV file with timestamp,price[,symbol,volume] columns (overrides -db)")
	flag.StringVar(&o.symbol, "symbol", "BTCUSDT", "Symbol to replay")
	flag.IntVar(&o.fast, "fast", 5, "Fast SMA period")
	flag.IntVar(&o.slow, "slow", 20, "Slow SMA period")
	flag.Int64Var(&o.fromMs, "from", 0, "Epoch ms to start replay from (0=all)")
	flag.Float64Var(&o.speed, "speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	flag.Float64Var(&o.qty, "qty", 0.001, "Quantity per trade")
	flag.Float64Var(&o.maxPosition, "max-position", 1.0, "Absolute position limit")
	flag.Float64Var(&o.maxDailyLoss, "max-daily-loss", 0, "Block new orders once the day's loss reaches this (0=off)")
	flag.Float64Var(&o.slippageBps, "slippage-bps", 0, "Paper fill slippage in basis points")
	flag.StringVar(&o.indicators, "indicators", "", "Indicator specs: TYPE:PERIOD,... (default: SMA:20,EMA:9,RSI:14)")
	flag.BoolVar(&o.rsiFilter, "rsi-filter", false, "Skip BUY when RSI is overbought and SELL when oversold")
	flag.StringVar(&o.exportCSV, "export-csv", "", "Write the trade list to this CSV file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatalf("[backtest] %v", err)
	}
}

func run(ctx context.Context, o options, w io.Writer) error {
	o.symbol = strings.ToUpper(strings.TrimSpace(o.symbol))

	ticks, err := loadTicks(ctx, o)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks for %s", o.symbol)
	}
	log.Printf("[backtest] loaded %d ticks for %s", len(ticks), o.symbol)

	specs := indicator.DefaultSpecs()
	if o.indicators != "" {
		if specs, err = indicator.ParseSpecs(o.indicators); err != nil {
			return err
		}
	}
	mon, err := indicator.NewMonitor(specs)
	if err != nil {
		return err
	}

	strat, err := strategy.NewDualMA(o.symbol, o.fast, o.slow)
	if err != nil {
		return err
	}
	pnl := portfolio.NewPnLTracker()
	risk := portfolio.NewRiskGate(portfolio.RiskLimits{MaxPosition: o.maxPosition, MaxDailyLoss: o.maxDailyLoss})

	cfg := runner.DefaultConfig()
	cfg.TradeQuantity = o.qty
	cfg.RSIFilter = o.rsiFilter
	r, err := runner.New(cfg, runner.Deps{
		Strategy: strat,
		Orders:   execution.NewPaperExecutor(o.slippageBps),
		Risk:     risk,
		PnL:      pnl,
		Monitor:  mon,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}

	tickCh := make(chan model.Tick, 10000)
	errCh := make(chan error, 1)
	go func() {
		defer close(tickCh)
		_, err := replay.New(nil).Emit(ctx, ticks, o.speed, tickCh)
		errCh <- err
	}()

	days := markethours.NewDayRoller(markethours.DefaultSession())
	signals := make([]model.Signal, 0, len(ticks))
	for t := range tickCh {
		if days.Observe(t.Time()) {
			risk.ResetDaily()
		}
		signals = append(signals, r.OnTick(ctx, t))
	}
	if err := <-errCh; err != nil {
		log.Printf("[backtest] replay stopped early: %v", err)
	}

	c := strategy.Count(signals)
	st := r.Status()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Symbol:            %-16s ║\n", o.symbol)
	fmt.Fprintf(w, "║  Ticks processed:   %-16d ║\n", len(signals))
	fmt.Fprintf(w, "║  BUY / SELL / HOLD: %-16s ║\n", fmt.Sprintf("%d/%d/%d", c.Buy, c.Sell, c.Hold))
	fmt.Fprintf(w, "║  Fast MA(%3d):      %-16.4f ║\n", o.fast, st.FastMA)
	fmt.Fprintf(w, "║  Slow MA(%3d):      %-16.4f ║\n", o.slow, st.SlowMA)
	fmt.Fprintf(w, "║  Final position:    %-16.6f ║\n", st.Position)
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
	fmt.Fprintln(w)

	prices := map[string]float64{o.symbol: st.LastPrice}
	if err := pnl.WriteReport(w, prices, "USDT"); err != nil {
		return err
	}

	if o.exportCSV != "" {
		if err := pnl.ExportCSVFile(o.exportCSV); err != nil {
			return err
		}
		log.Printf("[backtest] trades exported to %s", o.exportCSV)
	}
	return nil
}

func loadTicks(ctx context.Context, o options) ([]model.Tick, error) {
	if o.csvPath != "" {
		all, err := replay.LoadCSVFile(o.csvPath, o.symbol)
		if err != nil {
			return nil, err
		}
		ticks := all[:0]
		for _, t := range all {
			if t.Symbol == o.symbol && t.Timestamp >= o.fromMs {
				ticks = append(ticks, t)
			}
		}
		return ticks, nil
	}

	reader, err := sqlitestore.NewReader(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %w", err)
	}
	defer reader.Close()
	return replay.New(reader).Load(ctx, []string{o.symbol}, o.fromMs)
}
