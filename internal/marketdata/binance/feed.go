// Package binance streams spot trades from the Binance combined WebSocket
// endpoint and turns them into ticks.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"fastquant/internal/model"
)

const (
	DefaultBaseURL = "wss://stream.binance.com:9443"
	TestnetBaseURL = "wss://testnet.binance.vision"

	readTimeout  = 30 * time.Second
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// Config configures the trade feed.
type Config struct {
	BaseURL    string
	Symbols    []string
	MaxBackoff time.Duration // cap between reconnect attempts
}

// Feed implements model.TickSource over "<symbol>@trade" streams and
// reconnects with exponential backoff until its context ends.
type Feed struct {
	cfg Config
	log *slog.Logger

	OnConnect     func()
	OnDisconnect  func(err error)
	OnDecodeError func(err error)
}

// NewFeed validates cfg. Symbols are upper-cased.
func NewFeed(cfg Config, log *slog.Logger) (*Feed, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("binance feed requires at least one symbol")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	syms := make([]string, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		syms[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	cfg.Symbols = syms
	if log == nil {
		log = slog.Default()
	}
	return &Feed{cfg: cfg, log: log.With("component", "binance-feed")}, nil
}

// StreamURL returns the combined stream URL for symbols.
func StreamURL(base string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects, forwards ticks into out and reconnects on failure.
// It returns ctx.Err() once ctx is cancelled.
func (f *Feed) Run(ctx context.Context, out chan<- model.Tick) error {
	url := StreamURL(f.cfg.BaseURL, f.cfg.Symbols)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 1.8
	b.MaxInterval = f.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	op := func() error {
		err := f.consume(ctx, url, out, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("stream closed by server")
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warn("binance feed disconnected, retrying", "error", err, "wait", wait)
		if f.OnDisconnect != nil {
			f.OnDisconnect(err)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// consume runs one connection. connected is invoked once the handshake
// succeeds so the reconnect delay starts over after a healthy session.
func (f *Feed) consume(ctx context.Context, url string, out chan<- model.Tick, connected func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	connected()
	f.log.Info("connected market data feed", "symbols", f.cfg.Symbols)
	if f.OnConnect != nil {
		f.OnConnect()
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(writeTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					f.log.Warn("binance ping failed", "error", err)
					return
				}
			case <-sessCtx.Done():
				// Unblock ReadMessage on shutdown.
				conn.Close()
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		tick, err := ParseTrade(msg)
		if err != nil {
			if f.OnDecodeError != nil {
				f.OnDecodeError(err)
			}
			f.log.Debug("dropping binance message", "error", err)
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type envelope struct {
	Stream string `json:"stream"`
	Data   trade  `json:"data"`
}

type trade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMM   bool   `json:"m"`
}

// ParseTrade decodes one combined-stream trade message.
func ParseTrade(msg []byte) (model.Tick, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return model.Tick{}, fmt.Errorf("decode binance message: %w", err)
	}
	if env.Data.Event != "" && env.Data.Event != "trade" {
		return model.Tick{}, fmt.Errorf("unexpected event %q", env.Data.Event)
	}

	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = SymbolFromStream(env.Stream)
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("invalid price %q: %w", env.Data.Price, err)
	}
	qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("invalid quantity %q: %w", env.Data.Quantity, err)
	}

	t := model.Tick{Symbol: strings.ToUpper(symbol), Price: px, Volume: qty, Timestamp: env.Data.TradeTime}
	if !t.Usable() {
		return model.Tick{}, fmt.Errorf("unusable trade %s", msg)
	}
	return t, nil
}

// SymbolFromStream maps "btcusdt@trade" to "BTCUSDT".
func SymbolFromStream(stream string) string {
	name, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(name)
}
