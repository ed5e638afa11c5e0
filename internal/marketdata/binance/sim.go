package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EncodeTrade renders a combined-stream trade message, the inverse of ParseTrade.
func EncodeTrade(symbol string, price, qty float64, tsMs int64) []byte {
	b, _ := json.Marshal(envelope{
		Stream: strings.ToLower(symbol) + "@trade",
		Data: trade{
			Event:     "trade",
			Symbol:    strings.ToUpper(symbol),
			Price:     strconv.FormatFloat(price, 'f', -1, 64),
			Quantity:  strconv.FormatFloat(qty, 'f', -1, 64),
			TradeTime: tsMs,
		},
	})
	return b
}

// Simulator serves a fake combined trade stream at /stream?streams=... so
// the trader can run without exchange access. Prices follow a small random
// walk per symbol.
type Simulator struct {
	interval time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	prices  map[string]float64
	clients map[*simClient]struct{}

	rng *rand.Rand
}

type simClient struct {
	symbols map[string]bool
	ch      chan []byte
}

// NewSimulator starts every symbol at its given price.
func NewSimulator(prices map[string]float64, interval time.Duration, log *slog.Logger) *Simulator {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	p := make(map[string]float64, len(prices))
	for sym, px := range prices {
		p[strings.ToUpper(sym)] = px
	}
	return &Simulator{
		interval: interval,
		log:      log.With("component", "binance-sim"),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		prices:   p,
		clients:  make(map[*simClient]struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Handler returns the HTTP handler serving /stream and /health.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.serveStream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"binance-sim"}`))
	})
	return mux
}

// Run generates one trade per symbol every interval until ctx ends.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step advances every symbol once and broadcasts the trades.
func (s *Simulator) Step(now time.Time) {
	s.mu.Lock()
	msgs := make(map[string][]byte, len(s.prices))
	for sym, px := range s.prices {
		px = walk(px, s.rng.Float64())
		s.prices[sym] = px
		qty := float64(s.rng.Intn(1000)+1) / 1000
		msgs[sym] = EncodeTrade(sym, px, qty, now.UnixMilli())
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		for sym, msg := range msgs {
			if !c.symbols[sym] {
				continue
			}
			select {
			case c.ch <- msg:
			default: // slow client, drop the trade
			}
		}
	}
}

// Price returns the current simulated price of symbol.
func (s *Simulator) Price(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices[strings.ToUpper(symbol)]
}

// walk moves px by up to ±0.1%; u is uniform in [0,1).
func walk(px, u float64) float64 {
	next := px * (1 + (u*0.2-0.1)/100)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func (s *Simulator) serveStream(w http.ResponseWriter, r *http.Request) {
	c := &simClient{symbols: map[string]bool{}, ch: make(chan []byte, 256)}
	for _, stream := range strings.Split(r.URL.Query().Get("streams"), "/") {
		if stream != "" {
			c.symbols[SymbolFromStream(stream)] = true
		}
	}
	if len(c.symbols) == 0 {
		http.Error(w, "no streams requested", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "error", err)
		return
	}
	s.log.Info("client connected", "remote", r.RemoteAddr, "streams", len(c.symbols))

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
		s.log.Info("client disconnected", "remote", r.RemoteAddr)
	}()

	// Drain reads so control frames (ping/close) are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-c.ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
