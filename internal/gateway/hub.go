// Package gateway streams signal events to WebSocket clients. Clients pick
// symbols with ?symbols=BTCUSDT,ETHUSDT and may resume after a disconnect
// with ?from_seq=N to backfill from the replay buffer.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fastquant/internal/model"
)

// Hub fans signal envelopes out to WebSocket clients. It implements
// model.SignalPublisher and http.Handler.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	seq     int64
	latest  map[string][]byte // symbol -> last envelope

	replay  *ReplayBuffer
	Latency *LatencyTracker

	now func() time.Time
}

// NewHub creates a hub retaining replaySize envelopes for backfill.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log.With("component", "ws-gateway"),
		clients:  make(map[*Client]struct{}),
		latest:   make(map[string][]byte),
		replay:   NewReplayBuffer(replaySize),
		Latency:  NewLatencyTracker(10000),
		now:      time.Now,
	}
}

// Publish broadcasts ev to every client subscribed to its symbol. It never
// blocks: slow clients miss messages and can backfill by seq.
func (h *Hub) Publish(_ context.Context, ev model.SignalEvent) error {
	now := h.now().UTC()
	if ev.Timestamp > 0 {
		if ms := float64(now.UnixMicro()-ev.Timestamp*1000) / 1000; ms >= 0 {
			h.Latency.Record(ms)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	env := buildEnvelope(ev.PubSubChannel(), ev.JSON(), now, h.seq)
	h.latest[ev.Symbol] = env
	h.replay.Push(h.seq, ev.Symbol, env)
	for c := range h.clients {
		if c.wants(ev.Symbol) {
			c.enqueue(env)
		}
	}
	return nil
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbols := parseSymbols(q.Get("symbols"))
	fromSeq := int64(-1)
	if v := q.Get("from_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "from_seq must be a non-negative integer", http.StatusBadRequest)
			return
		}
		fromSeq = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}

	c := newClient(conn, h, symbols)
	h.register(c, fromSeq)
	h.log.Info("client connected", "remote", r.RemoteAddr, "symbols", q.Get("symbols"), "from_seq", fromSeq)

	go c.writePump()
	c.readPump()
}

// register adds c and queues its initial state under the hub lock, so no
// broadcast can slip between backfill and live delivery.
func (h *Hub) register(c *Client, fromSeq int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fromSeq >= 0 {
		for _, e := range h.replay.Since(fromSeq, c.wants) {
			c.enqueue(e.Data)
		}
	} else {
		for sym, env := range h.latest {
			if c.wants(sym) {
				c.enqueue(env)
			}
		}
	}
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client. The hub keeps accepting Publish calls.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

// buildEnvelope renders {"channel":...,"data":...,"ts":...,"seq":N} without
// re-encoding the already serialized payload.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

func parseSymbols(s string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out[p] = true
		}
	}
	return out
}
