package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastquant/internal/model"
)

type envelope struct {
	Channel string            `json:"channel"`
	Data    model.SignalEvent `json:"data"`
	TS      string            `json:"ts"`
	Seq     int64             `json:"seq"`
}

func signal(sym string, sig model.Signal, ts int64) model.SignalEvent {
	return model.SignalEvent{Strategy: "dual_ma", Symbol: sym, Signal: sig, Price: 100, Timestamp: ts}
}

func TestBuildEnvelope(t *testing.T) {
	ev := signal("BTCUSDT", model.SignalBuy, 1700000000000)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	var env envelope
	require.NoError(t, json.Unmarshal(buildEnvelope(ev.PubSubChannel(), ev.JSON(), now, 42), &env))
	assert.Equal(t, "pub:signal:BTCUSDT", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, "2026-02-25T10:00:01Z", env.TS)
	assert.Equal(t, ev, env.Data)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	h := NewHub(10, nil)
	h.now = func() time.Time { return time.UnixMilli(1700000000250) }

	require.NoError(t, h.Publish(context.Background(), signal("BTCUSDT", model.SignalBuy, 1700000000000)))
	require.NoError(t, h.Publish(context.Background(), signal("ETHUSDT", model.SignalSell, 1700000000000)))

	assert.Equal(t, int64(2), h.Seq())
	assert.Equal(t, 2, h.replay.Len())
	assert.Len(t, h.latest, 2)
	st := h.Latency.Stats()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 250.0, st.P50)
}

func TestHub_RejectsBadFromSeq(t *testing.T) {
	h := NewHub(10, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/signals?from_seq=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// readEnvelopes reads one frame and splits coalesced envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out []envelope
	for _, line := range bytes.Split(msg, []byte{'\n'}) {
		var env envelope
		require.NoError(t, json.Unmarshal(line, &env))
		out = append(out, env)
	}
	return out
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_StreamsSubscribedSymbols(t *testing.T) {
	h := NewHub(100, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "symbols=btcusdt")
	defer conn.Close()
	waitClients(t, h, 1)

	ctx := context.Background()
	require.NoError(t, h.Publish(ctx, signal("ETHUSDT", model.SignalBuy, 0)))
	require.NoError(t, h.Publish(ctx, signal("BTCUSDT", model.SignalSell, 0)))

	got := readEnvelopes(t, conn)
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Data.Symbol)
	assert.Equal(t, model.SignalSell, got[0].Data.Signal)
	assert.Equal(t, int64(2), got[0].Seq)
}

func TestHub_BackfillFromSeq(t *testing.T) {
	h := NewHub(100, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx := context.Background()
	for _, sig := range []model.Signal{model.SignalBuy, model.SignalSell, model.SignalBuy} {
		require.NoError(t, h.Publish(ctx, signal("BTCUSDT", sig, 0)))
	}

	conn := dial(t, srv, "symbols=BTCUSDT&from_seq=1")
	defer conn.Close()

	var seqs []int64
	for len(seqs) < 2 {
		for _, env := range readEnvelopes(t, conn) {
			seqs = append(seqs, env.Seq)
		}
	}
	assert.Equal(t, []int64{2, 3}, seqs)
}

func TestHub_InitialLatest(t *testing.T) {
	h := NewHub(100, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, h.Publish(ctx, signal("BTCUSDT", model.SignalBuy, 0)))
	require.NoError(t, h.Publish(ctx, signal("BTCUSDT", model.SignalSell, 0)))

	conn := dial(t, srv, "")
	defer conn.Close()

	got := readEnvelopes(t, conn)
	require.Len(t, got, 1)
	assert.Equal(t, model.SignalSell, got[0].Data.Signal)
}

func TestHub_Ping(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":7}`)))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var pong map[string]int64
	require.NoError(t, json.Unmarshal(msg, &pong))
	assert.Equal(t, int64(7), pong["pong"])
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()
	waitClients(t, h, 1)

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.ClientCount())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
