package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastquant/internal/model"
)

func TestEncodeTrade_ParsesBack(t *testing.T) {
	tick, err := ParseTrade(EncodeTrade("ethusdt", 3012.55, 0.25, 1700000000123))
	require.NoError(t, err)
	assert.Equal(t, model.Tick{Symbol: "ETHUSDT", Price: 3012.55, Volume: 0.25, Timestamp: 1700000000123}, tick)
}

func TestWalk_Bounded(t *testing.T) {
	for _, u := range []float64{0, 0.5, 0.999999} {
		next := walk(100, u)
		assert.InDelta(t, 100, next, 0.1+1e-9)
	}
	assert.Equal(t, 0.01, walk(0.001, 0))
}

func TestSimulator_RejectsEmptyStreams(t *testing.T) {
	sim := NewSimulator(map[string]float64{"BTCUSDT": 100}, 0, nil)
	rec := httptest.NewRecorder()
	sim.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeed_AgainstSimulator(t *testing.T) {
	sim := NewSimulator(map[string]float64{"btcusdt": 50000, "ETHUSDT": 3000}, time.Hour, nil)
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	f, err := NewFeed(Config{
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"BTCUSDT"},
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Tick, 16)
	go f.Run(ctx, out)

	deadline := time.After(5 * time.Second)
	step := time.NewTicker(10 * time.Millisecond)
	defer step.Stop()
	for {
		select {
		case tick := <-out:
			assert.Equal(t, "BTCUSDT", tick.Symbol)
			assert.InDelta(t, 50000, tick.Price, 50000*0.05)
			return
		case now := <-step.C:
			sim.Step(now)
		case <-deadline:
			t.Fatal("timed out waiting for simulated tick")
		}
	}
}
