// Package api serves a read-only JSON view of the running bot: runner
// status, positions, P&L and trades.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"fastquant/internal/model"
	"fastquant/internal/portfolio"
	"fastquant/internal/runner"
)

// StatusSource is one running strategy (a *runner.Runner).
type StatusSource interface {
	Status() runner.Status
}

// LatestSignals looks up the last published signal of a symbol
// (the Redis signal writer).
type LatestSignals interface {
	Latest(ctx context.Context, symbol string) (model.SignalEvent, bool, error)
}

// Sources are the components the API reads from. Signals may be nil.
type Sources struct {
	Runners []StatusSource
	PnL     *portfolio.PnLTracker
	Risk    *portfolio.RiskGate
	Signals LatestSignals
}

// NewRouter sets up the /api/v1 routes.
func NewRouter(src Sources) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
		out := make([]runner.Status, 0, len(src.Runners))
		for _, rn := range src.Runners {
			out = append(out, rn.Status())
		}
		writeJSON(w, http.StatusOK, out)
	})

	// GET /api/v1/positions marks open positions to each runner's last price.
	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Stats portfolio.Stats       `json:"stats"`
			Risk  *portfolio.RiskStatus `json:"risk,omitempty"`
		}{Stats: src.PnL.Stats(lastPrices(src.Runners))}
		if src.Risk != nil {
			st := src.Risk.Status()
			resp.Risk = &st
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.PnL.Trades())
	})

	// GET /api/v1/signals/latest?symbol=BTCUSDT
	mux.HandleFunc("/api/v1/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		if src.Signals == nil {
			writeError(w, http.StatusNotImplemented, "signal store not configured")
			return
		}
		sym := strings.ToUpper(r.URL.Query().Get("symbol"))
		if sym == "" {
			writeError(w, http.StatusBadRequest, "symbol is required")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		ev, ok, err := src.Signals.Latest(ctx, sym)
		switch {
		case err != nil:
			writeError(w, http.StatusBadGateway, err.Error())
		case !ok:
			writeError(w, http.StatusNotFound, "no signal for "+sym)
		default:
			writeJSON(w, http.StatusOK, ev)
		}
	})

	return mux
}

func lastPrices(runners []StatusSource) map[string]float64 {
	prices := make(map[string]float64, len(runners))
	for _, rn := range runners {
		if st := rn.Status(); st.LastPrice > 0 {
			prices[st.Symbol] = st.LastPrice
		}
	}
	return prices
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
