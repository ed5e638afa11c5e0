package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"fastquant/internal/model"
)

// Spec names a single streaming indicator to compute.
type Spec struct {
	Type   string // "SMA", "EMA", "RSI"
	Period int
}

// Name returns the reading name, e.g. "SMA_20".
func (s Spec) Name() string {
	return s.Type + "_" + strconv.Itoa(s.Period)
}

// ParseSpecs parses "TYPE:PERIOD,..." (e.g. "SMA:20,EMA:9,RSI:14").
// Unknown types and non-positive periods are rejected.
func ParseSpecs(s string) ([]Spec, error) {
	var specs []Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			return nil, fmt.Errorf("indicator: bad spec %q, want TYPE:PERIOD", part)
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil || period <= 0 {
			return nil, fmt.Errorf("%w: spec %q", ErrInvalidPeriod, part)
		}
		spec := Spec{Type: strings.ToUpper(strings.TrimSpace(tokens[0])), Period: period}
		if _, err := newIndicator(spec); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// DefaultSpecs is the indicator set used when none is configured.
func DefaultSpecs() []Spec {
	return []Spec{
		{Type: "SMA", Period: 20},
		{Type: "EMA", Period: 9},
		{Type: "RSI", Period: 14},
	}
}

// Reading is one indicator value produced for a tick.
type Reading struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Value     float64 `json:"value"`
	Ready     bool    `json:"ready"`
	Timestamp int64   `json:"ts"`
}

// Monitor keeps streaming indicators per symbol.
// Designed for single-goroutine usage, no locks needed.
type Monitor struct {
	specs []Spec
	state map[string][]Indicator
}

// NewMonitor creates a monitor computing the given indicators for every symbol it sees.
func NewMonitor(specs []Spec) (*Monitor, error) {
	for _, s := range specs {
		if _, err := newIndicator(s); err != nil {
			return nil, err
		}
	}
	return &Monitor{
		specs: specs,
		state: make(map[string][]Indicator, 8),
	}, nil
}

// Specs returns the configured indicator specs.
func (m *Monitor) Specs() []Spec { return m.specs }

// Update feeds a tick to every indicator of its symbol and returns the readings
// (may include not-ready indicators with Ready=false). Unusable ticks yield nil.
func (m *Monitor) Update(t model.Tick) []Reading {
	if !t.Usable() {
		return nil
	}

	inds, ok := m.state[t.Symbol]
	if !ok {
		// First tick for this symbol, create indicator instances
		inds = make([]Indicator, len(m.specs))
		for i, s := range m.specs {
			inds[i], _ = newIndicator(s)
		}
		m.state[t.Symbol] = inds
	}

	results := make([]Reading, 0, len(inds))
	for i, ind := range inds {
		ind.Update(t.Price)
		results = append(results, Reading{
			Name:      m.specs[i].Name(),
			Symbol:    t.Symbol,
			Value:     ind.Value(),
			Ready:     ind.Ready(),
			Timestamp: t.Timestamp,
		})
	}
	return results
}

// Value returns the current value of the named indicator ("RSI_14") for symbol.
// ok is false when the indicator is unknown or not ready yet.
func (m *Monitor) Value(symbol, name string) (float64, bool) {
	inds, exists := m.state[symbol]
	if !exists {
		return 0, false
	}
	for i, s := range m.specs {
		if s.Name() == name && inds[i].Ready() {
			return inds[i].Value(), true
		}
	}
	return 0, false
}

// RSI returns the first configured RSI reading for symbol once it is ready.
func (m *Monitor) RSI(symbol string) (float64, bool) {
	for _, s := range m.specs {
		if s.Type == "RSI" {
			return m.Value(symbol, s.Name())
		}
	}
	return 0, false
}

func newIndicator(s Spec) (Indicator, error) {
	if s.Period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, s.Name())
	}
	switch s.Type {
	case "SMA":
		return NewStreamingSMA(s.Period), nil
	case "EMA":
		return NewStreamingEMA(s.Period), nil
	case "SMMA":
		return NewStreamingSMMA(s.Period), nil
	case "RSI":
		return NewStreamingRSI(s.Period), nil
	}
	return nil, fmt.Errorf("indicator: unknown type %q", s.Type)
}
