package indicator

// StreamingEMA calculates Exponential Moving Average.
// O(1) per update, no window storage needed. Seeded with the SMA of the first
// period prices, so its values match EMA() element for element.
type StreamingEMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewStreamingEMA creates a new streaming EMA with the given period.
func NewStreamingEMA(period int) *StreamingEMA {
	return &StreamingEMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *StreamingEMA) Name() string { return "EMA" }

func (e *StreamingEMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price-e.current)*e.multiplier + e.current
}

func (e *StreamingEMA) Value() float64 { return e.current }
func (e *StreamingEMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *StreamingEMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
