package indicator

// StreamingRSI calculates the Relative Strength Index using Wilder's smoothing.
// Update is O(1) per price, no history scans.
type StreamingRSI struct {
	period    int
	count     int
	prevPrice float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewStreamingRSI creates a new RSI with the given period (typically 14).
func NewStreamingRSI(period int) *StreamingRSI {
	return &StreamingRSI{period: period}
}

func (r *StreamingRSI) Name() string { return "RSI" }

func (r *StreamingRSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price, no delta yet
		r.prevPrice = price
		return
	}

	delta := price - r.prevPrice
	r.prevPrice = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			// First RSI value using SMA seed
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avg = (prevAvg * (period-1) + x) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *StreamingRSI) Value() float64 { return r.current }
func (r *StreamingRSI) Ready() bool    { return r.count > r.period }

// Reset clears the RSI state for reuse.
func (r *StreamingRSI) Reset() {
	*r = StreamingRSI{period: r.period}
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
