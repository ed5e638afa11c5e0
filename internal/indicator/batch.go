package indicator

// Batch indicators operate on a complete price series and return one value per
// valid window position: output[j] covers data[j : j+period], so every result
// has len(data)-period+1 elements. Invalid input (see Validate) yields a nil
// result. All functions are pure and safe for concurrent use.

// sumWindow is the rolling-sum arithmetic shared by SMA and BollingerBands.
// Both must produce bit-identical means, so neither may inline its own variant.
type sumWindow struct {
	sum    float64
	period float64
}

func (w *sumWindow) seed(first []float64) float64 {
	for _, v := range first {
		w.sum += v
	}
	return w.sum / w.period
}

func (w *sumWindow) slide(evicted, admitted float64) float64 {
	w.sum = w.sum - evicted + admitted
	return w.sum / w.period
}

// SMA returns the simple moving average of data over period in O(n).
func SMA(data []float64, period int) []float64 {
	if Validate(data, period) != nil {
		return nil
	}

	out := make([]float64, 0, len(data)-period+1)
	w := sumWindow{period: float64(period)}
	out = append(out, w.seed(data[:period]))
	for i := period; i < len(data); i++ {
		out = append(out, w.slide(data[i-period], data[i]))
	}
	return out
}

// EMA returns the exponential moving average of data over period.
// The first value is the mean of data[0:period] and lines up with SMA's first
// value; afterwards ema += (price - ema) * 2/(period+1).
func EMA(data []float64, period int) []float64 {
	if Validate(data, period) != nil {
		return nil
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(data)-period+1)

	sum := 0.0
	for _, v := range data[:period] {
		sum += v
	}
	ema := sum / float64(period)
	out = append(out, ema)

	for i := period; i < len(data); i++ {
		ema = (data[i]-ema)*k + ema
		out = append(out, ema)
	}
	return out
}
