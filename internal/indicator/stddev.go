package indicator

import "math"

// DefaultMultiplier is the conventional Bollinger band width in standard deviations.
const DefaultMultiplier = 2.0

// varResyncEvery bounds how many slides the rolling sums absorb before they
// are rebuilt from the window contents.
const varResyncEvery = 1024

// Bands holds Bollinger band series. All three slices have equal length.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Len returns the number of band positions.
func (b Bands) Len() int { return len(b.Middle) }

// StdDev returns the population standard deviation of data using Welford's
// online algorithm. It returns 0 for fewer than two samples or when any sample
// is NaN or ±Inf.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}

	m2, ok := welford(data, 1)
	if !ok {
		return 0
	}
	n := float64(len(data))
	if !finite(m2) {
		// Squared deviations overflowed; rescale into [-1, 1] and retry.
		peak := maxAbs(data)
		m2, _ = welford(data, peak)
		return peak * math.Sqrt(m2/n)
	}
	return math.Sqrt(m2 / n)
}

// welford returns the sum of squared deviations of data/scale. ok is false
// when a sample is not finite.
func welford(data []float64, scale float64) (m2 float64, ok bool) {
	var mean float64
	for i, x := range data {
		if !finite(x) {
			return 0, false
		}
		x /= scale
		d := x - mean
		mean += d / float64(i+1)
		m2 += d * (x - mean)
	}
	if m2 < 0 {
		m2 = 0
	}
	return m2, true
}

func maxAbs(data []float64) float64 {
	var peak float64
	for _, x := range data {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	return peak
}

// varWindow keeps sum(y) and sum(y²) of a sliding window where y = x - shift.
// Variance is shift invariant; centring on the first sample keeps
// sum(y²)/n - mean(y)² well conditioned for prices far from zero.
// Sums that overflow are rebuilt from the window on the next slide and
// std falls back to StdDev while they stay non-finite.
type varWindow struct {
	data   []float64
	period int
	shift  float64
	start  int
	s1, s2 float64
	slides int
}

func newVarWindow(data []float64, period int) *varWindow {
	v := &varWindow{data: data, period: period, shift: data[0]}
	v.rebuild(0)
	return v
}

// rebuild recomputes the sums for the window starting at data[start].
func (v *varWindow) rebuild(start int) {
	v.start = start
	v.s1, v.s2 = 0, 0
	for _, x := range v.window() {
		y := x - v.shift
		v.s1 += y
		v.s2 += y * y
	}
	v.slides = 0
}

func (v *varWindow) window() []float64 {
	return v.data[v.start : v.start+v.period]
}

func (v *varWindow) overflowed() bool {
	return !finite(v.s1) || !finite(v.s2)
}

// slide moves the window so that it ends at data[end].
func (v *varWindow) slide(end int) {
	v.slides++
	if v.slides >= varResyncEvery || v.overflowed() {
		v.rebuild(end - v.period + 1)
		return
	}
	out := v.data[end-v.period] - v.shift
	in := v.data[end] - v.shift
	v.start++
	v.s1 += in - out
	v.s2 += in*in - out*out
	if v.overflowed() {
		v.rebuild(v.start)
	}
}

func (v *varWindow) std() float64 {
	if v.overflowed() {
		return StdDev(v.window())
	}
	n := float64(v.period)
	m := v.s1 / n
	variance := v.s2/n - m*m
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// RollingStdDev returns the population standard deviation of each window of
// period values in O(n).
func RollingStdDev(data []float64, period int) []float64 {
	if Validate(data, period) != nil {
		return nil
	}

	out := make([]float64, 0, len(data)-period+1)
	v := newVarWindow(data, period)
	out = append(out, v.std())
	for i := period; i < len(data); i++ {
		v.slide(i)
		out = append(out, v.std())
	}
	return out
}

// BollingerBands returns middle = SMA(data, period) and upper/lower =
// middle ± multiplier·RollingStdDev(data, period), computed in one pass.
// A negative or non-finite multiplier yields empty bands.
func BollingerBands(data []float64, period int, multiplier float64) Bands {
	if Validate(data, period) != nil || ValidateMultiplier(multiplier) != nil {
		return Bands{}
	}

	n := len(data) - period + 1
	b := Bands{
		Upper:  make([]float64, 0, n),
		Middle: make([]float64, 0, n),
		Lower:  make([]float64, 0, n),
	}

	w := sumWindow{period: float64(period)}
	v := newVarWindow(data, period)
	emit := func(mid float64) {
		band := multiplier * v.std()
		b.Upper = append(b.Upper, mid+band)
		b.Middle = append(b.Middle, mid)
		b.Lower = append(b.Lower, mid-band)
	}

	emit(w.seed(data[:period]))
	for i := period; i < len(data); i++ {
		v.slide(i)
		emit(w.slide(data[i-period], data[i]))
	}
	return b
}
