// Package ringbuf provides a fixed-capacity sliding window over float64
// observations. Pushing into a full window evicts the oldest value. A running
// sum is kept so the window mean is O(1); the sum is rebuilt from the stored
// values every resyncEvery evictions to bound floating-point drift.
package ringbuf

// resyncEvery is how many evictions may accumulate into the running sum
// before it is recomputed from scratch.
const resyncEvery = 1024

// Window is a bounded, ordered history of the K most recent values.
// It is not safe for concurrent use.
type Window struct {
	buf     []float64 // preallocated circular storage
	head    int       // index of the oldest value
	n       int       // number of stored values
	sum     float64
	evicted int
}

// New creates a window holding at most capacity values.
// A capacity below 1 is treated as 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v. When the window is full the oldest value is evicted and
// returned with ok=true.
func (w *Window) Push(v float64) (evicted float64, ok bool) {
	k := len(w.buf)
	if w.n < k {
		w.buf[(w.head+w.n)%k] = v
		w.n++
		w.sum += v
		return 0, false
	}

	evicted = w.buf[w.head]
	w.buf[w.head] = v
	w.head = (w.head + 1) % k
	w.sum += v - evicted

	w.evicted++
	if w.evicted >= resyncEvery {
		w.resync()
	}
	return evicted, true
}

// Len returns the number of stored values.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity K.
func (w *Window) Cap() int { return len(w.buf) }

// Full reports whether the window holds K values.
func (w *Window) Full() bool { return w.n == len(w.buf) }

// Sum returns the running sum of the stored values.
func (w *Window) Sum() float64 { return w.sum }

// Mean returns the average of the stored values, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.sum / float64(w.n)
}

// At returns the i-th stored value, oldest first. It panics if i is out of range.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.n {
		panic("ringbuf: index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last returns the most recently pushed value.
func (w *Window) Last() (float64, bool) {
	if w.n == 0 {
		return 0, false
	}
	return w.At(w.n - 1), true
}

// Values returns a copy of the stored values, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Reset empties the window for reuse.
func (w *Window) Reset() {
	w.head, w.n, w.sum, w.evicted = 0, 0, 0, 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}

func (w *Window) resync() {
	s := 0.0
	for i := 0; i < w.n; i++ {
		s += w.buf[(w.head+i)%len(w.buf)]
	}
	w.sum = s
	w.evicted = 0
}
