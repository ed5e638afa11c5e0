package indicator

import "fastquant/internal/ringbuf"

// StreamingSMA calculates Simple Moving Average over a rolling window.
// O(1) per update on a preallocated window.
type StreamingSMA struct {
	period  int
	win     *ringbuf.Window
	current float64
}

// NewStreamingSMA creates a new streaming SMA with the given period.
func NewStreamingSMA(period int) *StreamingSMA {
	return &StreamingSMA{
		period: period,
		win:    ringbuf.New(period),
	}
}

func (s *StreamingSMA) Name() string { return "SMA" }

func (s *StreamingSMA) Update(price float64) {
	s.win.Push(price)
	if s.win.Full() {
		s.current = s.win.Mean()
	}
}

func (s *StreamingSMA) Value() float64 { return s.current }
func (s *StreamingSMA) Ready() bool    { return s.win.Full() }

// Reset clears the SMA state for reuse.
func (s *StreamingSMA) Reset() {
	s.win.Reset()
	s.current = 0
}
