package indicator

// StreamingSMMA is Wilder's smoothed moving average (the smoothing RSI uses).
// The first value is SMA(period); afterwards
// SMMA = (prev*(period-1) + price) / period.
type StreamingSMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewStreamingSMMA creates a new streaming SMMA with the given period.
func NewStreamingSMMA(period int) *StreamingSMMA {
	return &StreamingSMMA{period: period}
}

func (s *StreamingSMMA) Name() string { return "SMMA" }

func (s *StreamingSMMA) Update(price float64) {
	s.count++

	if s.count <= s.period {
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
}

func (s *StreamingSMMA) Value() float64 { return s.current }
func (s *StreamingSMMA) Ready() bool    { return s.count >= s.period }

func (s *StreamingSMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
