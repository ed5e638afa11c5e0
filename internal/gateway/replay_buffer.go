package gateway

import "sync"

// replayEntry is one broadcast envelope kept for backfill.
type replayEntry struct {
	Seq    int64
	Symbol string
	Data   []byte
}

// ReplayBuffer is a fixed-size ring of recent envelopes. Reconnecting
// clients pass the last seq they saw and get everything newer that is
// still retained. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest when full. data is not copied.
func (rb *ReplayBuffer) Push(seq int64, symbol string, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = replayEntry{Seq: seq, Symbol: symbol, Data: data}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns the entries with seq > afterSeq, oldest first, for which
// keep returns true. A nil keep accepts everything.
func (rb *ReplayBuffer) Since(afterSeq int64, keep func(symbol string) bool) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	n := rb.len()
	for i := 0; i < n; i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq <= afterSeq {
			continue
		}
		if keep != nil && !keep(e.Symbol) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of entries currently retained.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
