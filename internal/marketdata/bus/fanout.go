// Package bus moves ticks between pipeline stages without letting a slow
// consumer block the feed: sends are non-blocking and overflow is dropped.
package bus

import (
	"context"
	"log"
	"sync"

	"fastquant/internal/model"
)

// FanOut broadcasts ticks from one input channel to every subscriber
// (runner router, SQLite recorder, Redis mirror).
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Tick
	names   []string
	bufSize int

	// OnDrop is called when a tick is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates a named output channel. Must be called before Run.
func (f *FanOut) Subscribe(name string) <-chan model.Tick {
	ch := make(chan model.Tick, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. Output channels are
// closed when Run returns.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Tick) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- t:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] %s full, dropping tick %s@%d", f.names[i], t.Symbol, t.Timestamp)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports the fill of one output channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// Saturation returns the fill percentage.
func (s ChannelStat) Saturation() float64 {
	if s.Cap == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.Cap) * 100
}

// ChannelStats returns one entry per subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
