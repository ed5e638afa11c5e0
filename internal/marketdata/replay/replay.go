// Package replay feeds recorded ticks back through the pipeline for
// backtesting, either as fast as possible or paced by a speed multiplier.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"fastquant/internal/model"
)

// maxGap caps the sleep between two replayed ticks.
const maxGap = 5 * time.Second

// Replayer reads ticks for a set of symbols from a TickReader, merges them
// in timestamp order and emits them at a configurable speed.
type Replayer struct {
	reader model.TickReader
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by reader.
func New(reader model.TickReader) *Replayer {
	return &Replayer{reader: reader, sleep: sleepCtx}
}

// Load reads every symbol's ticks with ts >= fromMs and merges them by time.
// Ticks sharing a timestamp keep their per-symbol recording order.
func (r *Replayer) Load(ctx context.Context, symbols []string, fromMs int64) ([]model.Tick, error) {
	var all []model.Tick
	for _, sym := range symbols {
		ticks, err := r.reader.ReadTicks(ctx, sym, fromMs)
		if err != nil {
			return nil, err
		}
		all = append(all, ticks...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	return all, nil
}

// Run replays ticks into out. speed: 1.0 = real time, 10.0 = 10x,
// 0 = as fast as possible. Returns the number of ticks emitted.
func (r *Replayer) Run(ctx context.Context, symbols []string, fromMs int64, speed float64, out chan<- model.Tick) (int, error) {
	ticks, err := r.Load(ctx, symbols, fromMs)
	if err != nil {
		return 0, err
	}
	if len(ticks) == 0 {
		log.Println("[replay] no ticks found")
		return 0, nil
	}

	log.Printf("[replay] loaded %d ticks across %d symbols, speed=%.1fx", len(ticks), len(symbols), speed)
	return r.Emit(ctx, ticks, speed, out)
}

// Emit pushes ticks into out, sleeping for the scaled gap between
// consecutive timestamps when speed > 0.
func (r *Replayer) Emit(ctx context.Context, ticks []model.Tick, speed float64, out chan<- model.Tick) (int, error) {
	var prevTS int64
	emitted := 0
	for i, t := range ticks {
		if speed > 0 && i > 0 {
			if gap := Gap(prevTS, t.Timestamp, speed); gap > 0 {
				if err := r.sleep(ctx, gap); err != nil {
					log.Printf("[replay] cancelled after %d ticks", emitted)
					return emitted, err
				}
			}
		}
		prevTS = t.Timestamp

		select {
		case out <- t:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return emitted, ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return emitted, nil
}

// Gap returns the wall-clock pause between two tick times at speed,
// capped at five seconds.
func Gap(prevMs, nextMs int64, speed float64) time.Duration {
	if speed <= 0 || nextMs <= prevMs {
		return 0
	}
	gap := time.Duration(float64(time.Duration(nextMs-prevMs)*time.Millisecond) / speed)
	if gap > maxGap {
		gap = maxGap
	}
	return gap
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
