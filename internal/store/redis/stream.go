package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fastquant/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultTickMaxLen = 50000

// ErrNoPayload is returned for stream entries without a "data" field.
var ErrNoPayload = errors.New("stream entry has no data field")

// TickStreamConfig configures consumption of "tick:{symbol}" streams.
type TickStreamConfig struct {
	Symbols       []string
	ConsumerGroup string // default "fastquant"
	ConsumerName  string // default "worker-1"
	Count         int64
	Block         time.Duration
}

// TickStream reads ticks published by another process (or by TickWriter)
// from Redis Streams using a consumer group. Entries are ACKed after they
// are handed to the output channel; undecodable entries are ACKed and skipped.
type TickStream struct {
	client *goredis.Client
	cfg    TickStreamConfig

	OnDecodeError func(err error)
}

// NewTickStream wraps client. Symbols must be non-empty.
func NewTickStream(client *goredis.Client, cfg TickStreamConfig) (*TickStream, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("redis tick stream: no symbols")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "fastquant"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "worker-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	return &TickStream{client: client, cfg: cfg}, nil
}

func (s *TickStream) streams() []string {
	keys := make([]string, len(s.cfg.Symbols))
	for i, sym := range s.cfg.Symbols {
		keys[i] = model.TickStreamKey(sym)
	}
	return keys
}

// EnsureGroup creates the consumer group on every tick stream, starting at
// new entries. An existing group is left untouched.
func (s *TickStream) EnsureGroup(ctx context.Context) error {
	for _, stream := range s.streams() {
		err := s.client.XGroupCreateMkStream(ctx, stream, s.cfg.ConsumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// Run implements model.TickSource.
func (s *TickStream) Run(ctx context.Context, out chan<- model.Tick) error {
	if err := s.EnsureGroup(ctx); err != nil {
		return err
	}

	streams := s.streams()
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	slog.Info("redis tick stream started", "streams", streams, "group", s.cfg.ConsumerGroup)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := s.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    s.cfg.ConsumerGroup,
			Consumer: s.cfg.ConsumerName,
			Streams:  args,
			Count:    s.cfg.Count,
			Block:    s.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			slog.Error("redis xreadgroup failed", "error", err)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				tick, err := DecodeTick(msg.Values)
				if err != nil {
					if s.OnDecodeError != nil {
						s.OnDecodeError(err)
					}
					s.client.XAck(ctx, stream.Stream, s.cfg.ConsumerGroup, msg.ID)
					continue
				}
				select {
				case out <- tick:
				case <-ctx.Done():
					return ctx.Err()
				}
				s.client.XAck(ctx, stream.Stream, s.cfg.ConsumerGroup, msg.ID)
			}
		}
	}
}

// ReadTicks implements model.TickReader over the retained stream window.
func (s *TickStream) ReadTicks(ctx context.Context, symbol string, fromMs int64) ([]model.Tick, error) {
	msgs, err := s.client.XRange(ctx, model.TickStreamKey(symbol), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange %s: %w", symbol, err)
	}
	return decodeTicks(msgs, fromMs), nil
}

// Close closes the client.
func (s *TickStream) Close() error { return s.client.Close() }

func decodeTicks(msgs []goredis.XMessage, fromMs int64) []model.Tick {
	ticks := make([]model.Tick, 0, len(msgs))
	for _, msg := range msgs {
		t, err := DecodeTick(msg.Values)
		if err != nil || t.Timestamp < fromMs {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// DecodeTick parses the {"data": json} payload of a tick stream entry.
func DecodeTick(values map[string]interface{}) (model.Tick, error) {
	raw, err := payload(values)
	if err != nil {
		return model.Tick{}, err
	}
	var t model.Tick
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return model.Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	if !t.Usable() {
		return model.Tick{}, fmt.Errorf("decode tick: unusable tick %+v", t)
	}
	return t, nil
}

func decodeSignal(raw string) (model.SignalEvent, error) {
	var ev model.SignalEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return model.SignalEvent{}, fmt.Errorf("decode signal: %w", err)
	}
	return ev, nil
}

func payload(values map[string]interface{}) (string, error) {
	switch v := values["data"].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", ErrNoPayload
}

// TickWriter mirrors live ticks into "tick:{symbol}" streams so other
// processes can consume them through TickStream. It implements model.TickRecorder.
type TickWriter struct {
	client *goredis.Client
	maxLen int64
}

// NewTickWriter wraps client. maxLen <= 0 keeps the default window.
func NewTickWriter(client *goredis.Client, maxLen int64) *TickWriter {
	if maxLen <= 0 {
		maxLen = defaultTickMaxLen
	}
	return &TickWriter{client: client, maxLen: maxLen}
}

// Run drains in until ctx is cancelled or in is closed.
func (w *TickWriter) Run(ctx context.Context, in <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-in:
			if !ok {
				return
			}
			err := w.client.XAdd(ctx, &goredis.XAddArgs{
				Stream: t.StreamKey(),
				MaxLen: w.maxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(t.JSON())},
			}).Err()
			if err != nil && ctx.Err() == nil {
				slog.Error("redis tick xadd failed", "symbol", t.Symbol, "error", err)
			}
		}
	}
}

// Close closes the client.
func (w *TickWriter) Close() error { return w.client.Close() }
