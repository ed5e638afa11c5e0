package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fastquant/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultSignalMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
	defaultMaxBacklog   = 10000
	writeTimeout        = 2 * time.Second
)

// Config configures the Redis connection shared by the signal writer and
// the stream tick source.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

func (c Config) options() *goredis.Options {
	return &goredis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// Dial connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(cfg.options())
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// SignalWriterConfig tunes the signal writer. Zero values pick defaults.
type SignalWriterConfig struct {
	StreamMaxLen int64         // approximate XADD trim length per symbol stream
	LatestTTL    time.Duration // TTL of "signal:latest:{symbol}"
	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // how long the breaker stays open
	MaxBacklog   int           // signals held while the breaker is open

	// OnStateChange observes breaker transitions (metrics).
	OnStateChange func(from, to State)
}

// SignalWriter publishes signal events to Redis: XADD to "signal:{symbol}",
// SET "signal:latest:{symbol}" and PUBLISH on "pub:signal:{symbol}", all in
// one pipeline guarded by a circuit breaker. While the breaker is open,
// events are held in a bounded backlog and replayed once it closes.
type SignalWriter struct {
	client *goredis.Client
	cb     *CircuitBreaker
	cfg    SignalWriterConfig

	mu      sync.Mutex
	backlog []model.SignalEvent
	dropped int

	flushWG sync.WaitGroup
}

// NewSignalWriter wraps an existing client. Use Dial to create one.
func NewSignalWriter(client *goredis.Client, cfg SignalWriterConfig) *SignalWriter {
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultSignalMaxLen
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = defaultMaxBacklog
	}

	w := &SignalWriter{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		cfg:    cfg,
	}
	w.cb.OnStateChange = func(from, to State) {
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(from, to)
		}
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
		if to == StateClosed {
			w.flushWG.Add(1)
			go w.flush()
		}
	}
	return w
}

// Client returns the underlying client for health checks.
func (w *SignalWriter) Client() *goredis.Client { return w.client }

// Breaker exposes the circuit breaker state.
func (w *SignalWriter) Breaker() *CircuitBreaker { return w.cb }

// Publish writes ev through the breaker. When the breaker is open the event
// is queued and Publish returns nil.
func (w *SignalWriter) Publish(ctx context.Context, ev model.SignalEvent) error {
	err := w.cb.Execute(func() error { return w.write(ctx, ev) })
	if errors.Is(err, ErrCircuitOpen) {
		w.enqueue(ev)
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Symbol, err)
	}
	return nil
}

func (w *SignalWriter) write(ctx context.Context, ev model.SignalEvent) error {
	data := string(ev.JSON())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: ev.StreamKey(),
		MaxLen: w.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Set(ctx, LatestSignalKey(ev.Symbol), data, w.cfg.LatestTTL)
	pipe.Publish(ctx, ev.PubSubChannel(), data)

	_, err := pipe.Exec(ctx)
	return err
}

func (w *SignalWriter) enqueue(ev model.SignalEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.backlog) >= w.cfg.MaxBacklog {
		w.backlog = w.backlog[1:]
		w.dropped++
	}
	w.backlog = append(w.backlog, ev)
}

// flush replays the backlog in arrival order. Events that fail again go back
// to the front of the backlog.
func (w *SignalWriter) flush() {
	defer w.flushWG.Done()

	w.mu.Lock()
	pending := w.backlog
	w.backlog = nil
	w.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	for i, ev := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.write(ctx, ev)
		cancel()
		if err != nil {
			slog.Error("redis backlog flush failed", "flushed", i, "remaining", len(pending)-i, "error", err)
			w.mu.Lock()
			w.backlog = append(append([]model.SignalEvent{}, pending[i:]...), w.backlog...)
			w.mu.Unlock()
			return
		}
	}
	slog.Info("redis backlog flushed", "count", len(pending))
}

// Pending returns the number of queued events.
func (w *SignalWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.backlog)
}

// Dropped returns how many queued events were discarded because the backlog was full.
func (w *SignalWriter) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Latest reads the most recent signal stored for symbol.
func (w *SignalWriter) Latest(ctx context.Context, symbol string) (model.SignalEvent, bool, error) {
	raw, err := w.client.Get(ctx, LatestSignalKey(symbol)).Result()
	if errors.Is(err, goredis.Nil) {
		return model.SignalEvent{}, false, nil
	}
	if err != nil {
		return model.SignalEvent{}, false, fmt.Errorf("redis get latest %s: %w", symbol, err)
	}
	ev, err := decodeSignal(raw)
	if err != nil {
		return model.SignalEvent{}, false, err
	}
	return ev, true, nil
}

// Close waits for an in-flight backlog flush and closes the client.
func (w *SignalWriter) Close() error {
	w.flushWG.Wait()
	if n := w.Pending(); n > 0 {
		slog.Warn("redis signal writer closed with queued signals", "count", n)
	}
	return w.client.Close()
}

// LatestSignalKey returns "signal:latest:{symbol}".
func LatestSignalKey(symbol string) string {
	return "signal:latest:" + symbol
}
