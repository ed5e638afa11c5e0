package model

import "context"

// ── Collaborator Ports ──
// These interfaces decouple the strategy runner from concrete market-data feeds,
// brokers and signal transports.

// TickSource streams ticks for the subscribed symbols.
type TickSource interface {
	// Run pushes ticks into out. Blocks until ctx is cancelled or the source ends.
	Run(ctx context.Context, out chan<- Tick) error
}

// SignalPublisher hands actionable signals to order-management collaborators.
type SignalPublisher interface {
	Publish(ctx context.Context, ev SignalEvent) error
	Close() error
}

// OrderPlacer executes orders, either against a venue or in simulation.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order Order) (Fill, error)
}

// TickRecorder persists raw ticks for later replay.
type TickRecorder interface {
	// Run reads ticks from in and stores them until ctx is cancelled or in is closed.
	Run(ctx context.Context, in <-chan Tick)
	Close() error
}

// TickReader loads recorded ticks in timestamp order.
type TickReader interface {
	ReadTicks(ctx context.Context, symbol string, fromMs int64) ([]Tick, error)
	Close() error
}
