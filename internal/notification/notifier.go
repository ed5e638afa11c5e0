// Package notification provides alert delivery to external channels
// (Telegram, webhooks, logs) for trading events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fastquant/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`

	// Set by SignalAlert and FillAlert.
	Signal *model.SignalEvent `json:"signal,omitempty"`
	Fill   *model.Fill        `json:"fill,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert describes a crossover signal.
func SignalAlert(ev model.SignalEvent) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", ev.Signal, ev.Symbol),
		Message: fmt.Sprintf("%s @ %.2f: %s", ev.Symbol, ev.Price, ev.Reason()),
		Fields: map[string]string{
			"strategy": ev.Strategy,
			"fast_ma":  fmt.Sprintf("%.4f", ev.FastMA),
			"slow_ma":  fmt.Sprintf("%.4f", ev.SlowMA),
		},
		Signal: &ev,
	}
}

// FillAlert describes an executed order.
func FillAlert(f model.Fill) Alert {
	mode := "live"
	if f.Simulated {
		mode = "paper"
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s filled (%s)", f.Order.Side, f.Order.Symbol, mode),
		Message: fmt.Sprintf("%g %s @ %.2f, order %s", f.Quantity, f.Order.Symbol, f.Price, f.OrderID),
		Fill:    &f,
	}
}

// ErrorAlert reports a failed operation.
func ErrorAlert(title string, err error) Alert {
	return Alert{Level: AlertWarning, Title: title, Message: err.Error()}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	if alert.Level != AlertInfo {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "alert", "level", string(alert.Level), "title", alert.Title, "message", alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher adapts a Notifier into a model.SignalPublisher that only forwards
// actionable signals.
type Publisher struct {
	n Notifier
}

// NewPublisher wraps n.
func NewPublisher(n Notifier) *Publisher {
	return &Publisher{n: n}
}

func (p *Publisher) Publish(ctx context.Context, ev model.SignalEvent) error {
	if !ev.Signal.Actionable() {
		return nil
	}
	return p.n.Send(ctx, SignalAlert(ev))
}

func (p *Publisher) Close() error { return nil }
