package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fastquant/internal/model"
)

const webhookRetries = 2

// webhookPayload is the JSON body POSTed for every alert. Event is "signal",
// "fill" or "alert"; the matching domain object rides along.
type webhookPayload struct {
	Event   string             `json:"event"`
	Level   AlertLevel         `json:"level"`
	Symbol  string             `json:"symbol,omitempty"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Signal  *model.SignalEvent `json:"signal,omitempty"`
	Fill    *model.Fill        `json:"fill,omitempty"`
	Fields  map[string]string  `json:"fields,omitempty"`
	SentAt  time.Time          `json:"sent_at"`
}

func newWebhookPayload(a Alert, now time.Time) webhookPayload {
	p := webhookPayload{
		Event:   "alert",
		Level:   a.Level,
		Title:   a.Title,
		Message: a.Message,
		Fields:  a.Fields,
		SentAt:  now.UTC(),
	}
	switch {
	case a.Signal != nil:
		p.Event, p.Symbol, p.Signal = "signal", a.Signal.Symbol, a.Signal
	case a.Fill != nil:
		p.Event, p.Symbol, p.Fill = "fill", a.Fill.Order.Symbol, a.Fill
	}
	return p
}

// WebhookNotifier POSTs signals and fills to an HTTP endpoint. Transport
// errors and 5xx responses are retried with exponential backoff; 4xx
// responses are not.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	backOff func() backoff.BackOff
}

// NewWebhookNotifier creates a webhook notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, webhookRetries)
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert, time.Now()))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	attempts := 0
	op := func() error {
		attempts++
		return w.post(ctx, body)
	}
	if err := backoff.Retry(op, backoff.WithContext(w.backOff(), ctx)); err != nil {
		return err
	}

	slog.Debug("webhook alert sent", "url", w.url, "title", alert.Title, "attempts", attempts)
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("webhook: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("webhook: unexpected status %d", resp.StatusCode))
	}
	return nil
}
