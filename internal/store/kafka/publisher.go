// Package kafka publishes signal events to a Kafka topic, keyed by symbol so
// every symbol's signals stay ordered within one partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fastquant/internal/model"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "fastquant.signals"

// Config configures the Kafka signal publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int    // -1 all, 0 none, 1 leader
	Compression  string // gzip, snappy, lz4, zstd or "" for none
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements model.SignalPublisher.
type Publisher struct {
	w     messageWriter
	topic string
}

// New builds a synchronous writer for cfg.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
	}
	switch cfg.Compression {
	case "gzip":
		w.Compression = kafka.Gzip
	case "snappy":
		w.Compression = kafka.Snappy
	case "lz4":
		w.Compression = kafka.Lz4
	case "zstd":
		w.Compression = kafka.Zstd
	case "":
	default:
		return nil, fmt.Errorf("kafka: unknown compression %q", cfg.Compression)
	}

	slog.Info("kafka signal publisher ready", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Publisher{w: w, topic: cfg.Topic}, nil
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// Publish writes ev as JSON with the symbol as key.
func (p *Publisher) Publish(ctx context.Context, ev model.SignalEvent) error {
	if err := p.w.WriteMessages(ctx, Message(ev)); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Symbol, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Message builds the Kafka record for ev.
func Message(ev model.SignalEvent) kafka.Message {
	msg := kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: ev.JSON(),
		Time:  time.UnixMilli(ev.Timestamp),
		Headers: []kafka.Header{
			{Key: "signal", Value: []byte(ev.Signal)},
			{Key: "strategy", Value: []byte(ev.Strategy)},
		},
	}
	if ev.TraceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(ev.TraceID)})
	}
	return msg
}
