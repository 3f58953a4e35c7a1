// Package stream streams applied escalation events to a Kafka topic.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/leasehold/internal/ctxutil"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/secondary"
)

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchSize defaults to 100.
	BatchSize int
	// BatchTimeout defaults to 1 second.
	BatchTimeout time.Duration
	// WriteTimeout defaults to 10 seconds.
	WriteTimeout time.Duration
	// RequiredAcks: -1 all replicas, 1 leader only. Default -1.
	RequiredAcks int
	// CompressionCodec is one of none, gzip, snappy, lz4, zstd. Default snappy.
	CompressionCodec string
}

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements secondary.EventPublisher over a kafka-go Writer.
type Publisher struct {
	topic  string
	writer messageWriter
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// eventMessage is the JSON value written for each escalation event.
type eventMessage struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	TicketID    string    `json:"ticket_id"`
	OrgID       string    `json:"org_id"`
	PropertyID  string    `json:"property_id"`
	Level       int       `json:"level"`
	Role        string    `json:"role"`
	TriggeredAt time.Time `json:"triggered_at"`
	RunID       string    `json:"run_id,omitempty"`
}

const eventType = "ticket.escalated"

// NewPublisher creates a Publisher writing to cfg.Topic.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = -1
	}

	compression := kafka.Snappy
	switch cfg.CompressionCodec {
	case "none":
		compression = 0
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
	default:
		logger.Warn("unknown compression codec, defaulting to snappy",
			zap.String("codec", cfg.CompressionCodec))
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequiredAcks(requiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: false,
	}

	logger.Info("Kafka event publisher created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return newPublisher(cfg.Topic, writer, logger), nil
}

func newPublisher(topic string, writer messageWriter, logger *zap.Logger) *Publisher {
	return &Publisher{
		topic:  topic,
		writer: writer,
		logger: logger.Named("kafka"),
	}
}

// Publish writes one escalation event. Messages are keyed by ticket so all
// levels of a ticket land on one partition in order.
func (p *Publisher) Publish(ctx context.Context, event *secondary.EscalationEventRecord) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.PublishErrors.WithLabelValues(p.topic, "closed").Inc()
		return fmt.Errorf("kafka publisher is closed")
	}
	p.mu.Unlock()

	start := time.Now()
	runID := ctxutil.RunIDFromContext(ctx)

	value, err := json.Marshal(eventMessage{
		ID:          event.ID,
		Type:        eventType,
		TicketID:    event.TicketID,
		OrgID:       event.OrgID,
		PropertyID:  event.PropertyID,
		Level:       event.Level,
		Role:        event.Role,
		TriggeredAt: event.TriggeredAt.UTC(),
		RunID:       runID,
	})
	if err != nil {
		metrics.PublishErrors.WithLabelValues(p.topic, "serialization").Inc()
		return fmt.Errorf("failed to marshal escalation event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event-id", Value: []byte(event.ID)},
		{Key: "event-type", Value: []byte(eventType)},
		{Key: "level", Value: []byte(strconv.Itoa(event.Level))},
		{Key: "timestamp", Value: []byte(event.TriggeredAt.UTC().Format(time.RFC3339))},
	}
	if runID != "" {
		headers = append(headers, kafka.Header{Key: "run-id", Value: []byte(runID)})
	}

	msg := kafka.Message{
		Key:     []byte(event.TicketID),
		Value:   value,
		Headers: headers,
	}

	err = p.writer.WriteMessages(ctx, msg)
	duration := time.Since(start)
	metrics.PublishLatency.WithLabelValues(p.topic).Observe(duration.Seconds())
	if err != nil {
		errorType := classifyKafkaError(err)
		metrics.PublishErrors.WithLabelValues(p.topic, errorType).Inc()

		logFields := []zap.Field{
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.Duration("duration", duration),
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID),
		}
		switch errorType {
		case "network", "dns", "timeout":
			p.logger.Warn("Kafka temporarily unavailable, escalation event not published", logFields...)
		default:
			p.logger.Error("failed to publish escalation event", logFields...)
		}
		return fmt.Errorf("failed to write to Kafka (%s): %w", errorType, err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		p.logger.Error("failed to close Kafka writer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

// classifyKafkaError categorizes Kafka errors for metrics and logging.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "authorization") || strings.Contains(errStr, "ACL"):
		return "authorization"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "broker") || strings.Contains(errStr, "leader"):
		return "broker"
	case strings.Contains(errStr, "topic"):
		return "topic"
	default:
		return "other"
	}
}

// NopPublisher discards events. It is used when no Kafka brokers are configured.
type NopPublisher struct{}

// Publish implements secondary.EventPublisher.
func (NopPublisher) Publish(ctx context.Context, event *secondary.EscalationEventRecord) error {
	return nil
}

// Close implements secondary.EventPublisher.
func (NopPublisher) Close() error { return nil }

// Ensure implementations satisfy the interface
var (
	_ secondary.EventPublisher = (*Publisher)(nil)
	_ secondary.EventPublisher = NopPublisher{}
)
