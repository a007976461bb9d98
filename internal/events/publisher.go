// Package events publishes approval-audit events to Kafka so downstream
// systems learn when staff confirm or deny a pending record. When Kafka
// is disabled the publisher degrades to log-only mode; publish failures
// are never surfaced to the staff request that triggered them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"kiosk-orchestrator-service/internal/observability/metrics"
)

// Publisher publishes approval events to separate Kafka topics.
type Publisher struct {
	writerApprovals *kafka.Writer
	writerSummaries *kafka.Writer
	principal       string
	topicApprovals  string
	topicSummaries  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicApprovals string
	TopicSummaries string
	Principal      string
	Enabled        bool
}

// AuditEvent is the payload published for every staff decision.
type AuditEvent struct {
	Kind      string `json:"kind"` // "item" or "session_summary"
	ID        string `json:"id"`
	Outcome   string `json:"outcome"` // "confirmed" or "denied"
	Timestamp int64  `json:"timestamp"`
}

// New creates a Kafka publisher, or a log-only one when disabled.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		p := &Publisher{enabled: false, metrics: m}
		if cfg != nil {
			p.principal = cfg.Principal
			p.topicApprovals = cfg.TopicApprovals
			p.topicSummaries = cfg.TopicSummaries
		}
		return p
	}

	// Longer dial timeouts for DNS resolution inside the venue network.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicApprovals", cfg.TopicApprovals).
		Str("topicSummaries", cfg.TopicSummaries).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerApprovals: newWriter(cfg.TopicApprovals),
		writerSummaries: newWriter(cfg.TopicSummaries),
		principal:       cfg.Principal,
		topicApprovals:  cfg.TopicApprovals,
		topicSummaries:  cfg.TopicSummaries,
		enabled:         true,
		metrics:         m,
	}
}

// PublishApproval publishes a pending-item decision.
func (p *Publisher) PublishApproval(ctx context.Context, ev AuditEvent) error {
	return p.publish(ctx, p.writerApprovals, p.topicApprovals, ev)
}

// PublishSummary publishes a session-summary decision.
func (p *Publisher) PublishSummary(ctx context.Context, ev AuditEvent) error {
	return p.publish(ctx, p.writerSummaries, p.topicSummaries, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic string, ev AuditEvent) error {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal audit event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		RawJSON("payload", payload).
		Msg("Publishing audit event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("id", ev.ID).Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers. Idempotent.
func (p *Publisher) Close() error {
	var err error
	if p.writerApprovals != nil {
		if e := p.writerApprovals.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing approvals writer")
			err = e
		}
		p.writerApprovals = nil
	}
	if p.writerSummaries != nil {
		if e := p.writerSummaries.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing summaries writer")
			err = e
		}
		p.writerSummaries = nil
	}
	return err
}
