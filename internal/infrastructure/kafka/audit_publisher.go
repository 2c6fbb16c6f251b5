// Package kafka publishes audit events to the platform event bus.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/internal/domain/models"
	"github.com/tweenim/capauth/internal/domain/service"
	"github.com/tweenim/capauth/pkg/logger"
)

type auditPublisher struct {
	writer *kafkago.Writer
	log    logger.Logger
}

// NewAuditPublisher creates a Kafka-backed AuditPublisher. Publishing is
// best-effort from the caller's point of view; the synchronous audit trail
// lives in Postgres.
func NewAuditPublisher(cfg *config.KafkaConfig, log logger.Logger) service.AuditPublisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	return &auditPublisher{
		writer: writer,
		log:    log.WithComponent("audit_publisher"),
	}
}

func (p *auditPublisher) Publish(ctx context.Context, event *models.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafkago.Message{
		// Keyed by subject so one user's events stay ordered per partition.
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.EventID, err)
	}

	p.log.Debug(ctx, "audit event published", logger.Fields{
		"event_id": event.EventID,
		"type":     event.Type,
	})
	return nil
}

func (p *auditPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when the event bus is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *models.AuditEvent) error { return nil }
func (NoopPublisher) Close() error                                                { return nil }
