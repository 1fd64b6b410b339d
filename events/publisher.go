// Package events publishes reservation lifecycle events to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Routing keys.
const (
	ReservationCreated     = "reservation.created"
	ReservationUpdated     = "reservation.updated"
	ReservationCancelled   = "reservation.cancelled"
	ReservationReactivated = "reservation.reactivated"
	BatchCompleted         = "autoreservation.batch.completed"
)

// Publisher sends a payload to the bus under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// ReservationEvent is emitted after every reservation write.
type ReservationEvent struct {
	Type            string    `json:"type"`
	ReservationID   string    `json:"reservation_id"`
	UserID          string    `json:"user_id"`
	MenuID          string    `json:"menu_id"`
	MenuVariationID string    `json:"menu_variation_id"`
	ReservationDate string    `json:"reservation_date"`
	Status          string    `json:"status"`
	IsAutoGenerated bool      `json:"is_auto_generated"`
	Admin           bool      `json:"admin,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// BatchEvent summarizes one auto-reservation batch.
type BatchEvent struct {
	Date                   string    `json:"date"`
	TotalUsers             int       `json:"total_users"`
	SuccessfulReservations int       `json:"successful_reservations"`
	FailedReservations     int       `json:"failed_reservations"`
	SkippedReservations    int       `json:"skipped_reservations"`
	ProcessedAt            time.Time `json:"processed_at"`
}

// PublishJSON marshals v and publishes it under routingKey.
func PublishJSON(ctx context.Context, p Publisher, routingKey string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	return p.Publish(ctx, routingKey, payload)
}

// =============================================================================
// NOOP PUBLISHER
// =============================================================================

// NoopPublisher drops every message. Used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("event dropped, no broker configured", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
