// Package events publishes booking domain events after a transition commits.
package events

import (
	"context"
	"time"
)

const TypeBookingTransitioned = "booking.transitioned"

type BookingTransitioned struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Reference  int64     `json:"reference"`
	TripID     string    `json:"trip_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorRole  string    `json:"actor_role"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt BookingTransitioned) error
	Close() error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingTransitioned) error { return nil }
func (NopPublisher) Close() error { return nil }
