package entity

import (
	"github.com/google/uuid"
)

type CancellationSeverity string

const (
	SeverityLow    CancellationSeverity = "low"
	SeverityMedium CancellationSeverity = "medium"
	SeverityHigh   CancellationSeverity = "high"
)

// CancellationAttempt is the audit row written for every cancellation evaluation.
type CancellationAttempt struct {
	BaseSimple
	ActorID       uuid.UUID            `db:"actor_id"`
	BookingID     uuid.UUID            `db:"booking_id"`
	TripID        uuid.UUID            `db:"trip_id"`
	AttemptType   CancellationType     `db:"attempt_type"`
	Severity      CancellationSeverity `db:"severity"`
	Allowed       bool                 `db:"allowed"`
	DenialReason  *string              `db:"denial_reason"`
	RefundPercent float64              `db:"refund_percent"`
}
