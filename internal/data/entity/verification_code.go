package entity

import (
	"time"

	"github.com/google/uuid"
)

type CodeType string

const (
	CodeTypePickup   CodeType = "pickup_code"
	CodeTypeDelivery CodeType = "delivery_code"
)

func (c CodeType) Valid() bool {
	return c == CodeTypePickup || c == CodeTypeDelivery
}

// VerificationCode is a single-use secret bound to one booking and one purpose.
// UserID is the holder: the party allowed to see the code.
type VerificationCode struct {
	BaseSimple
	UserID        uuid.UUID  `db:"user_id"`
	BookingID     *uuid.UUID `db:"booking_id"`
	Code          string     `db:"code"`
	CodeType      CodeType   `db:"code_type"`
	ExpiresAt     time.Time  `db:"expires_at"`
	IsUsed        bool       `db:"is_used"`
	UsedAt        *time.Time `db:"used_at"`
	InvalidatedAt *time.Time `db:"invalidated_at"`
	Attempts      int        `db:"attempts"`
}

func (c *VerificationCode) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// RemainingAttempts never goes below zero.
func (c *VerificationCode) RemainingAttempts(max int) int {
	if c.Attempts >= max {
		return 0
	}
	return max - c.Attempts
}
