package entity

import (
	"time"

	"github.com/google/uuid"
)

type EscrowStatus string

const (
	EscrowStatusHolding       EscrowStatus = "holding"
	EscrowStatusFullyReleased EscrowStatus = "fully_released"
	EscrowStatusRefunded      EscrowStatus = "refunded"
	EscrowStatusDisputed      EscrowStatus = "disputed"
)

// EscrowAccount is the local record of captured money withheld from the carrier.
type EscrowAccount struct {
	BaseNoDelete
	TransactionID  uuid.UUID    `db:"transaction_id"`
	BookingID      uuid.UUID    `db:"booking_id"`
	AmountHeld     int64        `db:"amount_held"`     // cents
	AmountReleased int64        `db:"amount_released"` // cents
	Currency       string       `db:"currency"`
	Status         EscrowStatus `db:"status"`
	HeldReason     string       `db:"held_reason"`
	ReleasedAt     *time.Time   `db:"released_at"`
	ReleaseNotes   *string      `db:"release_notes"`
}

func (e *EscrowAccount) IsHolding() bool {
	return e.Status == EscrowStatusHolding
}
