package entity

import (
	"time"

	"github.com/google/uuid"
)

// Base is embedded by soft-deletable rows: users, trips and bookings.
type Base struct {
	ID        uuid.UUID  `db:"id"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (b *Base) Touch(now time.Time) { b.UpdatedAt = now }

// BaseNoDelete is embedded by rows that change but are never removed (escrow accounts).
type BaseNoDelete struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (b *BaseNoDelete) Touch(now time.Time) { b.UpdatedAt = now }

// BaseSimple is embedded by append-only rows: events, transactions, attempts, codes.
type BaseSimple struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}
