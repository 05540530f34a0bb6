package entity

import (
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	TripStatusActive     TripStatus = "active"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

type Trip struct {
	Base
	TravelerID  uuid.UUID  `db:"traveler_id"`
	Origin      string     `db:"origin"`
	Destination string     `db:"destination"`
	DepartureAt time.Time  `db:"departure_at"`
	CapacityKg  float64    `db:"capacity_kg"`
	PricePerKg  *int64     `db:"price_per_kg"` // cents
	Status      TripStatus `db:"status"`
}

// AcceptsBookings reports whether new requests may still be made on the trip.
func (t *Trip) AcceptsBookings(now time.Time) bool {
	return t.Status == TripStatusActive && t.DepartureAt.After(now)
}
