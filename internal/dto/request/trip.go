package request

import "time"

type CreateTripRequest struct {
	Origin      string    `json:"origin" validate:"required,max=255"`
	Destination string    `json:"destination" validate:"required,max=255"`
	DepartureAt time.Time `json:"departure_at" validate:"required"`
	CapacityKg  float64   `json:"capacity_kg" validate:"required,gt=0"`
	PricePerKg  *float64  `json:"price_per_kg,omitempty" validate:"omitempty,money"`
}

type LinkPayoutAccountRequest struct {
	AccountID string `json:"account_id" validate:"required,startswith=acct_"`
}
