package response

import (
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/utils"
)

type TripResponse struct {
	ID          string            `json:"id"`
	TravelerID  string            `json:"traveler_id"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	DepartureAt time.Time         `json:"departure_at"`
	CapacityKg  float64           `json:"capacity_kg"`
	PricePerKg  *float64          `json:"price_per_kg,omitempty"`
	Status      entity.TripStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

func TripToResponse(t *entity.Trip) TripResponse {
	resp := TripResponse{
		ID:          t.ID.String(),
		TravelerID:  t.TravelerID.String(),
		Origin:      t.Origin,
		Destination: t.Destination,
		DepartureAt: t.DepartureAt,
		CapacityKg:  t.CapacityKg,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
	}
	if t.PricePerKg != nil {
		p := utils.FromCents(*t.PricePerKg)
		resp.PricePerKg = &p
	}
	return resp
}

type PayoutAccountResponse struct {
	AccountID        string    `json:"account_id"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
	PaymentCapable   bool      `json:"payment_capable"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func PayoutAccountToResponse(a *entity.PayoutAccount) PayoutAccountResponse {
	return PayoutAccountResponse{
		AccountID:        a.ProviderAccountID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		PaymentCapable:   a.PaymentCapable(),
		UpdatedAt:        a.UpdatedAt,
	}
}
