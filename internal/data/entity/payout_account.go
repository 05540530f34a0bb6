package entity

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccount links a user to a connected account at the payment provider.
type PayoutAccount struct {
	UserID            uuid.UUID `db:"user_id"`
	ProviderAccountID string    `db:"provider_account_id"`
	ChargesEnabled    bool      `db:"charges_enabled"`
	PayoutsEnabled    bool      `db:"payouts_enabled"`
	DetailsSubmitted  bool      `db:"details_submitted"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// PaymentCapable reports whether the account can receive transfers.
func (a *PayoutAccount) PaymentCapable() bool {
	return a != nil && a.ProviderAccountID != "" && a.ChargesEnabled && a.PayoutsEnabled
}
