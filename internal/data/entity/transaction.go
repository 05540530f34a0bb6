package entity

import (
	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeCapture        TransactionType = "capture"
	TransactionTypePenaltyCapture TransactionType = "penalty_capture"
	TransactionTypeRelease        TransactionType = "release"
	TransactionTypeRefund         TransactionType = "refund"
	TransactionTypeTransfer       TransactionType = "transfer"
)

// Transaction is an append-only money movement row.
type Transaction struct {
	BaseSimple
	BookingID         uuid.UUID       `db:"booking_id"`
	EscrowID          *uuid.UUID      `db:"escrow_id"`
	Type              TransactionType `db:"type"`
	Amount            int64           `db:"amount"` // cents
	Currency          string          `db:"currency"`
	ProviderReference *string         `db:"provider_reference"`
}
