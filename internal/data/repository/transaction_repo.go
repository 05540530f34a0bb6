package repository

import (
	"context"
	"fmt"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransactionRepository is append-only: rows are never updated or deleted.
type TransactionRepository interface {
	Create(ctx context.Context, txn *entity.Transaction) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error)
}

type transactionRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewTransactionRepository(db database.Querier, log *zap.Logger) TransactionRepository {
	return &transactionRepository{
		db:  db,
		log: log.With(zap.String("repository", "transaction")),
	}
}

func (r *transactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO payment_transactions (id, booking_id, escrow_id, type, amount,
		                                  currency, provider_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		txn.ID,
		txn.BookingID,
		txn.EscrowID,
		txn.Type,
		txn.Amount,
		txn.Currency,
		txn.ProviderReference,
		txn.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create payment transaction",
			zap.Error(err),
			zap.String("booking_id", txn.BookingID.String()),
			zap.String("type", string(txn.Type)),
		)
		return fmt.Errorf("create %s transaction for booking %s: %w", txn.Type, txn.BookingID.String(), err)
	}

	return nil
}

func (r *transactionRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error) {
	query := `
		SELECT id, booking_id, escrow_id, type, amount, currency, provider_reference, created_at
		FROM payment_transactions
		WHERE booking_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to find transactions by booking",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("find transactions for booking %s: %w", bookingID.String(), err)
	}
	defer rows.Close()

	var txns []*entity.Transaction
	for rows.Next() {
		var t entity.Transaction
		if err := rows.Scan(&t.ID, &t.BookingID, &t.EscrowID, &t.Type, &t.Amount,
			&t.Currency, &t.ProviderReference, &t.CreatedAt); err != nil {
			r.log.Error("Failed to scan transaction row", zap.Error(err))
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, &t)
	}

	return txns, rows.Err()
}
