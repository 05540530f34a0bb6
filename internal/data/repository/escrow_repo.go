package repository

import (
	"context"
	"errors"
	"fmt"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type EscrowRepository interface {
	// CreateIfAbsent inserts the hold unless one already exists for the same
	// transaction; created is false in that case.
	CreateIfAbsent(ctx context.Context, escrow *entity.EscrowAccount) (created bool, err error)
	FindByID(ctx context.Context, id uuid.UUID) (*entity.EscrowAccount, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.EscrowAccount, error)
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*entity.EscrowAccount, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.EscrowAccount, error)
	// Settle moves a holding escrow to its final state; ErrNotHolding otherwise.
	Settle(ctx context.Context, escrow *entity.EscrowAccount) error
}

type escrowRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewEscrowRepository(db database.Querier, log *zap.Logger) EscrowRepository {
	return &escrowRepository{
		db:  db,
		log: log.With(zap.String("repository", "escrow")),
	}
}

const escrowColumns = `id, transaction_id, booking_id, amount_held, amount_released, currency,
		status, held_reason, released_at, release_notes, created_at, updated_at`

func (r *escrowRepository) CreateIfAbsent(ctx context.Context, escrow *entity.EscrowAccount) (bool, error) {
	query := `
		INSERT INTO escrow_accounts (id, transaction_id, booking_id, amount_held, amount_released,
		                             currency, status, held_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		escrow.ID,
		escrow.TransactionID,
		escrow.BookingID,
		escrow.AmountHeld,
		escrow.AmountReleased,
		escrow.Currency,
		escrow.Status,
		escrow.HeldReason,
		escrow.CreatedAt,
		escrow.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create escrow hold",
			zap.Error(err),
			zap.String("transaction_id", escrow.TransactionID.String()),
		)
		return false, fmt.Errorf("create escrow for transaction %s: %w", escrow.TransactionID.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *escrowRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_accounts WHERE id = $1`
	return r.findOne(ctx, query, id, "escrow_id")
}

func (r *escrowRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_accounts WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, query, id, "escrow_id")
}

func (r *escrowRepository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*entity.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_accounts WHERE transaction_id = $1`
	return r.findOne(ctx, query, transactionID, "transaction_id")
}

func (r *escrowRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_accounts WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.findOne(ctx, query, bookingID, "booking_id")
}

func (r *escrowRepository) findOne(ctx context.Context, query string, id uuid.UUID, field string) (*entity.EscrowAccount, error) {
	var e entity.EscrowAccount
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.TransactionID,
		&e.BookingID,
		&e.AmountHeld,
		&e.AmountReleased,
		&e.Currency,
		&e.Status,
		&e.HeldReason,
		&e.ReleasedAt,
		&e.ReleaseNotes,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find escrow",
			zap.Error(err),
			zap.String(field, id.String()),
		)
		return nil, fmt.Errorf("find escrow by %s %s: %w", field, id.String(), err)
	}

	return &e, nil
}

func (r *escrowRepository) Settle(ctx context.Context, escrow *entity.EscrowAccount) error {
	query := `
		UPDATE escrow_accounts
		SET status = $2, amount_released = $3, released_at = $4, release_notes = $5, updated_at = $6
		WHERE id = $1 AND status = 'holding'
	`

	result, err := r.db.Exec(ctx, query,
		escrow.ID,
		escrow.Status,
		escrow.AmountReleased,
		escrow.ReleasedAt,
		escrow.ReleaseNotes,
		escrow.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to settle escrow",
			zap.Error(err),
			zap.String("escrow_id", escrow.ID.String()),
			zap.String("status", string(escrow.Status)),
		)
		return fmt.Errorf("settle escrow %s: %w", escrow.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotHolding
	}

	return nil
}
