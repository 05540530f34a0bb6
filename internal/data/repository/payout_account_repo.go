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

type PayoutAccountRepository interface {
	Upsert(ctx context.Context, account *entity.PayoutAccount) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PayoutAccount, error)
	UpdateCapabilities(ctx context.Context, providerAccountID string, charges, payouts, details bool) error
}

type payoutAccountRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPayoutAccountRepository(db database.Querier, log *zap.Logger) PayoutAccountRepository {
	return &payoutAccountRepository{
		db:  db,
		log: log.With(zap.String("repository", "payout_account")),
	}
}

func (r *payoutAccountRepository) Upsert(ctx context.Context, account *entity.PayoutAccount) error {
	query := `
		INSERT INTO payout_accounts (user_id, provider_account_id, charges_enabled,
		                             payouts_enabled, details_submitted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET provider_account_id = EXCLUDED.provider_account_id,
		    charges_enabled = EXCLUDED.charges_enabled,
		    payouts_enabled = EXCLUDED.payouts_enabled,
		    details_submitted = EXCLUDED.details_submitted,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		account.UserID,
		account.ProviderAccountID,
		account.ChargesEnabled,
		account.PayoutsEnabled,
		account.DetailsSubmitted,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to upsert payout account",
			zap.Error(err),
			zap.String("user_id", account.UserID.String()),
		)
		return fmt.Errorf("upsert payout account for %s: %w", account.UserID.String(), err)
	}

	return nil
}

func (r *payoutAccountRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PayoutAccount, error) {
	query := `
		SELECT user_id, provider_account_id, charges_enabled, payouts_enabled,
		       details_submitted, created_at, updated_at
		FROM payout_accounts
		WHERE user_id = $1
	`

	var account entity.PayoutAccount
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.ProviderAccountID,
		&account.ChargesEnabled,
		&account.PayoutsEnabled,
		&account.DetailsSubmitted,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payout account",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("find payout account for %s: %w", userID.String(), err)
	}

	return &account, nil
}

// UpdateCapabilities applies an account status pushed by the provider.
func (r *payoutAccountRepository) UpdateCapabilities(ctx context.Context, providerAccountID string, charges, payouts, details bool) error {
	query := `
		UPDATE payout_accounts
		SET charges_enabled = $2, payouts_enabled = $3, details_submitted = $4, updated_at = NOW()
		WHERE provider_account_id = $1
	`

	result, err := r.db.Exec(ctx, query, providerAccountID, charges, payouts, details)
	if err != nil {
		r.log.Error("Failed to update payout account capabilities",
			zap.Error(err),
			zap.String("provider_account_id", providerAccountID),
		)
		return fmt.Errorf("update payout account %s: %w", providerAccountID, err)
	}

	if result.RowsAffected() == 0 {
		r.log.Warn("Provider account not linked to any user", zap.String("provider_account_id", providerAccountID))
	}

	return nil
}
