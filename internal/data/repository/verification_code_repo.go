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

type VerificationCodeRepository interface {
	Create(ctx context.Context, code *entity.VerificationCode) error
	// FindActive returns the unused, non-invalidated code for (booking, type),
	// expired or not; expiry is judged by the caller.
	FindActive(ctx context.Context, bookingID uuid.UUID, codeType entity.CodeType) (*entity.VerificationCode, error)
	// CodeInUse reports whether code is held by any unused, unexpired code of codeType.
	CodeInUse(ctx context.Context, code string, codeType entity.CodeType) (bool, error)
	InvalidateActive(ctx context.Context, bookingID uuid.UUID, codeType entity.CodeType) (int64, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	// MarkUsed consumes the code; a second call returns ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

type verificationCodeRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewVerificationCodeRepository(db database.Querier, log *zap.Logger) VerificationCodeRepository {
	return &verificationCodeRepository{
		db:  db,
		log: log.With(zap.String("repository", "verification_code")),
	}
}

func (r *verificationCodeRepository) Create(ctx context.Context, code *entity.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (id, user_id, booking_id, code, code_type,
		                                expires_at, is_used, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		code.ID,
		code.UserID,
		code.BookingID,
		code.Code,
		code.CodeType,
		code.ExpiresAt,
		code.IsUsed,
		code.Attempts,
		code.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create verification code",
			zap.Error(err),
			zap.String("user_id", code.UserID.String()),
			zap.String("code_type", string(code.CodeType)),
		)
		return fmt.Errorf("create %s for user %s: %w", code.CodeType, code.UserID.String(), err)
	}

	return nil
}

func (r *verificationCodeRepository) FindActive(ctx context.Context, bookingID uuid.UUID, codeType entity.CodeType) (*entity.VerificationCode, error) {
	query := `
		SELECT id, user_id, booking_id, code, code_type, expires_at,
		       is_used, used_at, invalidated_at, attempts, created_at
		FROM verification_codes
		WHERE booking_id = $1
		  AND code_type = $2
		  AND is_used = false
		  AND invalidated_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var code entity.VerificationCode
	err := r.db.QueryRow(ctx, query, bookingID, codeType).Scan(
		&code.ID,
		&code.UserID,
		&code.BookingID,
		&code.Code,
		&code.CodeType,
		&code.ExpiresAt,
		&code.IsUsed,
		&code.UsedAt,
		&code.InvalidatedAt,
		&code.Attempts,
		&code.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find active verification code",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.String("code_type", string(codeType)),
		)
		return nil, fmt.Errorf("find active %s for booking %s: %w", codeType, bookingID.String(), err)
	}

	return &code, nil
}

func (r *verificationCodeRepository) CodeInUse(ctx context.Context, code string, codeType entity.CodeType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM verification_codes
			WHERE code = $1 AND code_type = $2
			  AND is_used = false AND invalidated_at IS NULL AND expires_at > NOW()
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, code, codeType).Scan(&exists); err != nil {
		r.log.Error("Failed to check verification code uniqueness", zap.Error(err))
		return false, fmt.Errorf("check code uniqueness: %w", err)
	}

	return exists, nil
}

func (r *verificationCodeRepository) InvalidateActive(ctx context.Context, bookingID uuid.UUID, codeType entity.CodeType) (int64, error) {
	query := `
		UPDATE verification_codes
		SET invalidated_at = NOW()
		WHERE booking_id = $1 AND code_type = $2
		  AND is_used = false AND invalidated_at IS NULL
	`

	result, err := r.db.Exec(ctx, query, bookingID, codeType)
	if err != nil {
		r.log.Error("Failed to invalidate verification codes",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
			zap.String("code_type", string(codeType)),
		)
		return 0, fmt.Errorf("invalidate %s for booking %s: %w", codeType, bookingID.String(), err)
	}

	return result.RowsAffected(), nil
}

func (r *verificationCodeRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	query := `UPDATE verification_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	var attempts int
	if err := r.db.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		r.log.Error("Failed to increment verification attempts",
			zap.Error(err),
			zap.String("code_id", id.String()),
		)
		return 0, fmt.Errorf("increment attempts for code %s: %w", id.String(), err)
	}

	return attempts, nil
}

func (r *verificationCodeRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE verification_codes
		SET is_used = true, used_at = NOW()
		WHERE id = $1 AND is_used = false
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to mark verification code as used",
			zap.Error(err),
			zap.String("code_id", id.String()),
		)
		return fmt.Errorf("mark code %s as used: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return ErrAlreadyUsed
	}

	return nil
}
