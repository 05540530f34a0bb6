package repository

import (
	"context"
	"fmt"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CancellationAttemptRepository interface {
	Create(ctx context.Context, attempt *entity.CancellationAttempt) error
	// CountAllowedSince counts the actor's own cancellations that went through since the given time.
	CountAllowedSince(ctx context.Context, actorID uuid.UUID, since time.Time) (int, error)
	FindByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*entity.CancellationAttempt, error)
	CountByActor(ctx context.Context, actorID uuid.UUID) (int64, error)
	FindAll(ctx context.Context, severity string, limit, offset int) ([]*entity.CancellationAttempt, error)
	CountAll(ctx context.Context, severity string) (int64, error)
}

type cancellationAttemptRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewCancellationAttemptRepository(db database.Querier, log *zap.Logger) CancellationAttemptRepository {
	return &cancellationAttemptRepository{
		db:  db,
		log: log.With(zap.String("repository", "cancellation_attempt")),
	}
}

const cancellationColumns = `id, actor_id, booking_id, trip_id, attempt_type, severity,
		allowed, denial_reason, refund_percent, created_at`

func (r *cancellationAttemptRepository) Create(ctx context.Context, attempt *entity.CancellationAttempt) error {
	query := `
		INSERT INTO cancellation_attempts (id, actor_id, booking_id, trip_id, attempt_type,
		                                   severity, allowed, denial_reason, refund_percent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		attempt.ID,
		attempt.ActorID,
		attempt.BookingID,
		attempt.TripID,
		attempt.AttemptType,
		attempt.Severity,
		attempt.Allowed,
		attempt.DenialReason,
		attempt.RefundPercent,
		attempt.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to record cancellation attempt",
			zap.Error(err),
			zap.String("actor_id", attempt.ActorID.String()),
			zap.String("booking_id", attempt.BookingID.String()),
		)
		return fmt.Errorf("record cancellation attempt: %w", err)
	}

	return nil
}

func (r *cancellationAttemptRepository) CountAllowedSince(ctx context.Context, actorID uuid.UUID, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM cancellation_attempts WHERE actor_id = $1 AND allowed = true AND attempt_type <> 'no_show' AND created_at >= $2`

	var count int
	if err := r.db.QueryRow(ctx, query, actorID, since).Scan(&count); err != nil {
		r.log.Error("Failed to count prior cancellations",
			zap.Error(err),
			zap.String("actor_id", actorID.String()),
		)
		return 0, fmt.Errorf("count cancellations for %s: %w", actorID.String(), err)
	}

	return count, nil
}

func (r *cancellationAttemptRepository) FindByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*entity.CancellationAttempt, error) {
	query := `
		SELECT ` + cancellationColumns + `
		FROM cancellation_attempts
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, actorID, limit, offset)
}

func (r *cancellationAttemptRepository) CountByActor(ctx context.Context, actorID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cancellation_attempts WHERE actor_id = $1`, actorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cancellation attempts for %s: %w", actorID.String(), err)
	}
	return count, nil
}

// FindAll lists attempts for admin reporting; an empty severity means all.
func (r *cancellationAttemptRepository) FindAll(ctx context.Context, severity string, limit, offset int) ([]*entity.CancellationAttempt, error) {
	query := `
		SELECT ` + cancellationColumns + `
		FROM cancellation_attempts
		WHERE ($1 = '' OR severity = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, severity, limit, offset)
}

func (r *cancellationAttemptRepository) CountAll(ctx context.Context, severity string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cancellation_attempts WHERE ($1 = '' OR severity = $1)`, severity).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cancellation attempts: %w", err)
	}
	return count, nil
}

func (r *cancellationAttemptRepository) list(ctx context.Context, query string, arg any, limit, offset int) ([]*entity.CancellationAttempt, error) {
	rows, err := r.db.Query(ctx, query, arg, limit, offset)
	if err != nil {
		r.log.Error("Failed to list cancellation attempts", zap.Error(err))
		return nil, fmt.Errorf("list cancellation attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*entity.CancellationAttempt
	for rows.Next() {
		var a entity.CancellationAttempt
		if err := rows.Scan(&a.ID, &a.ActorID, &a.BookingID, &a.TripID, &a.AttemptType,
			&a.Severity, &a.Allowed, &a.DenialReason, &a.RefundPercent, &a.CreatedAt); err != nil {
			r.log.Error("Failed to scan cancellation attempt row", zap.Error(err))
			return nil, fmt.Errorf("scan cancellation attempt row: %w", err)
		}
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}
