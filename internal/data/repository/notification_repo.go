package repository

import (
	"context"
	"fmt"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	FindByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Notification, error)
}

type notificationRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewNotificationRepository(db database.Querier, log *zap.Logger) NotificationRepository {
	return &notificationRepository{
		db:  db,
		log: log.With(zap.String("repository", "notification")),
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, event_type, payload, channels, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, n.EventType, n.Payload, n.Channels, n.Priority, n.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create notification",
			zap.Error(err),
			zap.String("user_id", n.UserID.String()),
			zap.String("event_type", n.EventType),
		)
		return fmt.Errorf("create notification: %w", err)
	}

	return nil
}

func (r *notificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE notifications SET delivered_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification %s delivered: %w", id.String(), err)
	}
	return nil
}

func (r *notificationRepository) FindByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Notification, error) {
	query := `
		SELECT id, user_id, event_type, payload, channels, priority, delivered_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("list notifications for %s: %w", userID.String(), err)
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &n.Payload, &n.Channels,
			&n.Priority, &n.DeliveredAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		out = append(out, &n)
	}

	return out, rows.Err()
}
