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

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByAuthorizationID(ctx context.Context, authorizationID string) (*entity.Booking, error)
	FindByParty(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByParty(ctx context.Context, userID uuid.UUID) (int64, error)

	// UpdateTransition writes every mutable column of booking, guarded by
	// (expected status, booking.StatusVersion). On success StatusVersion is bumped;
	// a miss returns ErrVersionConflict and nothing is written.
	UpdateTransition(ctx context.Context, booking *entity.Booking, expected entity.BookingStatus) error
	UpdatePaymentStatus(ctx context.Context, authorizationID, paymentStatus string) error

	// CountOpenByTrip counts bookings on the trip that still need to reach completion.
	CountOpenByTrip(ctx context.Context, tripID uuid.UUID) (int64, error)

	AppendEvent(ctx context.Context, event *entity.BookingEvent) error
	ListEvents(ctx context.Context, bookingID uuid.UUID) ([]*entity.BookingEvent, error)
}

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `id, reference, trip_id, sender_id, receiver_id, weight_kg, description,
		proposed_price, final_price, commission_rate, commission_amount, currency,
		status, status_version, payment_authorization_id, payment_status, rejection_reason,
		cancellation_type, refund_percent, pickup_date, delivery_confirmed_at,
		completed_at, cancelled_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.TripID,
		&b.SenderID,
		&b.ReceiverID,
		&b.WeightKg,
		&b.Description,
		&b.ProposedPrice,
		&b.FinalPrice,
		&b.CommissionRate,
		&b.CommissionAmount,
		&b.Currency,
		&b.Status,
		&b.StatusVersion,
		&b.PaymentAuthorizationID,
		&b.PaymentStatus,
		&b.RejectionReason,
		&b.CancellationType,
		&b.RefundPercent,
		&b.PickupDate,
		&b.DeliveryConfirmedAt,
		&b.CompletedAt,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, trip_id, sender_id, receiver_id, weight_kg, description,
		                      proposed_price, currency, status, status_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING reference
	`

	err := r.db.QueryRow(ctx, query,
		booking.ID,
		booking.TripID,
		booking.SenderID,
		booking.ReceiverID,
		booking.WeightKg,
		booking.Description,
		booking.ProposedPrice,
		booking.Currency,
		booking.Status,
		booking.StatusVersion,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&booking.Reference)
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("trip_id", booking.TripID.String()),
			zap.String("sender_id", booking.SenderID.String()),
		)
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND deleted_at IS NULL`
	return r.findOne(ctx, query, id, "booking_id", id.String())
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return r.findOne(ctx, query, id, "booking_id", id.String())
}

func (r *bookingRepository) FindByAuthorizationID(ctx context.Context, authorizationID string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_authorization_id = $1`
	return r.findOne(ctx, query, authorizationID, "authorization_id", authorizationID)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, arg any, field, value string) (*entity.Booking, error) {
	booking, err := scanBooking(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking",
			zap.Error(err),
			zap.String(field, value),
		)
		return nil, fmt.Errorf("find booking by %s %s: %w", field, value, err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByParty(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE (sender_id = $1 OR receiver_id = $1) AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by party",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by user ID %s: %w", userID.String(), err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func (r *bookingRepository) CountByParty(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE (sender_id = $1 OR receiver_id = $1) AND deleted_at IS NULL`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by party",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count bookings by user ID %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) UpdateTransition(ctx context.Context, booking *entity.Booking, expected entity.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $4, status_version = status_version + 1,
		    final_price = $5, commission_rate = $6, commission_amount = $7,
		    payment_authorization_id = $8, payment_status = $9, rejection_reason = $10,
		    cancellation_type = $11, refund_percent = $12, pickup_date = $13,
		    delivery_confirmed_at = $14, completed_at = $15, cancelled_at = $16,
		    updated_at = $17
		WHERE id = $1 AND status = $2 AND status_version = $3
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		expected,
		booking.StatusVersion,
		booking.Status,
		booking.FinalPrice,
		booking.CommissionRate,
		booking.CommissionAmount,
		booking.PaymentAuthorizationID,
		booking.PaymentStatus,
		booking.RejectionReason,
		booking.CancellationType,
		booking.RefundPercent,
		booking.PickupDate,
		booking.DeliveryConfirmedAt,
		booking.CompletedAt,
		booking.CancelledAt,
		booking.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update booking transition",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("from", string(expected)),
			zap.String("to", string(booking.Status)),
		)
		return fmt.Errorf("update booking %s to %s: %w", booking.ID.String(), booking.Status, err)
	}

	if result.RowsAffected() == 0 {
		r.log.Warn("Booking transition lost the race",
			zap.String("booking_id", booking.ID.String()),
			zap.String("expected_status", string(expected)),
			zap.Int("expected_version", booking.StatusVersion),
		)
		return ErrVersionConflict
	}

	booking.StatusVersion++
	return nil
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, authorizationID, paymentStatus string) error {
	query := `UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE payment_authorization_id = $1`

	if _, err := r.db.Exec(ctx, query, authorizationID, paymentStatus); err != nil {
		r.log.Error("Failed to update booking payment status",
			zap.Error(err),
			zap.String("authorization_id", authorizationID),
		)
		return fmt.Errorf("update payment status for %s: %w", authorizationID, err)
	}

	return nil
}

func (r *bookingRepository) CountOpenByTrip(ctx context.Context, tripID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE trip_id = $1
		  AND status IN ('accepted', 'payment_authorized', 'payment_confirmed', 'paid', 'in_transit', 'delivered')
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, tripID).Scan(&count); err != nil {
		r.log.Error("Failed to count open bookings by trip",
			zap.Error(err),
			zap.String("trip_id", tripID.String()),
		)
		return 0, fmt.Errorf("count open bookings for trip %s: %w", tripID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) AppendEvent(ctx context.Context, event *entity.BookingEvent) error {
	query := `
		INSERT INTO booking_events (id, booking_id, action, from_status, to_status,
		                            actor_id, actor_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.BookingID,
		event.Action,
		event.FromStatus,
		event.ToStatus,
		event.ActorID,
		event.ActorRole,
		event.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to append booking event",
			zap.Error(err),
			zap.String("booking_id", event.BookingID.String()),
			zap.String("action", string(event.Action)),
		)
		return fmt.Errorf("append booking event: %w", err)
	}

	return nil
}

func (r *bookingRepository) ListEvents(ctx context.Context, bookingID uuid.UUID) ([]*entity.BookingEvent, error) {
	query := `
		SELECT id, booking_id, action, from_status, to_status, actor_id, actor_role, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to list booking events",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("list booking events %s: %w", bookingID.String(), err)
	}
	defer rows.Close()

	var events []*entity.BookingEvent
	for rows.Next() {
		var e entity.BookingEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.FromStatus, &e.ToStatus,
			&e.ActorID, &e.ActorRole, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking event row: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
