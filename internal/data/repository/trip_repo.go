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

type TripRepository interface {
	Create(ctx context.Context, trip *entity.Trip) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Trip, error)
	FindByTraveler(ctx context.Context, travelerID uuid.UUID, limit, offset int) ([]*entity.Trip, error)
	// UpdateStatus moves the trip only when it is still in from; it reports whether it did.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.TripStatus) (bool, error)
}

type tripRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewTripRepository(db database.Querier, log *zap.Logger) TripRepository {
	return &tripRepository{
		db:  db,
		log: log.With(zap.String("repository", "trip")),
	}
}

const tripColumns = `id, traveler_id, origin, destination, departure_at, capacity_kg,
		price_per_kg, status, created_at, updated_at`

func scanTrip(row pgx.Row) (*entity.Trip, error) {
	var trip entity.Trip
	err := row.Scan(
		&trip.ID,
		&trip.TravelerID,
		&trip.Origin,
		&trip.Destination,
		&trip.DepartureAt,
		&trip.CapacityKg,
		&trip.PricePerKg,
		&trip.Status,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *tripRepository) Create(ctx context.Context, trip *entity.Trip) error {
	query := `
		INSERT INTO trips (id, traveler_id, origin, destination, departure_at,
		                   capacity_kg, price_per_kg, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		trip.ID,
		trip.TravelerID,
		trip.Origin,
		trip.Destination,
		trip.DepartureAt,
		trip.CapacityKg,
		trip.PricePerKg,
		trip.Status,
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create trip",
			zap.Error(err),
			zap.String("traveler_id", trip.TravelerID.String()),
		)
		return fmt.Errorf("create trip: %w", err)
	}

	return nil
}

func (r *tripRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 AND deleted_at IS NULL`

	trip, err := scanTrip(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find trip by ID",
			zap.Error(err),
			zap.String("trip_id", id.String()),
		)
		return nil, fmt.Errorf("find trip by ID %s: %w", id.String(), err)
	}

	return trip, nil
}

func (r *tripRepository) FindByTraveler(ctx context.Context, travelerID uuid.UUID, limit, offset int) ([]*entity.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE traveler_id = $1 AND deleted_at IS NULL
		ORDER BY departure_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, travelerID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find trips by traveler",
			zap.Error(err),
			zap.String("traveler_id", travelerID.String()),
		)
		return nil, fmt.Errorf("find trips by traveler %s: %w", travelerID.String(), err)
	}
	defer rows.Close()

	var trips []*entity.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			r.log.Error("Failed to scan trip row", zap.Error(err))
			return nil, fmt.Errorf("scan trip row: %w", err)
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

func (r *tripRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.TripStatus) (bool, error) {
	query := `UPDATE trips SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	result, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		r.log.Error("Failed to update trip status",
			zap.Error(err),
			zap.String("trip_id", id.String()),
			zap.String("to", string(to)),
		)
		return false, fmt.Errorf("update trip %s status to %s: %w", id.String(), to, err)
	}

	return result.RowsAffected() == 1, nil
}
