package usecase

import (
	"context"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TripService interface {
	Create(ctx context.Context, actor Actor, req *request.CreateTripRequest) (*response.TripResponse, error)
	Get(ctx context.Context, tripID string) (*response.TripResponse, error)
	ListMine(ctx context.Context, actor Actor, req *request.PaginatedRequest) ([]response.TripResponse, error)
}

type tripService struct {
	deps  Deps
	store repository.Store
	log   *zap.Logger
}

func NewTripService(d Deps) TripService {
	return &tripService{
		deps:  d,
		store: d.Store,
		log:   d.Log.With(zap.String("service", "trip")),
	}
}

func (s *tripService) Create(ctx context.Context, actor Actor, req *request.CreateTripRequest) (*response.TripResponse, error) {
	// 1. Validasi input
	if err := validate(req); err != nil {
		return nil, err
	}
	now := s.deps.now()
	if !req.DepartureAt.After(now) {
		return nil, utils.ErrValidation(map[string]string{"DepartureAt": "Departure must be in the future"})
	}

	// 2. Build trip
	trip := &entity.Trip{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		TravelerID:  actor.ID,
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartureAt: req.DepartureAt,
		CapacityKg:  req.CapacityKg,
		Status:      entity.TripStatusActive,
	}
	if req.PricePerKg != nil {
		p := utils.ToCents(*req.PricePerKg)
		trip.PricePerKg = &p
	}

	// 3. Save
	if err := s.store.Repo().Trip.Create(ctx, trip); err != nil {
		return nil, utils.ErrInternal("failed to create trip", err)
	}

	s.log.Info("Trip published",
		zap.String("trip_id", trip.ID.String()),
		zap.String("traveler_id", actor.ID.String()),
		zap.Time("departure_at", trip.DepartureAt),
	)

	resp := response.TripToResponse(trip)
	return &resp, nil
}

func (s *tripService) Get(ctx context.Context, tripID string) (*response.TripResponse, error) {
	id, err := parseID(tripID, "trip_id")
	if err != nil {
		return nil, err
	}

	trip, err := s.store.Repo().Trip.FindByID(ctx, id)
	if err != nil {
		return nil, utils.ErrInternal("failed to get trip", err)
	}
	if trip == nil {
		return nil, utils.ErrNotFound("trip")
	}

	resp := response.TripToResponse(trip)
	return &resp, nil
}

func (s *tripService) ListMine(ctx context.Context, actor Actor, req *request.PaginatedRequest) ([]response.TripResponse, error) {
	trips, err := s.store.Repo().Trip.FindByTraveler(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, utils.ErrInternal("failed to get trips", err)
	}

	out := make([]response.TripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, response.TripToResponse(t))
	}
	return out, nil
}
