package adaptor

import (
	"net/http"

	"parcel-share/internal/dto/request"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TripHandler struct {
	service usecase.TripService
	log     *zap.Logger
}

func NewTripHandler(service usecase.TripService, log *zap.Logger) *TripHandler {
	return &TripHandler{
		service: service,
		log:     log.With(zap.String("handler", "trip")),
	}
}

// CreateTrip handles POST /api/trips (protected)
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.CreateTripRequest
	if !decodeBody(w, r, &req) {
		return
	}

	trip, err := h.service.Create(r.Context(), actor, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "create trip")
		return
	}

	utils.ResponseCreated(w, "Trip published", trip)
}

// GetTrip handles GET /api/trips/{id}
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "get trip")
		return
	}

	utils.ResponseSuccess(w, "success", trip)
}

// ListMyTrips handles GET /api/user/trips (protected)
func (h *TripHandler) ListMyTrips(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	trips, err := h.service.ListMine(r.Context(), actor, pageFrom(r))
	if err != nil {
		handleServiceError(w, h.log, err, "list trips")
		return
	}

	utils.ResponseSuccess(w, "success", trips)
}
