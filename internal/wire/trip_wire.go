package wire

import (
	"net/http"

	"parcel-share/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireTrip(r chi.Router, tripHandler *adaptor.TripHandler, auth func(http.Handler) http.Handler) {
	// ==================== PUBLIC ROUTES ====================
	r.Get("/api/trips/{id}", tripHandler.GetTrip)

	// ==================== PROTECTED ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/api/trips", tripHandler.CreateTrip)
		r.Get("/api/user/trips", tripHandler.ListMyTrips)
	})
}
