package wire

import (
	"net/http"

	"parcel-share/internal/adaptor"
	"parcel-share/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAdmin(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	adminHandler *adaptor.AdminHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin", func(r chi.Router) {
		// Require both authentication AND admin role
		r.Use(auth)
		r.Use(middleware.Admin(log))

		r.Post("/bookings/{id}/capture", bookingHandler.Capture)
		r.Post("/bookings/{id}/force-transfer", adminHandler.ForceTransfer)
		r.Post("/bookings/{id}/resolve-dispute", adminHandler.ResolveDispute)
		r.Get("/cancellations", adminHandler.CancellationReport)
	})
}
