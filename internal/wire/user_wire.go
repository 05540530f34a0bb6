package wire

import (
	"net/http"

	"parcel-share/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireUser(r chi.Router, userHandler *adaptor.UserHandler, rt *adaptor.RealtimeHandler, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/api/user/profile", userHandler.GetProfile)
		r.Get("/api/notifications", userHandler.ListNotifications)

		// Carrier payout account at the payment provider
		r.Put("/api/payout-account", userHandler.LinkPayoutAccount)
		r.Get("/api/payout-account", userHandler.GetPayoutAccount)

		// In-app notification socket; the token may come as ?token=
		r.Get("/api/ws", rt.Connect)
	})
}
