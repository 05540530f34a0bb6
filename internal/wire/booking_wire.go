package wire

import (
	"net/http"

	"parcel-share/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireBooking(r chi.Router, bookingHandler *adaptor.BookingHandler, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/api/user/cancellations", bookingHandler.CancellationHistory)

		r.Route("/api/bookings", func(r chi.Router) {
			r.Post("/", bookingHandler.CreateBooking)
			r.Get("/", bookingHandler.ListBookings)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bookingHandler.GetBooking)

				// Lifecycle transitions
				r.Post("/accept", bookingHandler.Accept)
				r.Post("/reject", bookingHandler.Reject)
				r.Post("/confirm-payment", bookingHandler.ConfirmPayment)
				r.Post("/capture", bookingHandler.Capture)
				r.Post("/pickup-code/validate", bookingHandler.ValidatePickup)
				r.Post("/delivery-code/validate", bookingHandler.ValidateDelivery)
				r.Post("/cancel", bookingHandler.Cancel)
				r.Post("/no-show", bookingHandler.NoShow)
				r.Post("/dispute", bookingHandler.OpenDispute)

				// Custody codes
				r.Get("/codes/{type}", bookingHandler.RevealCode)
				r.Post("/codes/{type}/regenerate", bookingHandler.RegenerateCode)

				r.Get("/payment", bookingHandler.PaymentStatus)
				r.Get("/receipt", bookingHandler.Receipt)
				r.Get("/cancellation-eligibility", bookingHandler.CancellationEligibility)
			})
		})
	})
}
