package adaptor

import (
	"net/http"
	"strconv"

	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service      usecase.BookingService
	verification usecase.VerificationService
	cancellation usecase.CancellationService
	log          *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, verification usecase.VerificationService, cancellation usecase.CancellationService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service:      service,
		verification: verification,
		cancellation: cancellation,
		log:          log.With(zap.String("handler", "booking")),
	}
}

// CreateBooking handles POST /api/bookings (protected)
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.Create(r.Context(), actor, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "create booking")
		return
	}

	utils.ResponseCreated(w, "Booking requested", booking)
}

// ListBookings handles GET /api/bookings (protected)
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListMine(r.Context(), actor, pageFrom(r))
	if err != nil {
		handleServiceError(w, h.log, err, "list bookings")
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}

// GetBooking handles GET /api/bookings/{id} (protected)
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	booking, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "get booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// Accept handles POST /api/bookings/{id}/accept (protected)
func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.AcceptBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.Accept(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "accept booking", "Booking accepted")
}

// Reject handles POST /api/bookings/{id}/reject (protected)
func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.RejectBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.Reject(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "reject booking", "Booking rejected")
}

// ConfirmPayment handles POST /api/bookings/{id}/confirm-payment (protected)
func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ConfirmPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.ConfirmPayment(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "confirm payment", "Payment confirmed")
}

// Capture handles POST /api/bookings/{id}/capture (protected)
// and POST /api/admin/bookings/{id}/capture (admin).
func (h *BookingHandler) Capture(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	booking, err := h.service.Capture(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, booking, err, "capture payment", "Payment captured")
}

// ValidatePickup handles POST /api/bookings/{id}/pickup-code/validate (protected)
func (h *BookingHandler) ValidatePickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ValidateCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.ValidatePickup(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "validate pickup", "Pickup confirmed")
}

// ValidateDelivery handles POST /api/bookings/{id}/delivery-code/validate (protected)
func (h *BookingHandler) ValidateDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ValidateCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.ValidateDelivery(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "validate delivery", "Delivery confirmed")
}

// Cancel handles POST /api/bookings/{id}/cancel (protected)
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.CancelBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.Cancel(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "cancel booking", "Booking cancelled")
}

// NoShow handles POST /api/bookings/{id}/no-show (protected)
func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	booking, err := h.service.NoShow(r.Context(), actor, chi.URLParam(r, "id"))
	h.respond(w, booking, err, "report no-show", "Booking cancelled for no-show")
}

// OpenDispute handles POST /api/bookings/{id}/dispute (protected)
func (h *BookingHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.DisputeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.service.OpenDispute(r.Context(), actor, chi.URLParam(r, "id"), &req)
	h.respond(w, booking, err, "open dispute", "Dispute opened")
}

// RevealCode handles GET /api/bookings/{id}/codes/{type} (protected)
func (h *BookingHandler) RevealCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	code, err := h.verification.Reveal(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "type"))
	if err != nil {
		handleServiceError(w, h.log, err, "reveal code")
		return
	}

	utils.ResponseSuccess(w, "success", code)
}

// RegenerateCode handles POST /api/bookings/{id}/codes/{type}/regenerate (protected)
func (h *BookingHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.RegenerateCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	code, err := h.verification.Regenerate(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "type"), &req)
	if err != nil {
		handleServiceError(w, h.log, err, "regenerate code")
		return
	}

	utils.ResponseSuccess(w, "Code regenerated", code)
}

// PaymentStatus handles GET /api/bookings/{id}/payment (protected)
func (h *BookingHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	status, err := h.service.PaymentStatus(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "get payment status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// Receipt handles GET /api/bookings/{id}/receipt (protected)
func (h *BookingHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	pdf, filename, err := h.service.Receipt(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "render receipt")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.log.Warn("Failed to write receipt", zap.Error(err))
	}
}

// CancellationEligibility handles GET /api/bookings/{id}/cancellation-eligibility (protected)
func (h *BookingHandler) CancellationEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	eligibility, err := h.cancellation.Eligibility(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "check cancellation eligibility")
		return
	}

	utils.ResponseSuccess(w, "success", eligibility)
}

// CancellationHistory handles GET /api/user/cancellations (protected)
func (h *BookingHandler) CancellationHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	history, err := h.cancellation.History(r.Context(), actor, pageFrom(r))
	if err != nil {
		handleServiceError(w, h.log, err, "get cancellation history")
		return
	}

	utils.ResponseSuccess(w, "success", history)
}

func (h *BookingHandler) respond(w http.ResponseWriter, booking *response.BookingResponse, err error, operation, message string) {
	if err != nil {
		handleServiceError(w, h.log, err, operation)
		return
	}
	utils.ResponseSuccess(w, message, booking)
}
