package adaptor

import (
	"net/http"

	"parcel-share/internal/dto/request"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler serves the operator endpoints; routes sit behind the Admin middleware.
type AdminHandler struct {
	booking      usecase.BookingService
	cancellation usecase.CancellationService
	log          *zap.Logger
}

func NewAdminHandler(booking usecase.BookingService, cancellation usecase.CancellationService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		booking:      booking,
		cancellation: cancellation,
		log:          log.With(zap.String("handler", "admin")),
	}
}

// ForceTransfer handles POST /api/admin/bookings/{id}/force-transfer (admin only)
func (h *AdminHandler) ForceTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	booking, err := h.booking.ForceTransfer(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "force transfer")
		return
	}

	utils.ResponseSuccess(w, "Transfer completed", booking)
}

// ResolveDispute handles POST /api/admin/bookings/{id}/resolve-dispute (admin only)
func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ResolveDisputeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, err := h.booking.ResolveDispute(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		handleServiceError(w, h.log, err, "resolve dispute")
		return
	}

	utils.ResponseSuccess(w, "Dispute resolved", status)
}

// CancellationReport handles GET /api/admin/cancellations?severity= (admin only)
func (h *AdminHandler) CancellationReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.cancellation.AdminReport(r.Context(), r.URL.Query().Get("severity"), pageFrom(r))
	if err != nil {
		handleServiceError(w, h.log, err, "get cancellation report")
		return
	}

	utils.ResponseSuccess(w, "success", report)
}
