package adaptor

import (
	"net/http"

	"parcel-share/internal/dto/request"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

type UserHandler struct {
	service      usecase.UserService
	notification usecase.NotificationService
	payout       usecase.PayoutAccountService
	log          *zap.Logger
}

func NewUserHandler(service usecase.UserService, notification usecase.NotificationService, payout usecase.PayoutAccountService, log *zap.Logger) *UserHandler {
	return &UserHandler{
		service:      service,
		notification: notification,
		payout:       payout,
		log:          log.With(zap.String("handler", "user")),
	}
}

// GetProfile handles GET /api/user/profile (protected)
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		handleServiceError(w, h.log, err, "get profile")
		return
	}

	utils.ResponseSuccess(w, "success", profile)
}

// ListNotifications handles GET /api/notifications (protected)
func (h *UserHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	list, err := h.notification.List(r.Context(), actor, pageFrom(r))
	if err != nil {
		handleServiceError(w, h.log, err, "list notifications")
		return
	}

	utils.ResponseSuccess(w, "success", list)
}

// LinkPayoutAccount handles PUT /api/payout-account (protected)
func (h *UserHandler) LinkPayoutAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.LinkPayoutAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	acct, err := h.payout.Link(r.Context(), actor, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "link payout account")
		return
	}

	utils.ResponseSuccess(w, "Payout account linked", acct)
}

// GetPayoutAccount handles GET /api/payout-account (protected)
func (h *UserHandler) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	acct, err := h.payout.Get(r.Context(), actor)
	if err != nil {
		handleServiceError(w, h.log, err, "get payout account")
		return
	}

	utils.ResponseSuccess(w, "success", acct)
}
