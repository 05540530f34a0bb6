package adaptor

import (
	"encoding/json"
	"net/http"

	"parcel-share/internal/dto/request"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/realtime"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Auth     *AuthHandler
	User     *UserHandler
	Trip     *TripHandler
	Booking  *BookingHandler
	Admin    *AdminHandler
	Webhook  *WebhookHandler
	Realtime *RealtimeHandler
}

func NewHandler(service *usecase.Service, hub *realtime.Hub, log *zap.Logger) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(service.Auth, log),
		User:     NewUserHandler(service.User, service.Notification, service.PayoutAccount, log),
		Trip:     NewTripHandler(service.Trip, log),
		Booking:  NewBookingHandler(service.Booking, service.Verification, service.Cancellation, log),
		Admin:    NewAdminHandler(service.Booking, service.Cancellation, log),
		Webhook:  NewWebhookHandler(service.Webhook, log),
		Realtime: NewRealtimeHandler(hub, log),
	}
}

// actorFrom builds the caller from the values set by the auth middleware.
// On failure the response is already written.
func actorFrom(w http.ResponseWriter, r *http.Request) (usecase.Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return usecase.Actor{}, false
	}
	role, _ := utils.GetRoleFromContext(r.Context())
	actor, err := usecase.NewActor(userID.String(), role)
	if err != nil {
		utils.ResponseUnauthorized(w, "Authentication required")
		return usecase.Actor{}, false
	}
	return actor, true
}

// decodeBody decodes a JSON body; an empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", map[string]any{"code": utils.CodeValidationFailed})
		return false
	}
	return true
}

func pageFrom(r *http.Request) *request.PaginatedRequest {
	query := r.URL.Query()
	return &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}
}

// handleServiceError writes a service failure. Typed errors keep their code and
// status; anything else is an internal error whose cause only reaches the log.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	if appErr.Status >= http.StatusInternalServerError {
		log.Error("Failed to "+operation,
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	} else {
		log.Warn(operation+" rejected",
			zap.String("code", string(appErr.Code)),
			zap.String("message", appErr.Message),
		)
	}
	utils.ResponseAppError(w, appErr, nil)
}
