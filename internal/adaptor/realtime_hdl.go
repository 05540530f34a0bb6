package adaptor

import (
	"net/http"

	"parcel-share/pkg/realtime"

	"go.uber.org/zap"
)

type RealtimeHandler struct {
	hub *realtime.Hub
	log *zap.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, log: log.With(zap.String("handler", "realtime"))}
}

// Connect handles GET /api/ws (protected); the socket receives in-app notifications.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, actor.ID)
}
