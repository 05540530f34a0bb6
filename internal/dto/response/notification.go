package response

import (
	"encoding/json"
	"time"

	"parcel-share/internal/data/entity"
)

type NotificationResponse struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Channels    []string        `json:"channels"`
	Priority    string          `json:"priority"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NotificationToResponse(n *entity.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID.String(),
		EventType:   n.EventType,
		Payload:     n.Payload,
		Channels:    n.Channels,
		Priority:    n.Priority,
		DeliveredAt: n.DeliveredAt,
		CreatedAt:   n.CreatedAt,
	}
}
