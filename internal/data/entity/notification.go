package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	BaseSimple
	UserID      uuid.UUID       `db:"user_id"`
	EventType   string          `db:"event_type"`
	Payload     json.RawMessage `db:"payload"`
	Channels    []string        `db:"channels"`
	Priority    string          `db:"priority"`
	DeliveredAt *time.Time      `db:"delivered_at"`
}
