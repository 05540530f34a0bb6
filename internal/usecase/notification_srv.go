package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/realtime"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelPush  = "push"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// NotificationVars are the template variables every booking notification carries.
type NotificationVars struct {
	BookingID string `json:"booking_id"`
	Reference int64  `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type NotificationOptions struct {
	Channels []string `json:"channels"`
	Priority string   `json:"priority"`
}

type NotificationRequest struct {
	UserID    uuid.UUID           `json:"user_id"`
	EventType string              `json:"event_type"`
	Vars      NotificationVars    `json:"vars"`
	Options   NotificationOptions `json:"options"`
}

type NotificationService interface {
	// Deliver stores the notification and pushes it to the user's open sessions.
	Deliver(ctx context.Context, req NotificationRequest) error
	List(ctx context.Context, actor Actor, req *request.PaginatedRequest) ([]response.NotificationResponse, error)
}

type notificationService struct {
	deps   Deps
	store  repository.Store
	pusher Pusher
	log    *zap.Logger
}

func NewNotificationService(d Deps) NotificationService {
	return &notificationService{
		deps:   d,
		store:  d.Store,
		pusher: d.Pusher,
		log:    d.Log.With(zap.String("service", "notification")),
	}
}

func (s *notificationService) Deliver(ctx context.Context, req NotificationRequest) error {
	payload, err := json.Marshal(req.Vars)
	if err != nil {
		return fmt.Errorf("encode notification vars: %w", err)
	}

	channels := req.Options.Channels
	if len(channels) == 0 {
		channels = []string{ChannelInApp}
	}
	priority := req.Options.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	n := &entity.Notification{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: s.deps.now(),
		},
		UserID:    req.UserID,
		EventType: req.EventType,
		Payload:   payload,
		Channels:  channels,
		Priority:  priority,
	}

	repo := s.store.Repo()
	if err := repo.Notification.Create(ctx, n); err != nil {
		return err
	}

	if !hasChannel(channels, ChannelInApp) || s.pusher == nil {
		return nil
	}

	err = s.pusher.Push(req.UserID, map[string]any{
		"type":       "notification",
		"id":         n.ID.String(),
		"event_type": n.EventType,
		"priority":   n.Priority,
		"payload":    n.Payload,
	})
	switch {
	case errors.Is(err, realtime.ErrNoSession):
		// Stays undelivered; the user sees it in the list.
		return nil
	case err != nil:
		s.log.Warn("Failed to push notification",
			zap.String("user_id", req.UserID.String()),
			zap.String("event_type", req.EventType),
			zap.Error(err),
		)
		return nil
	}

	if err := repo.Notification.MarkDelivered(ctx, n.ID); err != nil {
		s.log.Warn("Failed to mark notification delivered", zap.String("notification_id", n.ID.String()), zap.Error(err))
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, actor Actor, req *request.PaginatedRequest) ([]response.NotificationResponse, error) {
	items, err := s.store.Repo().Notification.FindByUser(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, utils.ErrInternal("failed to get notifications", err)
	}

	out := make([]response.NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, response.NotificationToResponse(n))
	}
	return out, nil
}

func hasChannel(channels []string, want string) bool {
	for _, c := range channels {
		if c == want {
			return true
		}
	}
	return false
}
