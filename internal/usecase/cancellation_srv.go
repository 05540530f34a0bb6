package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/metrics"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CancellationService interface {
	// Evaluate gathers the policy inputs for booking b and runs the policy.
	Evaluate(ctx context.Context, repo *repository.Repository, b *entity.Booking, action entity.BookingAction, actorID uuid.UUID, role entity.ActorRole) (PolicyDecision, error)
	// Record writes the audit row of a real cancellation attempt.
	Record(ctx context.Context, repo *repository.Repository, b *entity.Booking, actorID uuid.UUID, d PolicyDecision) error

	Eligibility(ctx context.Context, actor Actor, bookingID string) (*response.CancellationEligibilityResponse, error)
	History(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.CancellationAttemptResponse], error)
	AdminReport(ctx context.Context, severity string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.CancellationAttemptResponse], error)
}

type cancellationService struct {
	deps   Deps
	store  repository.Store
	policy Policy
	window time.Duration
	log    *zap.Logger
}

func NewCancellationService(d Deps) CancellationService {
	return &cancellationService{
		deps:   d,
		store:  d.Store,
		policy: NewPolicy(d.Config.Booking),
		window: time.Duration(d.Config.Booking.CancelWindowDays) * 24 * time.Hour,
		log:    d.Log.With(zap.String("service", "cancellation")),
	}
}

func (s *cancellationService) Evaluate(ctx context.Context, repo *repository.Repository, b *entity.Booking, action entity.BookingAction, actorID uuid.UUID, role entity.ActorRole) (PolicyDecision, error) {
	trip, err := repo.Trip.FindByID(ctx, b.TripID)
	if err != nil {
		return PolicyDecision{}, fmt.Errorf("load trip: %w", err)
	}
	if trip == nil {
		return PolicyDecision{}, fmt.Errorf("trip %s of booking %s not found", b.TripID, b.ID)
	}

	now := s.deps.now()
	prior, err := repo.CancellationAttempt.CountAllowedSince(ctx, actorID, now.Add(-s.window))
	if err != nil {
		return PolicyDecision{}, fmt.Errorf("count prior cancellations: %w", err)
	}

	return s.policy.Evaluate(PolicyInput{
		Action:             action,
		ActorRole:          role,
		Status:             b.Status,
		DepartureAt:        trip.DepartureAt,
		Now:                now,
		PriorCancellations: prior,
	}), nil
}

func (s *cancellationService) Record(ctx context.Context, repo *repository.Repository, b *entity.Booking, actorID uuid.UUID, d PolicyDecision) error {
	attempt := &entity.CancellationAttempt{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: s.deps.now(),
		},
		ActorID:       actorID,
		BookingID:     b.ID,
		TripID:        b.TripID,
		AttemptType:   d.Type,
		Severity:      d.Severity,
		Allowed:       d.Allowed,
		RefundPercent: d.RefundPercent,
	}
	if d.DenialReason != "" {
		reason := d.DenialReason
		attempt.DenialReason = &reason
	}

	if err := repo.CancellationAttempt.Create(ctx, attempt); err != nil {
		return fmt.Errorf("record cancellation attempt: %w", err)
	}

	metrics.CancellationDecisions.WithLabelValues(string(d.Type), strconv.FormatBool(d.Allowed)).Inc()
	s.log.Info("Cancellation attempt recorded",
		zap.String("booking_id", b.ID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("type", string(d.Type)),
		zap.Bool("allowed", d.Allowed),
		zap.String("denial_reason", d.DenialReason),
	)
	return nil
}

func (s *cancellationService) Eligibility(ctx context.Context, actor Actor, bookingID string) (*response.CancellationEligibilityResponse, error) {
	id, err := parseID(bookingID, "booking_id")
	if err != nil {
		return nil, err
	}

	repo := s.store.Repo()
	b, err := repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, utils.ErrInternal("failed to get booking", err)
	}
	if b == nil {
		return nil, utils.ErrNotFound("booking")
	}
	if !b.IsParty(actor.ID) && !actor.Admin {
		return nil, utils.ErrForbidden("you are not a party of this booking")
	}

	// Eligibility is asked for the sender's point of view; the check itself is not logged.
	d, err := s.Evaluate(ctx, repo, b, entity.ActionCancel, b.SenderID, entity.ActorSender)
	if err != nil {
		return nil, utils.ErrInternal("failed to evaluate cancellation", err)
	}

	return &response.CancellationEligibilityResponse{
		BookingID:          b.ID.String(),
		Allowed:            d.Allowed,
		DenialReason:       d.DenialReason,
		CancellationType:   d.Type,
		Severity:           d.Severity,
		HoursToDeparture:   d.HoursToDeparture,
		RefundPercent:      d.RefundPercent,
		FeesDeducted:       d.FeesDeducted,
		RefundAmount:       utils.FromCents(d.RefundAmount(principalOf(b))),
		PriorCancellations: d.PriorCancellations,
	}, nil
}

func (s *cancellationService) History(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.CancellationAttemptResponse], error) {
	repo := s.store.Repo()

	attempts, err := repo.CancellationAttempt.FindByActor(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, utils.ErrInternal("failed to get cancellation history", err)
	}
	total, err := repo.CancellationAttempt.CountByActor(ctx, actor.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get cancellation history", err)
	}

	return response.NewPaginatedResponse(toAttemptResponses(attempts), req.Page, req.Limit(), total), nil
}

func (s *cancellationService) AdminReport(ctx context.Context, severity string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.CancellationAttemptResponse], error) {
	switch entity.CancellationSeverity(severity) {
	case "", entity.SeverityLow, entity.SeverityMedium, entity.SeverityHigh:
	default:
		return nil, utils.ErrValidation(map[string]string{"severity": "Must be one of: low, medium, high"})
	}

	repo := s.store.Repo()
	attempts, err := repo.CancellationAttempt.FindAll(ctx, severity, req.Limit(), req.Offset())
	if err != nil {
		return nil, utils.ErrInternal("failed to get cancellation report", err)
	}
	total, err := repo.CancellationAttempt.CountAll(ctx, severity)
	if err != nil {
		return nil, utils.ErrInternal("failed to get cancellation report", err)
	}

	return response.NewPaginatedResponse(toAttemptResponses(attempts), req.Page, req.Limit(), total), nil
}

func toAttemptResponses(attempts []*entity.CancellationAttempt) []response.CancellationAttemptResponse {
	out := make([]response.CancellationAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, response.CancellationAttemptToResponse(a))
	}
	return out
}

// principalOf is the amount the sender is committed to: the final price once accepted.
func principalOf(b *entity.Booking) int64 {
	if b.FinalPrice != nil {
		return *b.FinalPrice
	}
	return b.ProposedPrice
}
