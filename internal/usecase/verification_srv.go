package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
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

const maxCodeGenerationTries = 10

type VerificationService interface {
	// GenerateWith issues a fresh code for (booking, type) through repo, which may be a transaction.
	GenerateWith(ctx context.Context, repo *repository.Repository, holderID uuid.UUID, codeType entity.CodeType, bookingID uuid.UUID) (*entity.VerificationCode, error)
	// Verify checks code against the active code of (booking, type). It never consumes the code;
	// a mismatch is counted immediately so failed attempts survive a rolled back transition.
	Verify(ctx context.Context, code string, codeType entity.CodeType, bookingID uuid.UUID) (*entity.VerificationCode, error)
	MarkUsed(ctx context.Context, repo *repository.Repository, codeID uuid.UUID) error

	Reveal(ctx context.Context, actor Actor, bookingID string, codeType string) (*response.CodeResponse, error)
	Regenerate(ctx context.Context, actor Actor, bookingID string, codeType string, req *request.RegenerateCodeRequest) (*response.CodeResponse, error)
}

type verificationService struct {
	deps  Deps
	store repository.Store
	cfg   utils.BookingConfig
	log   *zap.Logger
}

func NewVerificationService(d Deps) VerificationService {
	return &verificationService{
		deps:  d,
		store: d.Store,
		cfg:   d.Config.Booking,
		log:   d.Log.With(zap.String("service", "verification")),
	}
}

// holderOf returns who may see the code: the sender hands the pickup code to the
// traveler, the traveler hands the delivery code back at the destination.
func holderOf(b *entity.Booking, codeType entity.CodeType) uuid.UUID {
	if codeType == entity.CodeTypePickup {
		return b.SenderID
	}
	return b.ReceiverID
}

func (s *verificationService) GenerateWith(ctx context.Context, repo *repository.Repository, holderID uuid.UUID, codeType entity.CodeType, bookingID uuid.UUID) (*entity.VerificationCode, error) {
	// 1. At most one active code per (booking, type)
	if _, err := repo.VerificationCode.InvalidateActive(ctx, bookingID, codeType); err != nil {
		return nil, fmt.Errorf("invalidate previous %s: %w", codeType, err)
	}

	// 2. Pick a code nobody else currently holds
	var code string
	for i := 0; i < maxCodeGenerationTries; i++ {
		candidate, err := utils.GenerateNumericCode(s.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		inUse, err := repo.VerificationCode.CodeInUse(ctx, candidate, codeType)
		if err != nil {
			return nil, fmt.Errorf("check code uniqueness: %w", err)
		}
		if !inUse {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, fmt.Errorf("no unique %s after %d tries", codeType, maxCodeGenerationTries)
	}

	// 3. Save
	now := s.deps.now()
	bid := bookingID
	vc := &entity.VerificationCode{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: now,
		},
		UserID:    holderID,
		BookingID: &bid,
		Code:      code,
		CodeType:  codeType,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}
	if err := repo.VerificationCode.Create(ctx, vc); err != nil {
		return nil, fmt.Errorf("save %s: %w", codeType, err)
	}

	s.log.Info("Verification code issued",
		zap.String("booking_id", bookingID.String()),
		zap.String("code_type", string(codeType)),
		zap.Time("expires_at", vc.ExpiresAt),
	)
	return vc, nil
}

func (s *verificationService) Verify(ctx context.Context, code string, codeType entity.CodeType, bookingID uuid.UUID) (*entity.VerificationCode, error) {
	repo := s.store.Repo()

	vc, err := repo.VerificationCode.FindActive(ctx, bookingID, codeType)
	if err != nil {
		return nil, utils.ErrInternal("failed to check code", err)
	}
	if vc == nil {
		s.observe(codeType, "not_found")
		return nil, utils.NewAppError(utils.CodeCodeNotFound, http.StatusNotFound, "no active code for this booking, ask for a new one")
	}

	if vc.IsExpired(s.deps.now()) {
		s.observe(codeType, "expired")
		return nil, utils.NewAppError(utils.CodeCodeExpired, http.StatusUnprocessableEntity, "code has expired, ask for a new one")
	}

	// Exhausted codes stay rejected even when the right code is submitted.
	if vc.Attempts >= s.cfg.CodeMaxAttempts {
		s.observe(codeType, "exhausted")
		return nil, utils.NewAppError(utils.CodeCodeExhausted, http.StatusUnprocessableEntity, "too many wrong attempts, the code must be regenerated").
			WithDetail("attempts_remaining", 0)
	}

	if subtle.ConstantTimeCompare([]byte(vc.Code), []byte(code)) != 1 {
		attempts, err := repo.VerificationCode.IncrementAttempts(ctx, vc.ID)
		if err != nil {
			return nil, utils.ErrInternal("failed to check code", err)
		}
		vc.Attempts = attempts
		remaining := vc.RemainingAttempts(s.cfg.CodeMaxAttempts)

		s.observe(codeType, "invalid")
		s.log.Warn("Wrong verification code submitted",
			zap.String("booking_id", bookingID.String()),
			zap.String("code_type", string(codeType)),
			zap.Int("attempts", attempts),
		)
		return nil, utils.NewAppError(utils.CodeCodeInvalid, http.StatusUnprocessableEntity, "code does not match").
			WithDetail("attempts_remaining", remaining)
	}

	s.observe(codeType, "valid")
	return vc, nil
}

func (s *verificationService) MarkUsed(ctx context.Context, repo *repository.Repository, codeID uuid.UUID) error {
	if err := repo.VerificationCode.MarkUsed(ctx, codeID); err != nil {
		if errors.Is(err, repository.ErrAlreadyUsed) {
			return utils.NewAppError(utils.CodeCodeNotFound, http.StatusConflict, "code was already used")
		}
		return err
	}
	return nil
}

func (s *verificationService) Reveal(ctx context.Context, actor Actor, bookingID string, codeType string) (*response.CodeResponse, error) {
	b, ct, err := s.loadForCode(ctx, bookingID, codeType)
	if err != nil {
		return nil, err
	}
	if actor.ID != holderOf(b, ct) {
		return nil, utils.ErrForbidden("only the holder can see this code")
	}

	vc, err := s.store.Repo().VerificationCode.FindActive(ctx, b.ID, ct)
	if err != nil {
		return nil, utils.ErrInternal("failed to get code", err)
	}
	if vc == nil {
		return nil, utils.NewAppError(utils.CodeCodeNotFound, http.StatusNotFound, "no active code for this booking")
	}

	return codeToResponse(vc, b.ID), nil
}

func (s *verificationService) Regenerate(ctx context.Context, actor Actor, bookingID string, codeType string, req *request.RegenerateCodeRequest) (*response.CodeResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	id, err := parseID(bookingID, "booking_id")
	if err != nil {
		return nil, err
	}
	release, err := s.deps.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	b, ct, err := s.loadForCode(ctx, bookingID, codeType)
	if err != nil {
		return nil, err
	}
	holder := holderOf(b, ct)
	if actor.ID != holder && !actor.Admin {
		return nil, utils.ErrForbidden("only the holder or an admin can regenerate this code")
	}

	// A code is only useful while its custody step is still ahead.
	open := b.Status == entity.BookingStatusPaid ||
		(ct == entity.CodeTypeDelivery && b.Status == entity.BookingStatusInTransit)
	if !open {
		return nil, utils.ErrInvalidTransition(string(b.Status), "regenerate "+string(ct)+" for")
	}

	var vc *entity.VerificationCode
	err = s.store.WithinTx(ctx, func(repo *repository.Repository) error {
		var err error
		vc, err = s.GenerateWith(ctx, repo, holder, ct, b.ID)
		return err
	})
	if err != nil {
		return nil, utils.ErrInternal("failed to regenerate code", err)
	}

	s.log.Info("Verification code regenerated",
		zap.String("booking_id", b.ID.String()),
		zap.String("code_type", string(ct)),
		zap.String("actor_id", actor.ID.String()),
		zap.String("reason", req.Reason),
	)
	return codeToResponse(vc, b.ID), nil
}

func (s *verificationService) loadForCode(ctx context.Context, bookingID, codeType string) (*entity.Booking, entity.CodeType, error) {
	ct := entity.CodeType(codeType)
	if !ct.Valid() {
		return nil, "", utils.ErrValidation(map[string]string{"type": "Must be one of: pickup_code, delivery_code"})
	}
	id, err := parseID(bookingID, "booking_id")
	if err != nil {
		return nil, "", err
	}

	b, err := s.store.Repo().Booking.FindByID(ctx, id)
	if err != nil {
		return nil, "", utils.ErrInternal("failed to get booking", err)
	}
	if b == nil {
		return nil, "", utils.ErrNotFound("booking")
	}
	return b, ct, nil
}

func (s *verificationService) observe(codeType entity.CodeType, outcome string) {
	metrics.CodeVerifications.WithLabelValues(string(codeType), outcome).Inc()
}

func codeToResponse(vc *entity.VerificationCode, bookingID uuid.UUID) *response.CodeResponse {
	return &response.CodeResponse{
		BookingID: bookingID.String(),
		CodeType:  vc.CodeType,
		Code:      vc.Code,
		ExpiresAt: vc.ExpiresAt.UTC().Truncate(time.Second),
	}
}
