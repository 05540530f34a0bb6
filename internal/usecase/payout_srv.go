package usecase

import (
	"context"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

// PayoutAccountService links carriers to their connected account at the provider.
type PayoutAccountService interface {
	Link(ctx context.Context, actor Actor, req *request.LinkPayoutAccountRequest) (*response.PayoutAccountResponse, error)
	Get(ctx context.Context, actor Actor) (*response.PayoutAccountResponse, error)
	// ApplyAccountUpdate stores capability changes pushed by the provider.
	ApplyAccountUpdate(ctx context.Context, acct *payment.Account) error
}

type payoutAccountService struct {
	deps    Deps
	store   repository.Store
	payment PaymentService
	log     *zap.Logger
}

func NewPayoutAccountService(d Deps) PayoutAccountService {
	return &payoutAccountService{
		deps:    d,
		store:   d.Store,
		payment: NewPaymentService(d),
		log:     d.Log.With(zap.String("service", "payout_account")),
	}
}

func (s *payoutAccountService) Link(ctx context.Context, actor Actor, req *request.LinkPayoutAccountRequest) (*response.PayoutAccountResponse, error) {
	// 1. Validasi input
	if err := validate(req); err != nil {
		return nil, err
	}

	// 2. Ask the provider what the account can do
	acct, err := s.payment.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	// 3. Upsert
	now := s.deps.now()
	pa := &entity.PayoutAccount{
		UserID:            actor.ID,
		ProviderAccountID: acct.ID,
		ChargesEnabled:    acct.ChargesEnabled,
		PayoutsEnabled:    acct.PayoutsEnabled,
		DetailsSubmitted:  acct.DetailsSubmitted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Repo().PayoutAccount.Upsert(ctx, pa); err != nil {
		return nil, utils.ErrInternal("failed to link payout account", err)
	}

	s.log.Info("Payout account linked",
		zap.String("user_id", actor.ID.String()),
		zap.String("account_id", pa.ProviderAccountID),
		zap.Bool("payment_capable", pa.PaymentCapable()),
	)

	resp := response.PayoutAccountToResponse(pa)
	return &resp, nil
}

func (s *payoutAccountService) Get(ctx context.Context, actor Actor) (*response.PayoutAccountResponse, error) {
	pa, err := s.store.Repo().PayoutAccount.FindByUserID(ctx, actor.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get payout account", err)
	}
	if pa == nil {
		return nil, utils.ErrNotFound("payout account")
	}
	resp := response.PayoutAccountToResponse(pa)
	return &resp, nil
}

func (s *payoutAccountService) ApplyAccountUpdate(ctx context.Context, acct *payment.Account) error {
	err := s.store.Repo().PayoutAccount.UpdateCapabilities(ctx, acct.ID, acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted)
	if err != nil {
		return utils.ErrInternal("failed to update payout account", err)
	}
	s.log.Info("Payout account capabilities updated",
		zap.String("account_id", acct.ID),
		zap.Bool("charges_enabled", acct.ChargesEnabled),
		zap.Bool("payouts_enabled", acct.PayoutsEnabled),
	)
	return nil
}
