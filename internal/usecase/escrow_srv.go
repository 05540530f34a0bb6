package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/pkg/metrics"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EscrowService keeps the local record of captured money withheld from the carrier.
// All mutations take the repository of the caller's transaction.
type EscrowService interface {
	// Hold is idempotent per capture transaction: a second call returns the first hold.
	Hold(ctx context.Context, repo *repository.Repository, transactionID, bookingID uuid.UUID, amount int64, currency, reason string) (*entity.EscrowAccount, error)
	Release(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error)
	Refund(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error)
	MarkDisputed(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error)
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*entity.EscrowAccount, error)
}

type escrowService struct {
	deps  Deps
	store repository.Store
	log   *zap.Logger
}

func NewEscrowService(d Deps) EscrowService {
	return &escrowService{
		deps:  d,
		store: d.Store,
		log:   d.Log.With(zap.String("service", "escrow")),
	}
}

func errEscrowNotHolding(status entity.EscrowStatus) *utils.AppError {
	return utils.NewAppError(utils.CodeEscrowNotHolding, http.StatusConflict, "escrow is no longer holding funds").
		WithDetail("escrow_status", status)
}

func errEscrowNotFound() *utils.AppError {
	return utils.NewAppError(utils.CodeEscrowNotFound, http.StatusNotFound, "escrow not found")
}

func (s *escrowService) Hold(ctx context.Context, repo *repository.Repository, transactionID, bookingID uuid.UUID, amount int64, currency, reason string) (*entity.EscrowAccount, error) {
	now := s.deps.now()
	escrow := &entity.EscrowAccount{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		TransactionID: transactionID,
		BookingID:     bookingID,
		AmountHeld:    amount,
		Currency:      currency,
		Status:        entity.EscrowStatusHolding,
		HeldReason:    reason,
	}

	created, err := repo.Escrow.CreateIfAbsent(ctx, escrow)
	if err != nil {
		return nil, fmt.Errorf("hold escrow: %w", err)
	}
	if !created {
		existing, err := repo.Escrow.FindByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, fmt.Errorf("load existing escrow: %w", err)
		}
		s.log.Info("Escrow already held for transaction", zap.String("transaction_id", transactionID.String()))
		return existing, nil
	}

	metrics.EscrowMovements.WithLabelValues("hold").Add(float64(amount))
	s.log.Info("Escrow held",
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("booking_id", bookingID.String()),
		zap.Int64("amount", amount),
	)
	return escrow, nil
}

func (s *escrowService) Release(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error) {
	return s.settle(ctx, repo, escrowID, entity.EscrowStatusFullyReleased, entity.TransactionTypeRelease, notes)
}

func (s *escrowService) Refund(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error) {
	return s.settle(ctx, repo, escrowID, entity.EscrowStatusRefunded, entity.TransactionTypeRefund, notes)
}

func (s *escrowService) MarkDisputed(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, notes string) (*entity.EscrowAccount, error) {
	return s.settle(ctx, repo, escrowID, entity.EscrowStatusDisputed, "", notes)
}

// settle moves a holding escrow to status. txnType, when set, is the audit row
// written for the movement; it always carries the full held amount.
func (s *escrowService) settle(ctx context.Context, repo *repository.Repository, escrowID uuid.UUID, status entity.EscrowStatus, txnType entity.TransactionType, notes string) (*entity.EscrowAccount, error) {
	// 1. Lock the row
	escrow, err := repo.Escrow.FindByIDForUpdate(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("load escrow: %w", err)
	}
	if escrow == nil {
		return nil, errEscrowNotFound()
	}

	// 2. Only a holding escrow moves; a second release is an error, never a no-op
	if !escrow.IsHolding() {
		s.log.Warn("Escrow mutation rejected",
			zap.String("escrow_id", escrowID.String()),
			zap.String("status", string(escrow.Status)),
			zap.String("target", string(status)),
		)
		return nil, errEscrowNotHolding(escrow.Status)
	}

	// 3. Apply
	now := s.deps.now()
	escrow.Status = status
	escrow.Touch(now)
	if notes != "" {
		n := notes
		escrow.ReleaseNotes = &n
	}
	if status == entity.EscrowStatusFullyReleased {
		escrow.AmountReleased = escrow.AmountHeld
		escrow.ReleasedAt = &now
	}
	if status == entity.EscrowStatusRefunded {
		escrow.ReleasedAt = &now
	}

	if err := repo.Escrow.Settle(ctx, escrow); err != nil {
		if errors.Is(err, repository.ErrNotHolding) {
			return nil, errEscrowNotHolding(entity.EscrowStatusHolding)
		}
		return nil, fmt.Errorf("settle escrow: %w", err)
	}

	// 4. Audit row
	if txnType != "" {
		eid := escrow.ID
		txn := &entity.Transaction{
			BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
			BookingID:  escrow.BookingID,
			EscrowID:   &eid,
			Type:       txnType,
			Amount:     escrow.AmountHeld,
			Currency:   escrow.Currency,
		}
		if err := repo.Transaction.Create(ctx, txn); err != nil {
			return nil, fmt.Errorf("record %s transaction: %w", txnType, err)
		}
		metrics.EscrowMovements.WithLabelValues(string(txnType)).Add(float64(escrow.AmountHeld))
	}

	s.log.Info("Escrow settled",
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("booking_id", escrow.BookingID.String()),
		zap.String("status", string(status)),
	)
	return escrow, nil
}

func (s *escrowService) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*entity.EscrowAccount, error) {
	escrow, err := s.store.Repo().Escrow.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get escrow of booking %s: %w", bookingID.String(), err)
	}
	return escrow, nil
}
