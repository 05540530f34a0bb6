package jobs

import (
	"context"
	"time"

	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
	svc usecase.NotificationService
}

func NewNotificationWorker(svc usecase.NotificationService) *NotificationWorker {
	return &NotificationWorker{svc: svc}
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	return w.svc.Deliver(ctx, job.Args.NotificationRequest)
}

type ReconciliationWorker struct {
	river.WorkerDefaults[ReconciliationArgs]
	svc usecase.BookingService
	log *zap.Logger
}

func NewReconciliationWorker(svc usecase.BookingService, log *zap.Logger) *ReconciliationWorker {
	return &ReconciliationWorker{svc: svc, log: log.With(zap.String("worker", KindReconciliation))}
}

func (w *ReconciliationWorker) Work(ctx context.Context, job *river.Job[ReconciliationArgs]) error {
	err := w.svc.Reconcile(ctx, job.Args.ReconcileRequest)
	if err == nil {
		return nil
	}
	if !retryable(err) {
		w.log.Error("Reconciliation gave up",
			zap.String("booking_id", job.Args.BookingID.String()),
			zap.String("operation", job.Args.Operation),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return river.JobCancel(err)
	}
	return err
}

type SettlementWorker struct {
	river.WorkerDefaults[SettlementArgs]
	svc usecase.BookingService
	log *zap.Logger
}

func NewSettlementWorker(svc usecase.BookingService, log *zap.Logger) *SettlementWorker {
	return &SettlementWorker{svc: svc, log: log.With(zap.String("worker", KindSettlement))}
}

func (w *SettlementWorker) Work(ctx context.Context, job *river.Job[SettlementArgs]) error {
	err := w.svc.Settle(ctx, job.Args.BookingID)
	if err != nil && !retryable(err) {
		w.log.Error("Settlement needs attention",
			zap.String("booking_id", job.Args.BookingID.String()),
			zap.Error(err),
		)
		return river.JobCancel(err)
	}
	return err
}

type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	svc usecase.AuthService
}

func NewSessionCleanupWorker(svc usecase.AuthService) *SessionCleanupWorker {
	return &SessionCleanupWorker{svc: svc}
}

func (w *SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	_, err := w.svc.CleanExpiredSessions(ctx)
	return err
}

func (w *SessionCleanupWorker) Timeout(*river.Job[SessionCleanupArgs]) time.Duration {
	return time.Minute
}

// retryable reports whether a later attempt may succeed: lock contention, an
// unknown provider outcome or an unexpected failure. Typed refusals are final.
func retryable(err error) bool {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case utils.CodeConcurrentModification, utils.CodePaymentOutcomeUnknown, utils.CodeInternal:
		return true
	}
	return false
}
