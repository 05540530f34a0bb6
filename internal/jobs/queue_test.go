package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"
)

type recordingInserter struct {
	args []river.JobArgs
	opts []*river.InsertOpts
	err  error
}

func (r *recordingInserter) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.args = append(r.args, args)
	r.opts = append(r.opts, opts)
	return &rivertype.JobInsertResult{}, nil
}

func TestQueue_RequiresClient(t *testing.T) {
	q := NewQueue(zap.NewNop())
	if err := q.EnqueueNotification(context.Background(), usecase.NotificationRequest{}); !errors.Is(err, errNotAttached) {
		t.Fatalf("err = %v, want errNotAttached", err)
	}
}

func TestQueue_InsertOptions(t *testing.T) {
	ctx := context.Background()
	ins := &recordingInserter{}
	q := NewQueue(zap.NewNop())
	q.Attach(ins)

	bookingID := uuid.New()
	at := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	if err := q.EnqueueNotification(ctx, usecase.NotificationRequest{UserID: uuid.New(), EventType: "booking.paid"}); err != nil {
		t.Fatalf("notification: %v", err)
	}
	if err := q.EnqueueReconciliation(ctx, usecase.ReconcileRequest{BookingID: bookingID, Operation: usecase.ReconcileCapture}); err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if err := q.ScheduleSettlement(ctx, bookingID, at); err != nil {
		t.Fatalf("settlement: %v", err)
	}

	wantKinds := []string{KindNotification, KindReconciliation, KindSettlement}
	for i, kind := range wantKinds {
		if got := ins.args[i].Kind(); got != kind {
			t.Fatalf("job %d kind = %s, want %s", i, got, kind)
		}
	}
	if ins.opts[0] != nil {
		t.Fatal("notification inserted with options")
	}
	if o := ins.opts[1]; o.MaxAttempts != 10 || !o.UniqueOpts.ByArgs {
		t.Fatalf("reconciliation options: %+v", o)
	}
	if o := ins.opts[2]; !o.ScheduledAt.Equal(at) || !o.UniqueOpts.ByArgs {
		t.Fatalf("settlement options: %+v", o)
	}

	ins.err = errors.New("pool closed")
	if err := q.ScheduleSettlement(ctx, bookingID, at); err == nil {
		t.Fatal("insert error swallowed")
	}
}

type stubBookings struct {
	usecase.BookingService
	settleErr    error
	reconcileErr error
	settled      []uuid.UUID
}

func (s *stubBookings) Settle(_ context.Context, id uuid.UUID) error {
	s.settled = append(s.settled, id)
	return s.settleErr
}

func (s *stubBookings) Reconcile(_ context.Context, _ usecase.ReconcileRequest) error {
	return s.reconcileErr
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection refused"), true},
		{utils.ErrConcurrent(), true},
		{utils.ErrProvider(true, errors.New("timeout")), true},
		{utils.ErrInternal("boom", nil), true},
		{utils.ErrProvider(false, errors.New("card declined")), false},
		{utils.ErrInvalidTransition("completed", "settle"), false},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Fatalf("retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestSettlementWorker(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	job := &river.Job[SettlementArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: SettlementArgs{BookingID: id}}

	svc := &stubBookings{}
	w := NewSettlementWorker(svc, zap.NewNop())
	if err := w.Work(ctx, job); err != nil {
		t.Fatalf("work: %v", err)
	}
	if len(svc.settled) != 1 || svc.settled[0] != id {
		t.Fatalf("settled %v", svc.settled)
	}

	// contention is retried as is
	svc.settleErr = utils.ErrConcurrent()
	if err := w.Work(ctx, job); err != svc.settleErr {
		t.Fatalf("err = %v, want the original error", err)
	}

	// a refusal cancels the job
	refusal := utils.ErrInvalidTransition("completed", "settle")
	svc.settleErr = refusal
	err := w.Work(ctx, job)
	if err == nil || err == error(refusal) || !errors.Is(err, refusal) {
		t.Fatalf("err = %v, want a cancellation wrapping the refusal", err)
	}
}

func TestReconciliationWorker(t *testing.T) {
	ctx := context.Background()
	job := &river.Job[ReconciliationArgs]{
		JobRow: &rivertype.JobRow{Attempt: 3},
		Args:   ReconciliationArgs{ReconcileRequest: usecase.ReconcileRequest{BookingID: uuid.New(), Operation: usecase.ReconcileAuthorize}},
	}

	svc := &stubBookings{reconcileErr: utils.ErrProvider(true, errors.New("timeout"))}
	w := NewReconciliationWorker(svc, zap.NewNop())
	if err := w.Work(ctx, job); err != svc.reconcileErr {
		t.Fatalf("unknown outcome not retried: %v", err)
	}

	svc.reconcileErr = nil
	if err := w.Work(ctx, job); err != nil {
		t.Fatalf("work: %v", err)
	}
}
