package jobs

import (
	"context"
	"errors"
	"time"

	"parcel-share/internal/usecase"
	"parcel-share/pkg/metrics"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"
)

var errNotAttached = errors.New("jobs: queue has no client attached")

// Inserter is the part of the River client the queue needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Queue implements usecase.JobQueue. Services are built before the River client
// (its workers need them), so the client is attached afterwards.
type Queue struct {
	client Inserter
	log    *zap.Logger
}

func NewQueue(log *zap.Logger) *Queue {
	return &Queue{log: log.With(zap.String("component", "jobs"))}
}

func (q *Queue) Attach(client Inserter) {
	q.client = client
}

func (q *Queue) EnqueueNotification(ctx context.Context, req usecase.NotificationRequest) error {
	return q.insert(ctx, NotificationArgs{NotificationRequest: req}, nil)
}

func (q *Queue) EnqueueReconciliation(ctx context.Context, req usecase.ReconcileRequest) error {
	return q.insert(ctx, ReconciliationArgs{ReconcileRequest: req}, &river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
}

func (q *Queue) ScheduleSettlement(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	return q.insert(ctx, SettlementArgs{BookingID: bookingID}, &river.InsertOpts{
		ScheduledAt: at,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
}

func (q *Queue) insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error {
	if q.client == nil {
		metrics.JobsEnqueued.WithLabelValues(args.Kind(), "error").Inc()
		return errNotAttached
	}

	res, err := q.client.Insert(ctx, args, opts)
	if err != nil {
		metrics.JobsEnqueued.WithLabelValues(args.Kind(), "error").Inc()
		return err
	}

	result := "inserted"
	if res != nil && res.UniqueSkippedAsDuplicate {
		result = "duplicate"
	}
	metrics.JobsEnqueued.WithLabelValues(args.Kind(), result).Inc()
	q.log.Debug("Job enqueued", zap.String("kind", args.Kind()), zap.String("result", result))
	return nil
}
