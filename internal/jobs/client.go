package jobs

import (
	"context"
	"fmt"
	"time"

	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
)

const sessionCleanupInterval = time.Hour

// Migrate applies River's own schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	log.Info("River migrations applied", zap.Int("versions", len(res.Versions)))
	return nil
}

// NewClient builds the River client. With jobs disabled it is insert-only:
// jobs are stored for another process to work.
func NewClient(pool *pgxpool.Pool, cfg utils.JobsConfig, svc *usecase.Service, log *zap.Logger) (*river.Client[pgx.Tx], error) {
	if !cfg.Enabled {
		return river.NewClient(riverpgxv5.New(pool), &river.Config{})
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewNotificationWorker(svc.Notification))
	river.AddWorker(workers, NewReconciliationWorker(svc.Booking, log))
	river.AddWorker(workers, NewSettlementWorker(svc.Booking, log))
	river.AddWorker(workers, NewSessionCleanupWorker(svc.Auth))

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(sessionCleanupInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return SessionCleanupArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
}
