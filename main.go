// main.go
package main

import (
	"context"
	"log"

	"parcel-share/cmd"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/jobs"
	"parcel-share/internal/usecase"
	"parcel-share/internal/wire"
	"parcel-share/pkg/database"
	"parcel-share/pkg/events"
	"parcel-share/pkg/lock"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/realtime"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	ctx := context.Background()
	if err := jobs.Migrate(ctx, db.Pool(), logger); err != nil {
		logger.Fatal("Failed to migrate job queue", zap.Error(err))
	}

	// Booking locks: Redis when configured, process-local otherwise
	var locker lock.Locker = lock.NewLocalLocker()
	if config.Redis.Addr != "" {
		rdb := lock.NewRedisClient(config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		locker = lock.NewRedisLocker(rdb, logger)
		logger.Info("Redis lock backend enabled", zap.String("addr", config.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set, booking locks are process-local")
	}

	// Domain events
	var publisher events.Publisher = events.NopPublisher{}
	if len(config.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(config.Kafka.Brokers, config.Kafka.Topic)
		logger.Info("Kafka event publisher enabled", zap.Strings("brokers", config.Kafka.Brokers))
	}
	defer publisher.Close()

	hub := realtime.NewHub(config.App.AllowedOrigins, logger)
	queue := jobs.NewQueue(logger)

	// Wire all dependencies
	app := wire.Wiring(usecase.Deps{
		Store:   repository.NewStore(db, logger),
		Gateway: payment.NewStripeGateway(config.Stripe.SecretKey, config.Stripe.Timeout, logger),
		Locker:  locker,
		Events:  publisher,
		Jobs:    queue,
		Pusher:  hub,
		Config:  config,
		Log:     logger,
	}, hub)

	// Background jobs
	riverClient, err := jobs.NewClient(db.Pool(), config.Jobs, app.Service, logger)
	if err != nil {
		logger.Fatal("Failed to create job client", zap.Error(err))
	}
	queue.Attach(riverClient)

	if config.Jobs.Enabled {
		if err := riverClient.Start(ctx); err != nil {
			logger.Fatal("Failed to start job workers", zap.Error(err))
		}
		logger.Info("Job workers started", zap.Int("max_workers", config.Jobs.MaxWorkers))
	}

	// Start server
	err = cmd.APIServer(app.Router, config.App.Port, logger, func(ctx context.Context) {
		if !config.Jobs.Enabled {
			return
		}
		if err := riverClient.Stop(ctx); err != nil {
			logger.Error("Job workers did not stop cleanly", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}
