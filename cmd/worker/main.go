package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/migrations"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"

	batchRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/batch/repository"
	batchUCPkg "github.com/fekuna/omnipos-inventory-service/internal/batch/usecase"
	invListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	resRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/repository"
	resUCPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/usecase"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     false,
		DisableStacktrace: false,
	}
	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 3.5 Run migrations
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		appLogger.Fatal("Could not set goose dialect", zap.Error(err))
	}
	if err := goose.Up(db.DB, "."); err != nil {
		appLogger.Fatal("Could not run migrations", zap.Error(err))
	}
	appLogger.Info("Migrations applied")

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka
	kafkaConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.OrdersGroupID,
	})
	defer kafkaConsumer.Close()

	kafkaProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.StockTopic,
	})
	defer kafkaProducer.Close()
	appLogger.Info("Connected to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("orders_topic", cfg.Kafka.OrdersTopic),
		zap.String("stock_topic", cfg.Kafka.StockTopic),
	)

	// 6. Initialize Repositories
	invRepo := invRepoPkg.NewPGRepository(db)
	resRepo := resRepoPkg.NewPGRepository(db)
	batchRepo := batchRepoPkg.NewPGRepository(db)

	// 7. Initialize UseCases
	publisher := events.NewPublisher(kafkaProducer, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, redisClient, publisher, appLogger)
	resUC := resUCPkg.NewReservationUseCase(resRepo, cfg.Inventory.ReservationTTL, appLogger)
	batchUC := batchUCPkg.NewBatchUseCase(batchRepo, invUC, appLogger)

	// 8. Start Listeners and Sweepers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orderListener := invListenerPkg.NewOrderListener(kafkaConsumer, invUC, resUC, appLogger)
	go orderListener.Start(ctx)

	go runReservationSweeper(ctx, resUC, cfg.Inventory.ReservationSweepEach, appLogger)
	go runRetentionSweeper(ctx, invUC, cfg.Inventory.RetentionAge, cfg.Inventory.RetentionSweepEach, appLogger)
	go runBatchExpiryReporter(ctx, batchUC, cfg.Inventory.RetentionSweepEach, appLogger)

	appLogger.Info("Inventory worker started")

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down worker...")
	cancel()
	appLogger.Info("Worker stopped")
}

func runReservationSweeper(ctx context.Context, resUC reservation.UseCase, every time.Duration, log logger.ZapLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := resUC.ExpireStale(ctx); err != nil {
				log.Error("Reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// runBatchExpiryReporter surfaces lots that passed their expiration date with
// stock still remaining, so operators can post the expiration write-offs.
func runBatchExpiryReporter(ctx context.Context, batchUC batch.UseCase, every time.Duration, log logger.ZapLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := batchUC.GetExpiredBatches(ctx, scope.Admin("batch-expiry-job"))
			if err != nil {
				log.Error("Batch expiry scan failed", zap.Error(err))
				continue
			}
			for _, b := range expired {
				log.Warn("Batch past expiration with remaining stock",
					zap.String("batch_id", b.ID),
					zap.String("batch_number", b.BatchNumber),
					zap.String("product_id", b.ProductID),
					zap.Int64("remaining", b.Remaining()),
				)
			}
		}
	}
}

func runRetentionSweeper(ctx context.Context, invUC inventory.UseCase, age, every time.Duration, log logger.ZapLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := invUC.PurgeTransactions(ctx, scope.Admin("retention-job"), age); err != nil {
				log.Error("Ledger retention purge failed", zap.Error(err))
			}
		}
	}
}
