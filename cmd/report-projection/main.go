package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/config"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/eventbus"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/logger"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		logrus.Fatalf("Failed to init logger: %v", err)
	}
	logrus.Info("Starting Report Projection Service...")

	if cfg.Redis.Host == "" {
		logrus.Fatal("REDIS_HOST is required for the projection")
	}
	consumerName := os.Getenv("CONSUMER_NAME")
	if consumerName == "" {
		consumerName = cfg.Server.InstanceID
	}

	db, err := repository.Connect(cfg.Database.DSN(), 30, 2*time.Second)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repository.Migrate(ctx, db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}
	logrus.WithField("database", cfg.Database.Name).Info("Connected to Reports Database")

	bus, err := eventbus.NewRedisEventBus(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer bus.Close()
	logrus.Info("Connected to Redis Event Bus")

	projector := NewProjector(db)

	go func() {
		logrus.WithField("consumer", consumerName).Info("[CONSUMER] Starting event consumer")
		if err := bus.Consume(ctx, eventbus.ConsumerGroup, consumerName, projector.HandleEvent); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[CONSUMER] consumer stopped")
		}
	}()

	go reportLag(ctx, bus, 30*time.Second)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down projection service...")
	cancel()

	// let in-flight handlers finish before the pool closes
	time.Sleep(2 * time.Second)
	logrus.Info("Projection service stopped")
}

// pendingCounter is the part of the event bus reportLag needs
type pendingCounter interface {
	GetPendingCount(ctx context.Context, consumerGroup string) (int64, error)
}

// reportLag periodically logs how many delivered events are still unacknowledged
func reportLag(ctx context.Context, bus pendingCounter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := bus.GetPendingCount(ctx, eventbus.ConsumerGroup)
			if err != nil {
				logrus.WithError(err).Warn("[CONSUMER] failed to read pending count")
				continue
			}
			if pending > 0 {
				logrus.WithField("pending", pending).Warn("[CONSUMER] events awaiting acknowledgement")
			}
		}
	}
}
