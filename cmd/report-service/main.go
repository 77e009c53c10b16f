package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/auth"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/config"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/eventbus"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/logger"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/repository"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/service"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/storage"
)

// App holds the application dependencies
type App struct {
	Reports    *service.ReportService
	Directory  *auth.Directory
	Tokens     *auth.TokenIssuer
	Photos     storage.AttachmentStore
	Router     *mux.Router
	InstanceID string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		logrus.Fatalf("Failed to init logger: %v", err)
	}
	logrus.Infof("Starting Report Service [%s]...", cfg.Server.InstanceID)

	ctx := context.Background()

	repo, codes, db := openRepository(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	var publisher eventbus.Publisher = eventbus.LogPublisher{}
	if cfg.Redis.Host != "" {
		bus, err := eventbus.NewRedisEventBus(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		if err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer bus.Close()
		publisher = bus
		logrus.Info("Connected to Redis Event Bus")
	} else {
		logrus.Warn("REDIS_HOST not set, events are only logged")
	}

	var photos storage.AttachmentStore
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			logrus.Fatalf("Failed to init S3 store: %v", err)
		}
		photos = s3Store
		logrus.WithField("bucket", cfg.S3.Bucket).Info("Photos stored in S3")
	} else {
		photos = storage.NewMemoryStore("/photos")
		logrus.Warn("S3_BUCKET not set, photos are kept in memory")
	}

	directory, err := auth.DemoDirectory(cfg.DemoPassword)
	if err != nil {
		logrus.Fatalf("Failed to build login directory: %v", err)
	}

	policy := storage.PhotoPolicy{
		MaxCount:     cfg.Photos.MaxCount,
		MaxBytes:     cfg.Photos.MaxBytes,
		AllowedTypes: cfg.Photos.AllowedTypes,
	}

	app := &App{
		Reports:    service.NewReportService(repo, codes, photos, policy, publisher),
		Directory:  directory,
		Tokens:     auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL),
		Photos:     photos,
		Router:     mux.NewRouter(),
		InstanceID: cfg.Server.InstanceID,
	}
	setupRoutes(app)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Report Service [%s] listening on port %s", cfg.Server.InstanceID, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	logrus.Info("Server exited")
}

// openRepository returns the configured report store. db is nil for the
// memory driver.
func openRepository(ctx context.Context, cfg *config.Config) (service.Repository, *domain.CodeGenerator, *sql.DB) {
	if cfg.Repository == "memory" {
		logrus.Warn("Using in-memory repository, reports are lost on restart")
		return repository.NewMemoryRepository(), domain.NewCodeGenerator(repository.NewMemoryCodeSequence(), nil), nil
	}

	db, err := repository.Connect(cfg.Database.DSN(), 30, 2*time.Second)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}
	logrus.WithField("database", cfg.Database.Name).Info("Connected to Reports Database")

	return repository.NewPostgresRepository(db), domain.NewCodeGenerator(repository.NewPostgresCodeSequence(db), nil), db
}
