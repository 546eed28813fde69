package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wiselib/api/internal/borrowing"
	"wiselib/api/internal/cache"
	"wiselib/api/internal/config"
	"wiselib/api/internal/database"
	"wiselib/api/internal/envelope"
	"wiselib/api/internal/handlers"
	"wiselib/api/internal/metrics"
	"wiselib/api/internal/realtime"
	"wiselib/api/internal/remote"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/service"
	"wiselib/api/internal/storage"
	"wiselib/api/internal/tasks"
)

const (
	cachePrefix   = "library"
	eventsChannel = "library:events"
)

// App holds the connections and services shared by the api and worker
// binaries.
type App struct {
	Config   *config.AppConfig
	Log      zerolog.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Objects  *storage.ObjectStore
	Cache    *cache.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Hub      *realtime.Hub
	Queue    *tasks.Queue
	Users    *repository.UserRepository
	Sessions *repository.SessionRepository
	Services handlers.Services
}

func New(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*App, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	objects, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		log.Warn().Err(err).Msg("ensure buckets failed")
	}

	registry := metrics.NewRegistry()
	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       pool,
		Redis:    rdb,
		Objects:  objects,
		Cache:    cache.NewStore(rdb, cachePrefix),
		Registry: registry,
		Metrics:  metrics.NewCollector(registry),
		Hub:      realtime.NewHub(rdb, eventsChannel, cfg.AllowCORSOrigins, log),
		Queue:    tasks.NewQueue(rdb, cfg.Worker.Stream),
		Users:    repository.NewUserRepository(pool),
		Sessions: repository.NewSessionRepository(pool),
	}
	a.Services = a.buildServices()
	return a, nil
}

func Rules(cfg *config.AppConfig) borrowing.Rules {
	return borrowing.Rules{
		ReturnHour:       cfg.Borrowing.ReturnHour,
		OverdueAfterDays: cfg.Borrowing.OverdueAfterDays,
		FinePerDay:       cfg.Borrowing.FinePerDay,
		MaxActive:        cfg.Borrowing.MaxActive,
		Location:         cfg.Location(),
	}
}

func EnvelopeSettings(cfg *config.AppConfig) envelope.Settings {
	return envelope.Settings{
		SystemID:   cfg.QR.SystemID,
		AdminTag:   cfg.QR.AdminTag,
		StudentTag: cfg.QR.StudentTag,
	}
}

func (a *App) buildServices() handlers.Services {
	cfg, log := a.Config, a.Log
	rules := Rules(cfg)
	settings := EnvelopeSettings(cfg)

	books := repository.NewBookRepository(a.DB)
	borrows := repository.NewBorrowRepository(a.DB)
	visits := repository.NewLibrarySessionRepository(a.DB)
	dir := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)

	activity := service.NewActivityService(repository.NewActivityRepository(a.DB), log)
	notifier := service.NewNotificationService(repository.NewNotificationRepository(a.DB), a.Cache, a.Hub, a.Metrics, log)

	qr := service.NewQRService(
		a.Users,
		books,
		envelope.NewBuilder(a.Users, settings),
		envelope.NewValidator(a.Users, settings, log),
		a.Objects,
		activity,
		notifier,
		a.Metrics,
		cfg,
		log,
	)

	return handlers.Services{
		Auth: service.NewAuthService(
			a.Users,
			a.Sessions,
			repository.NewLoginRecordRepository(a.DB),
			qr,
			a.Cache,
			dir,
			activity,
			notifier,
			a.Metrics,
			cfg,
			log,
		),
		Users:         service.NewUserService(a.Users, a.Objects, dir, activity, cfg, log),
		QR:            qr,
		Books:         service.NewBookService(books, log),
		Borrows:       service.NewBorrowService(borrows, a.Users, rules, notifier, a.Metrics, log),
		Reservations:  service.NewReservationService(repository.NewReservationRepository(a.DB), books, a.Users, notifier, log),
		Notifications: notifier,
		Activity:      activity,
		Library:       service.NewLibraryService(visits, a.Users, qr, activity, notifier, log),
		Stats:         service.NewStatsService(books, borrows, visits, rules, a.Cache, a.Hub, log),
		AI:            service.NewAIService(cfg.AI, repository.NewAILogRepository(a.DB), log),
	}
}

// Prepare runs the start-up maintenance: legacy badges are upgraded and the
// sample book is added to an empty catalogue.
func (a *App) Prepare(ctx context.Context) {
	if n, err := a.Services.QR.UpgradeLegacy(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("legacy qr upgrade failed")
	} else if n > 0 {
		a.Log.Info().Int("count", n).Msg("legacy qr codes upgraded")
	}
	if _, err := a.Services.Books.SeedSample(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("seed sample book failed")
	}
}

func (a *App) Close() {
	a.DB.Close()
	if err := a.Redis.Close(); err != nil {
		a.Log.Error().Err(err).Msg("redis close error")
	}
}
