package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/cleanup"
	"github.com/kingsmanrocky-max/account-intelligence/internal/deliveries"
	"github.com/kingsmanrocky-max/account-intelligence/internal/exports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm/openai"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm/openrouter"
	"github.com/kingsmanrocky-max/account-intelligence/internal/podcasts"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/schedules"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/config"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/server"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/db"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object"
	localstore "github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object/local"
	s3store "github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object/s3"
	"github.com/kingsmanrocky-max/account-intelligence/internal/users"
)

// App holds the wired dependency graph: repositories, services, handlers
// and the background processors.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	ReportsRepo    reports.Repo
	Analytics      reports.AnalyticsRecorder
	ExportsRepo    exports.Repo
	DeliveriesRepo deliveries.Repo
	PodcastsRepo   podcasts.Repo
	TemplatesRepo  schedules.TemplateRepo
	SchedulesRepo  schedules.Repo
	UsersRepo      users.Repo

	LLM               *llm.Service
	ActivityService   *activity.Service
	ReportsService    *reports.Service
	ExportsService    *exports.Service
	DeliveriesService *deliveries.Service
	PodcastsService   *podcasts.Service
	SchedulesService  *schedules.Service
	UsersService      *users.Service

	ScheduleProcessor *schedules.Processor
	PodcastProcessor  *podcasts.Processor
	CleanupProcessor  *cleanup.Processor
}

// Build prepares the dependency graph and registers all routes. Postgres
// and S3 are optional: when unavailable the app degrades to in-memory
// repositories and local disk storage.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	app := &App{Config: cfg}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.Options{})
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else if err := db.RunMigrations(context.Background(), conn); err != nil {
			log.Printf("failed to run migrations, falling back to memory: %v", err)
			_ = conn.Close()
		} else {
			sqlDB = conn
		}
	}
	app.DB = sqlDB

	store, err := buildObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if sqlDB != nil {
		app.ReportsRepo = &reports.PGRepo{DB: sqlDB}
		app.Analytics = &reports.PGAnalytics{DB: sqlDB}
		app.ExportsRepo = &exports.PGRepo{DB: sqlDB}
		app.DeliveriesRepo = &deliveries.PGRepo{DB: sqlDB}
		app.PodcastsRepo = &podcasts.PGRepo{DB: sqlDB}
		app.TemplatesRepo = &schedules.PGTemplateRepo{DB: sqlDB}
		app.SchedulesRepo = &schedules.PGRepo{DB: sqlDB}
		app.UsersRepo = &users.PGRepo{DB: sqlDB}
		app.ActivityService = activity.NewPostgresService(activity.NewPGStore(sqlDB))
	} else {
		app.ReportsRepo = reports.NewMemoryRepo()
		app.Analytics = reports.NewMemoryAnalytics()
		app.ExportsRepo = exports.NewMemoryRepo()
		app.DeliveriesRepo = deliveries.NewMemoryRepo()
		app.PodcastsRepo = podcasts.NewMemoryRepo()
		app.TemplatesRepo = schedules.NewMemoryTemplateRepo()
		app.SchedulesRepo = schedules.NewMemoryRepo()
		app.UsersRepo = users.NewMemoryRepo()
		app.ActivityService = activity.NewService()
	}

	llmSvc, speech, err := buildCompletion(cfg)
	if err != nil {
		return nil, err
	}
	app.LLM = llmSvc

	var messenger deliveries.Messenger
	if cfg.SlackBotToken != "" {
		messenger, err = deliveries.NewSlackMessenger(cfg.SlackBotToken)
		if err != nil {
			return nil, err
		}
	} else {
		log.Printf("SLACK_BOT_TOKEN not set, deliveries will be logged locally")
		messenger = &deliveries.LogMessenger{}
	}

	app.UsersService = users.NewService(app.UsersRepo)

	app.ExportsService = &exports.Service{
		Repo:      app.ExportsRepo,
		Reports:   app.ReportsRepo,
		Renderers: exports.NewRendererSet(),
		Store:     store,
		Activity:  app.ActivityService,
		TTL:       cfg.ExportTTL,
	}

	app.DeliveriesService = deliveries.NewService(
		app.DeliveriesRepo, app.ReportsRepo, app.ExportsService, messenger, app.ActivityService)

	app.PodcastsService = &podcasts.Service{
		Repo:       app.PodcastsRepo,
		Reports:    app.ReportsRepo,
		Completer:  llmSvc,
		Speech:     speech,
		Store:      store,
		Deliveries: app.DeliveriesService,
		Activity:   app.ActivityService,
	}
	// Podcast audio is served back through the delivery layer once ready.
	app.DeliveriesService.Audio = app.PodcastsService

	app.ReportsService = &reports.Service{
		Repo:       app.ReportsRepo,
		Completer:  llmSvc,
		Analytics:  app.Analytics,
		Activity:   app.ActivityService,
		Exports:    app.ExportsService,
		Deliveries: app.DeliveriesService,
		Podcasts:   app.PodcastsService,
	}

	app.SchedulesService = schedules.NewService(
		app.TemplatesRepo, app.SchedulesRepo, app.ReportsService, app.ActivityService)

	app.ScheduleProcessor = schedules.NewProcessor(app.SchedulesService)
	app.ScheduleProcessor.Interval = cfg.ScheduleTickInterval
	app.ScheduleProcessor.MaxConcurrent = cfg.MaxConcurrentSchedules

	app.PodcastProcessor = podcasts.NewProcessor(app.PodcastsService)
	app.PodcastProcessor.PollInterval = cfg.PodcastTickInterval

	app.CleanupProcessor = cleanup.NewProcessor(
		app.ReportsRepo, app.ExportsService, app.PodcastsService, app.ActivityService, app.Analytics)
	if cfg.ReportRetentionDays > 0 {
		app.CleanupProcessor.ReportRetention = time.Duration(cfg.ReportRetentionDays) * 24 * time.Hour
	}

	router, api := server.NewRouter(cfg)
	users.NewHandler(app.UsersService).RegisterRoutes(api)
	reports.NewHandler(app.ReportsService).RegisterRoutes(api)
	exports.NewHandler(app.ExportsService).RegisterRoutes(api)
	deliveries.NewHandler(app.DeliveriesService).RegisterRoutes(api)
	podcasts.NewHandler(app.PodcastsService).RegisterRoutes(api)
	schedules.NewHandler(app.SchedulesService).RegisterRoutes(api)
	cleanup.NewHandler(app.CleanupProcessor).RegisterRoutes(api)
	app.Router = router

	return app, nil
}

// StartProcessors launches the background loops. ctx cancellation stops
// their tickers; StopProcessors waits for in-flight work.
func (a *App) StartProcessors(ctx context.Context) {
	a.ScheduleProcessor.Start(ctx)
	a.PodcastProcessor.Start(ctx)
	a.CleanupProcessor.Start(ctx)
}

// StopProcessors waits up to timeout for each processor to drain.
func (a *App) StopProcessors(timeout time.Duration) {
	a.ScheduleProcessor.Stop(timeout)
	a.PodcastProcessor.Stop(timeout)
	a.CleanupProcessor.Stop(timeout)
}

// Close releases held resources.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildObjectStore(cfg config.Config) (object.ObjectStore, error) {
	if cfg.ObjectStoreType == "s3" {
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when OBJECT_STORE=s3")
		}
		return s3store.New(context.Background(), cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	}
	return localstore.New(cfg.LocalStoreDir), nil
}

// buildCompletion wires the primary and fallback completion providers plus
// the speech synthesizer. The synthesizer always comes from OpenAI since
// OpenRouter has no speech endpoint.
func buildCompletion(cfg config.Config) (*llm.Service, podcasts.Synthesizer, error) {
	var speech podcasts.Synthesizer

	primary, err := buildProvider(cfg, cfg.LLMProvider, cfg.LLMModel)
	if err != nil {
		log.Printf("primary completion provider unavailable: %v", err)
		primary = nil
	}

	var fallback llm.Provider
	if cfg.LLMFallback != "" {
		fallback, err = buildProvider(cfg, cfg.LLMFallback, cfg.LLMFallbackModel)
		if err != nil {
			log.Printf("fallback completion provider unavailable: %v", err)
			fallback = nil
		}
	}

	if cfg.OpenAIAPIKey != "" {
		tts, err := openai.New(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, err
		}
		speech = tts
	} else {
		log.Printf("OPENAI_API_KEY not set, podcast audio synthesis unavailable")
	}

	return llm.NewService(primary, fallback, cfg.LLMMaxAttempts), speech, nil
}

func buildProvider(cfg config.Config, name, model string) (llm.Provider, error) {
	switch name {
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, model)
	case "openrouter":
		return openrouter.New(openrouter.Config{APIKey: cfg.OpenRouterAPIKey, Model: model})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}
