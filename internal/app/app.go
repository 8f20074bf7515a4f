package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sourcegraph/conc"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/riskibarqy/redial/external/hermes"
	"github.com/riskibarqy/redial/external/twilio"
	"github.com/riskibarqy/redial/internal/config"
	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
	"github.com/riskibarqy/redial/internal/infrastructure/account/anubis"
	"github.com/riskibarqy/redial/internal/infrastructure/jobqueue"
	cacherepo "github.com/riskibarqy/redial/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/redial/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/redial/internal/interfaces/httpapi"
	basecache "github.com/riskibarqy/redial/internal/platform/cache"
	idgen "github.com/riskibarqy/redial/internal/platform/id"
	"github.com/riskibarqy/redial/internal/platform/logging"
	"github.com/riskibarqy/redial/internal/platform/resilience"
	"github.com/riskibarqy/redial/internal/usecase"
)

const maxLoopStartJitter = 2 * time.Second

// App owns the full service graph: database, repositories, the dispatch
// engine services, and the HTTP server. Background loops are started
// separately through StartBackground so callers control when ticking begins.
type App struct {
	Server *http.Server

	db           *sqlx.DB
	logger       *logging.Logger
	availability *usecase.AvailabilityService
	dispatch     *usecase.DispatchService
	recovery     *usecase.RecoveryService
	scheduler    *usecase.ScheduleOrchestrator

	loops     *conc.WaitGroup
	stopLoops context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger, slogger *slog.Logger) (*App, error) {
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if slogger == nil {
		slogger = slog.Default()
	}

	db, err := otelsqlx.Open("postgres", normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.BootstrapSeed(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap seed: %w", err)
	}

	jobRepo := postgres.NewCallJobRepository(db)
	eventRepo := postgres.NewCallEventRepository(db)
	runRepo := postgres.NewSchedulerRunRepository(db)

	var providerRepo provider.Repository = postgres.NewProviderRepository(db)
	var templateRepo scripttemplate.Repository = postgres.NewTemplateRepository(db)
	if cfg.CacheEnabled {
		store := basecache.NewStore(cfg.CacheTTL)
		providerRepo = cacherepo.NewProviderRepository(providerRepo, store)
		templateRepo = cacherepo.NewTemplateRepository(templateRepo, store)
	}

	anubisClient := anubis.NewClient(
		&http.Client{Timeout: cfg.AnubisTimeout},
		cfg.AnubisBaseURL,
		cfg.AnubisIntrospectURL,
		cfg.AnubisAdminKey,
		anubis.CircuitBreakerConfig{
			Enabled:          cfg.AnubisCircuitEnabled,
			FailureThreshold: cfg.AnubisCircuitFailureCount,
			OpenTimeout:      cfg.AnubisCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.AnubisCircuitHalfOpenMaxReq,
		},
		slogger,
	)

	adapters := make([]usecase.ProviderAdapter, 0, 2)
	if cfg.TwilioEnabled {
		adapters = append(adapters, twilio.NewAdapter(twilio.AdapterConfig{
			BaseURL: cfg.TwilioBaseURL,
			Timeout: cfg.TwilioTimeout,
			Logger:  logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.TwilioCircuitEnabled,
				FailureThreshold: cfg.TwilioCircuitFailureCount,
				OpenTimeout:      cfg.TwilioCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.TwilioCircuitHalfOpenMaxReq,
			},
		}))
	}
	if cfg.HermesEnabled {
		adapters = append(adapters, hermes.NewAdapter(hermes.AdapterConfig{
			Timeout: cfg.HermesTimeout,
			Logger:  logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.HermesCircuitEnabled,
				FailureThreshold: cfg.HermesCircuitFailureCount,
				OpenTimeout:      cfg.HermesCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.HermesCircuitHalfOpenMaxReq,
			},
		}))
	}
	registry := usecase.NewAdapterRegistry(adapters...)

	ids := idgen.NewRandomGenerator()

	templateSvc := usecase.NewTemplateService(templateRepo, ids)
	callJobSvc := usecase.NewCallJobService(jobRepo, providerRepo, templateSvc, anubisClient, ids, usecase.CallJobServiceConfig{
		DefaultMaxRetries: cfg.CallDefaultMaxRetries,
		MaxPriority:       cfg.CallMaxPriority,
		ListDefaultLimit:  cfg.CallListDefaultLimit,
		ListMaxLimit:      cfg.CallListMaxLimit,
	})
	availabilitySvc := usecase.NewAvailabilityService(providerRepo, registry, usecase.AvailabilityConfig{
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		ProbeWorkers:  cfg.ProbeWorkers,
	}, logger)
	recoverySvc := usecase.NewRecoveryService(jobRepo, eventRepo, usecase.RecoveryConfig{
		BaseDelay:       cfg.RetryBaseDelay,
		PromoteInterval: cfg.RetryPromoteInterval,
		PromoteBatch:    cfg.RetryPromoteBatch,
		StallTimeout:    cfg.StallTimeout,
		StallInterval:   cfg.StallSweepInterval,
		StallBatch:      cfg.StallSweepBatch,
	}, logger)
	dispatchSvc := usecase.NewDispatchService(jobRepo, eventRepo, availabilitySvc, registry, recoverySvc, usecase.DispatchConfig{
		TickInterval:    cfg.DispatchTickInterval,
		GlobalMaxCalls:  cfg.DispatchGlobalMaxCalls,
		WorkerCount:     cfg.DispatchWorkerCount,
		InitiateTimeout: cfg.DispatchInitiateTimeout,
		CallbackBaseURL: cfg.CallbackBaseURL,
	}, logger)
	reconcileSvc := usecase.NewReconcileService(jobRepo, eventRepo, recoverySvc, availabilitySvc, anubisClient, logger)
	providerAdminSvc := usecase.NewProviderAdminService(providerRepo, registry, availabilitySvc, ids)
	dashboardSvc := usecase.NewDashboardService(jobRepo, runRepo, availabilitySvc)

	// Queue-driven mode hands the tick cadence to QStash; the orchestrator
	// only keeps the delayed-job chains alive. Without QStash the loops run
	// in this process and no orchestrator is built.
	var scheduler *usecase.ScheduleOrchestrator
	if cfg.QStashEnabled {
		publisher := jobqueue.NewQStashPublisher(jobqueue.QStashPublisherConfig{
			BaseURL:          cfg.QStashBaseURL,
			Token:            cfg.QStashToken,
			TargetBaseURL:    cfg.QStashTargetBaseURL,
			Retries:          cfg.QStashRetries,
			InternalJobToken: cfg.InternalJobToken,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.QStashCircuitEnabled,
				FailureThreshold: cfg.QStashCircuitFailureCount,
				OpenTimeout:      cfg.QStashCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.QStashCircuitHalfOpenMaxReq,
			},
		}, slogger)
		scheduler = usecase.NewScheduleOrchestrator(publisher, runRepo, usecase.ScheduleOrchestratorConfig{
			DispatchInterval:  cfg.DispatchTickInterval,
			ProbeInterval:     cfg.ProbeInterval,
			RecoverInterval:   cfg.RetryPromoteInterval,
			HeartbeatInterval: cfg.ScheduleHeartbeatInterval,
		}, logger)
	}

	if cfg.CallbackBaseURL == "" {
		slogger.Warn("CALLBACK_BASE_URL is empty; providers get no status callback and calls resolve through the stall sweep")
	}

	handler := httpapi.NewHandler(
		callJobSvc,
		templateSvc,
		providerAdminSvc,
		dispatchSvc,
		availabilitySvc,
		reconcileSvc,
		recoverySvc,
		scheduler,
		dashboardSvc,
		registry,
		runRepo,
		slogger,
	)
	router := httpapi.NewRouter(handler, anubisClient, slogger, cfg.SwaggerEnabled, cfg.CORSAllowedOrigins, cfg.InternalJobToken)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		Server:       server,
		db:           db,
		logger:       logger,
		availability: availabilitySvc,
		dispatch:     dispatchSvc,
		recovery:     recoverySvc,
		scheduler:    scheduler,
	}, nil
}

// StartBackground launches the engine loops. In queue-driven mode only the
// schedule orchestrator runs locally and the tick work arrives through the
// internal job routes; otherwise dispatch, probe and recovery loops all run
// in this process.
func (a *App) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopLoops = cancel
	a.loops = conc.NewWaitGroup()

	if a.scheduler != nil {
		a.startLoop(ctx, a.scheduler.Run)
		return
	}

	a.startLoop(ctx, a.availability.Run)
	a.startLoop(ctx, a.dispatch.Run)
	a.startLoop(ctx, a.recovery.Run)
}

// startLoop delays each loop by a small random jitter so a restart does not
// hit the database and every provider with synchronized first ticks.
func (a *App) startLoop(ctx context.Context, run func(context.Context)) {
	jitter := time.Duration(rand.Int64N(int64(maxLoopStartJitter)))
	a.loops.Go(func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
		run(ctx)
	})
}

// Shutdown stops the HTTP server, then the background loops, then the
// database, so no new work arrives while the loops drain.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("shutdown http server: %w", err)
		}
	}

	if a.stopLoops != nil {
		a.stopLoops()
	}
	if a.loops != nil {
		if recovered := a.loops.WaitAndRecover(); recovered != nil {
			a.logger.Error("background loop panicked during shutdown", "error", recovered.AsError())
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database: %w", err)
		}
	}

	return firstErr
}
