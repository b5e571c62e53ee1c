package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/readerfleet/internal/api/http"
	"github.com/GriffinCanCode/readerfleet/internal/api/middleware"
	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/automation"
	"github.com/GriffinCanCode/readerfleet/internal/domain/controller"
	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/config"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/readerfleet/internal/providers/appium"
	"github.com/GriffinCanCode/readerfleet/internal/providers/diagnostics"
	"github.com/GriffinCanCode/readerfleet/internal/providers/emulator"
	"github.com/GriffinCanCode/readerfleet/internal/providers/simulator"
	"github.com/GriffinCanCode/readerfleet/internal/providers/storage"
	"github.com/GriffinCanCode/readerfleet/internal/ws"
)

// repository is a profile store that owns resources
type repository interface {
	account.Repository
	io.Closer
}

// Server wraps the HTTP server and dependencies
type Server struct {
	config      *config.Config
	logger      *logging.Logger
	metrics     *monitoring.Metrics
	tracer      *tracing.Tracer
	router      *gin.Engine
	http        *http.Server
	repo        repository
	diagnostics *diagnostics.Store
	orch        *lifecycle.Orchestrator
	service     *automation.Service
	limiter     *middleware.Limiter

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.OutputPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing readerfleet server",
		zap.String("port", cfg.Server.Port),
		zap.String("driver", cfg.Driver.Mode),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("slots", cfg.Lifecycle.Slots),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("readerfleet", logger.Logger)

	repo, err := openRepository(cfg.Storage)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	logger.Info("Profile storage ready", zap.String("driver", cfg.Storage.Driver))

	var diag *diagnostics.Store
	if cfg.Diagnostics.Enabled {
		diag, err = diagnostics.New(cfg.Diagnostics.Dir, logger.Component("diagnostics"))
		if err != nil {
			repo.Close()
			tracer.Close()
			return nil, fmt.Errorf("failed to open diagnostics store: %w", err)
		}
	}

	emu, conn := buildDriver(cfg, logger)

	g := guard.New(guard.Config{
		WaitTimeout:   cfg.Guard.WaitTimeout,
		ActionTimeout: cfg.Guard.ActionTimeout,
	}, logger.Component("guard"), metrics)

	orch := lifecycle.New(lifecycle.Config{
		Slots:            cfg.Lifecycle.Slots,
		BootTimeout:      cfg.Lifecycle.BootTimeout,
		BootPollInterval: cfg.Lifecycle.BootPollInterval,
		ProbeAttempts:    cfg.Lifecycle.ProbeAttempts,
		ProbeTimeout:     cfg.Lifecycle.ProbeTimeout,
		ProbeInterval:    cfg.Lifecycle.ProbeInterval,
		IdleTimeout:      cfg.Lifecycle.IdleTimeout,
		SkipSnapshot:     cfg.Lifecycle.SkipSnapshot,
		AVDPrefix:        cfg.Lifecycle.AVDPrefix,
	}, lifecycle.Deps{
		Repository: repo,
		Emulator:   emu,
		Connector:  conn,
		Lanes:      g,
		Logger:     logger.Component("lifecycle"),
		Metrics:    metrics,
		Tracer:     tracer,
	})

	registry := handlers.DefaultRegistry()
	table, err := statemachine.New(statemachine.DefaultTransitions(), registry.Has)
	if err != nil {
		closeAll(logger, repo, diag)
		tracer.Close()
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}
	recognizer, err := view.NewRecognizer(view.DefaultCatalog())
	if err != nil {
		closeAll(logger, repo, diag)
		tracer.Close()
		return nil, fmt.Errorf("invalid view catalog: %w", err)
	}

	ctrlDeps := controller.Deps{
		Updater: orch,
		Before:  []controller.Hook{automation.CrashGate(orch)},
		After:   []controller.Hook{automation.TouchActivity(orch)},
		Logger:  logger.Component("controller"),
		Metrics: metrics,
		Tracer:  tracer,
	}
	if diag != nil {
		ctrlDeps.Diagnostics = diag
	}
	ctrl := controller.New(recognizer, table, registry, controller.Config{
		UnknownRetries:    cfg.Controller.UnknownRetries,
		UnknownRetryDelay: cfg.Controller.UnknownRetryDelay,
		ElementRetries:    cfg.Controller.ElementRetries,
		ElementRetryDelay: cfg.Controller.ElementRetryDelay,
		Settle: handlers.SettleConfig{
			Attempts: cfg.Controller.SettleAttempts,
			Interval: cfg.Controller.SettleInterval,
		},
	}, ctrlDeps)

	svc := automation.New(automation.Deps{
		Guard:      g,
		Lifecycle:  orch,
		Controller: ctrl,
		Logger:     logger.Component("automation"),
	})

	s := &Server{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		repo:        repo,
		diagnostics: diag,
		orch:        orch,
		service:     svc,
		stop:        make(chan struct{}),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.CORSFor(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = float64(cfg.RateLimit.RequestsPerSecond)
		rl.Burst = cfg.RateLimit.Burst
		s.limiter = middleware.NewLimiter(rl)
		router.Use(middleware.AccountRateLimit(s.limiter))
	}

	handlerMetrics := httpapi.NewHandlerMetrics(s.metrics)
	httpapi.NewHandlers(s.service, handlerMetrics, s.logger.Component("http")).Register(router)

	wsHandler := ws.NewHandler(s.orch.Events(), s.metrics, s.logger.Component("ws"))
	router.GET("/stream", wsHandler.HandleConnection)

	aggregator := httpapi.NewMetricsAggregator(s.metrics, s.service)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)

	return router
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Service returns the automation service
func (s *Server) Service() *automation.Service {
	return s.service
}

// Run resumes instances paused by the last shutdown, starts background
// jobs and serves HTTP until Close
func (s *Server) Run() error {
	if s.config.Lifecycle.ResumeOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Lifecycle.BootTimeout*time.Duration(s.config.Lifecycle.Slots))
		resumed, err := s.orch.ResumeFromRestart(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("Some instances failed to resume", zap.Error(err))
		}
		if len(resumed) > 0 {
			s.logger.Info("Resumed instances", zap.Strings("accounts", resumed))
		}
	}

	s.startBackground()

	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startBackground() {
	if interval := s.config.Lifecycle.SweepInterval; interval > 0 {
		s.every(interval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			report, err := s.service.IdleSweep(ctx, 0)
			if err != nil {
				s.logger.Warn("Idle sweep failed", zap.Error(err))
				return
			}
			if report.ShutDown > 0 || report.Failed > 0 {
				s.logger.Info("Idle sweep complete",
					zap.Int("shut_down", report.ShutDown),
					zap.Int("failed", report.Failed),
					zap.Int("active", report.Active))
			}
		})
	}
	if s.limiter != nil {
		s.every(time.Minute, func() { s.limiter.Cleanup() })
	}
}

func (s *Server) every(interval time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Close gracefully shuts down the server. Running instances are paused
// so the next start can resume them.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		close(s.stop)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		s.wg.Wait()

		if err := s.orch.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to pause instances", zap.Error(err))
			errs = append(errs, fmt.Errorf("pause instances: %w", err))
		}
		if err := closeAll(s.logger, s.repo, s.diagnostics); err != nil {
			errs = append(errs, err)
		}
		s.tracer.Close()
		s.logger.Sync()
	})
	return errors.Join(errs...)
}

func closeAll(logger *logging.Logger, repo repository, diag *diagnostics.Store) error {
	var errs []error
	if diag != nil {
		if err := diag.Close(); err != nil {
			logger.Error("Failed to close diagnostics store", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close profile storage", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openRepository(cfg config.StorageConfig) (repository, error) {
	switch cfg.Driver {
	case "sqlite":
		repo, err := storage.NewSQLite(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage %s: %w", cfg.DSN, err)
		}
		return repo, nil
	default:
		return storage.NewMemory(), nil
	}
}

// buildDriver returns the emulator and connector for the configured mode.
// The simulator serves as both.
func buildDriver(cfg *config.Config, logger *logging.Logger) (device.Emulator, device.Connector) {
	if cfg.Driver.Mode == "simulator" {
		logger.Warn("Using the in-process simulator; no emulator will be started")
		farm := simulator.NewFarm(simulator.DefaultScript(), logger.Component("simulator"))
		return farm, farm
	}

	emu := emulator.New(emulator.Config{
		SDKRoot:     cfg.Emulator.SDKRoot,
		AVDHome:     cfg.Emulator.AVDHome,
		EmulatorBin: cfg.Emulator.EmulatorBin,
		ADBBin:      cfg.Emulator.ADBBin,
		Headless:    cfg.Emulator.Headless,
		ExtraArgs:   cfg.Emulator.ExtraArgs,
	}, emulator.ExecRunner{}, logger.Component("emulator"))

	ac := appium.DefaultConfig()
	ac.Host = cfg.Driver.AppiumHost
	ac.AppPackage = cfg.Driver.AppPackage
	ac.AppActivity = cfg.Driver.AppActivity
	ac.Timeout = cfg.Driver.RequestTimeout
	ac.Retries = cfg.Driver.Retries
	return emu, appium.NewConnector(ac, logger.Component("appium"))
}
