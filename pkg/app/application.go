package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/osvaldoandrade/typhoonlens/internal/analyzer"
	"github.com/osvaldoandrade/typhoonlens/internal/metrics"
	"github.com/osvaldoandrade/typhoonlens/internal/middleware"
	"github.com/osvaldoandrade/typhoonlens/internal/providers"
	"github.com/osvaldoandrade/typhoonlens/internal/ratelimit"
	"github.com/osvaldoandrade/typhoonlens/internal/services"
	"github.com/osvaldoandrade/typhoonlens/internal/tracing"
	"github.com/osvaldoandrade/typhoonlens/pkg/config"
	"github.com/osvaldoandrade/typhoonlens/pkg/persistence"
	redisplugin "github.com/osvaldoandrade/typhoonlens/pkg/persistence/redis"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Analysis        services.AnalysisService
	Analyzer        analyzer.Analyzer
	Cache           persistence.PluginPersistence
	Logger          *slog.Logger
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error

	redis *redis.Client
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithAnalyzer replaces the analyzer built from cfg.Analyzer.
func WithAnalyzer(an analyzer.Analyzer) ApplicationOption {
	return func(app *Application) error {
		app.Analyzer = an
		return nil
	}
}

// WithLogger replaces the stdout logger built from cfg.
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Logger == nil {
		app.Logger = newLogger(cfg)
	}
	logger := app.Logger
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	app.redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.redis)

	cache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	app.Cache = cache
	metrics.RegisterCacheCollector(cacheStats{cache}, cfg.Cache.Provider, logger)

	if app.Analyzer == nil {
		an, err := analyzer.New(context.Background(), cfg.Analyzer)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		app.Analyzer = an
	}

	app.Analysis = services.NewAnalysisService(
		app.Analyzer,
		cache.ReportStorage(),
		providers.NewLocalArchive(cfg.ArchiveDir),
		services.RetryPolicy{
			MaxAttempts:    cfg.Analyzer.MaxAttempts,
			Policy:         cfg.Analyzer.BackoffPolicy,
			Base:           time.Duration(cfg.Analyzer.BackoffBaseMillis) * time.Millisecond,
			Max:            time.Duration(cfg.Analyzer.BackoffMaxMillis) * time.Millisecond,
			AttemptTimeout: time.Duration(cfg.Analyzer.TimeoutSeconds) * time.Second,
		},
		logger,
		time.Now,
	)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.LoggerMiddleware(logger),
	)
	app.Engine = engine

	logger.Info("application ready",
		"analyzer", app.Analyzer.Name(),
		"model", app.Analyzer.Model(),
		"cache", cfg.Cache.Provider,
		"archive", cfg.ArchiveDir != "",
	)
	return app, nil
}

// Close releases the analyzer, cache and redis connections.
func (a *Application) Close() error {
	var errs []error
	if a.Analyzer != nil {
		errs = append(errs, a.Analyzer.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "typhoonlens", "env", cfg.Env)
}

func newCache(cfg *config.Config) (persistence.PluginPersistence, error) {
	var raw json.RawMessage
	if cfg.Cache.Provider == "redis" {
		b, err := json.Marshal(redisplugin.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return persistence.NewPersistence(
		persistence.ProviderConfig{Type: cfg.Cache.Provider, Config: raw},
		persistence.PluginConfig{
			TTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries: cfg.Cache.MaxEntries,
		},
	)
}

type cacheStats struct {
	p persistence.PluginPersistence
}

func (s cacheStats) Count(ctx context.Context) (int64, error) {
	return s.p.ReportStorage().Count(ctx)
}

func (s cacheStats) Health(ctx context.Context) error {
	return s.p.Health(ctx)
}
