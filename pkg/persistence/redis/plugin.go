package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/osvaldoandrade/typhoonlens/internal/repository"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client *redis.Client
	repo   repository.ReportRepository
	ttl    time.Duration
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis persistence: addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Plugin{
		client: client,
		repo:   repository.NewReportRepository(client, config.Clock()),
		ttl:    config.TTL,
	}, nil
}

func (p *Plugin) ReportStorage() persistence.ReportStorage {
	return &reportStorageAdapter{repo: p.repo, ttl: p.ttl}
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}

type reportStorageAdapter struct {
	repo repository.ReportRepository
	ttl  time.Duration
}

func (a *reportStorageAdapter) Get(ctx context.Context, key string) (*domain.Report, error) {
	rep, err := a.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrReportNotFound) {
		return nil, persistence.ErrNotFound
	}
	return rep, err
}

func (a *reportStorageAdapter) Save(ctx context.Context, rep *domain.Report) error {
	return a.repo.Save(ctx, rep, a.ttl)
}

func (a *reportStorageAdapter) Count(ctx context.Context) (int64, error) {
	return a.repo.Count(ctx)
}
