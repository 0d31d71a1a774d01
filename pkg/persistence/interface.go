package persistence

import (
	"context"
	"errors"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

var (
	// ErrNotFound is returned when no report is stored under a key
	ErrNotFound = errors.New("not found")
)

// PluginPersistence is implemented by every report cache backend.
type PluginPersistence interface {
	// ReportStorage returns the report storage implementation
	ReportStorage() ReportStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// ReportStorage stores finished analysis reports keyed by the digest of the
// submitted files.
type ReportStorage interface {
	// Get returns the report stored under key or ErrNotFound
	Get(ctx context.Context, key string) (*domain.Report, error)

	// Save stores rep under rep.Key, replacing any previous report
	Save(ctx context.Context, rep *domain.Report) error

	// Count returns the number of live reports
	Count(ctx context.Context) (int64, error)
}
