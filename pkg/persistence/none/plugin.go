// Package none registers a persistence provider that stores nothing, for
// deployments that want every request to reach the analyzer.
package none

import (
	"context"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/persistence"
)

type Plugin struct{}

func NewPlugin(persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return Plugin{}, nil
}

func (Plugin) ReportStorage() persistence.ReportStorage { return Plugin{} }
func (Plugin) Health(context.Context) error             { return nil }
func (Plugin) Close() error                             { return nil }

func (Plugin) Get(context.Context, string) (*domain.Report, error) {
	return nil, persistence.ErrNotFound
}

func (Plugin) Save(context.Context, *domain.Report) error { return nil }

func (Plugin) Count(context.Context) (int64, error) { return 0, nil }

func init() {
	persistence.RegisterProvider("none", NewPlugin)
}
