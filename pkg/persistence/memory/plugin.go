package memory

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
	"github.com/osvaldoandrade/typhoonlens/pkg/persistence"
)

// Plugin implements PluginPersistence as a bounded in-process LRU with
// per-entry expiry. Reports do not survive a restart.
type Plugin struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	max     int
	now     func() time.Time
}

type entry struct {
	report    domain.Report
	expiresAt time.Time
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return &Plugin{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     config.TTL,
		max:     config.MaxEntries,
		now:     config.Clock(),
	}, nil
}

func (p *Plugin) ReportStorage() persistence.ReportStorage { return p }

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error { return nil }

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error { return nil }

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

func (p *Plugin) Get(ctx context.Context, key string) (*domain.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.entries[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	e := el.Value.(*entry)
	if p.expired(e) {
		p.remove(el)
		return nil, persistence.ErrNotFound
	}
	p.order.MoveToFront(el)
	rep := e.report
	return &rep, nil
}

func (p *Plugin) Save(ctx context.Context, rep *domain.Report) error {
	if rep == nil || rep.Key == "" {
		return errors.New("report key is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e := &entry{report: *rep}
	if p.ttl > 0 {
		e.expiresAt = p.now().Add(p.ttl)
	}
	if el, ok := p.entries[rep.Key]; ok {
		el.Value = e
		p.order.MoveToFront(el)
		return nil
	}
	p.entries[rep.Key] = p.order.PushFront(e)
	for p.max > 0 && p.order.Len() > p.max {
		p.remove(p.order.Back())
	}
	return nil
}

func (p *Plugin) Count(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for el := p.order.Back(); el != nil; {
		prev := el.Prev()
		if p.expired(el.Value.(*entry)) {
			p.remove(el)
		}
		el = prev
	}
	return int64(p.order.Len()), nil
}

func (p *Plugin) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !p.now().Before(e.expiresAt)
}

func (p *Plugin) remove(el *list.Element) {
	e := p.order.Remove(el).(*entry)
	delete(p.entries, e.report.Key)
}
