// Package publisher emits audit entries on a best-effort basis.
//
// Record never blocks and never fails the caller: a successful mutation stays
// successful even when its audit entry is lost. Losses are logged and counted.
// In async mode a single worker drains a bounded buffer into the store; a
// full buffer drops the entry. Sync mode (the default) writes inline and is
// meant for tests and tools.
package publisher

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"kvault/pkg/domain"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/audit/worker"
	"kvault/pkg/requestcontext"
)

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics

	bufferSize int
	buffer     chan audit.Entry
	worker     *worker.Worker

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of n entries.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Entry, p.bufferSize)
	}
	p.worker = worker.NewWorker(store, p.buffer, p.logger, p.metrics)
	if p.buffer != nil {
		p.done = make(chan struct{})
		go func() {
			defer close(p.done)
			p.worker.Run()
		}()
	}
	return p
}

// Record stamps and enqueues an entry. It returns immediately.
func (p *Publisher) Record(ctx context.Context, entry audit.Entry) {
	if entry.ID.IsNil() {
		entry.ID = domain.AuditEntryID(uuid.New())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	entry.Details = maps.Clone(entry.Details)
	p.metrics.IncRecorded()

	if p.buffer == nil {
		p.worker.Persist(entry)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, entry, "publisher closed")
		return
	}
	select {
	case p.buffer <- entry:
		p.metrics.SetBufferDepth(len(p.buffer))
	default:
		p.drop(ctx, entry, "audit buffer full")
	}
}

func (p *Publisher) drop(ctx context.Context, entry audit.Entry, reason string) {
	p.metrics.IncDropped()
	p.logger.WarnContext(ctx, "audit entry dropped",
		"reason", reason,
		"action", entry.Action,
		"target_id", entry.TargetID,
		"request_id", entry.RequestID,
	)
}

// List reads back persisted entries.
func (p *Publisher) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	return p.store.List(ctx, q)
}

// Close stops accepting entries and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}
