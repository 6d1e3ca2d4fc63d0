package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Flusher writes a snapshot to a Store.
type Flusher interface {
	Flush(ctx context.Context, store Store) error
}

// Persister batches snapshot writes. The first mutation after an idle period
// schedules a flush after the configured delay; further mutations before the
// flush fires do not reschedule it. FlushNow exists for shutdown and manual
// clear paths.
type Persister struct {
	store  Store
	delay  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	flushers []Flusher
}

// NewPersister constructs a Persister writing to store after delay.
func NewPersister(store Store, delay time.Duration, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{store: store, delay: delay, logger: logger}
}

// Register adds a snapshot writer included in every flush.
func (p *Persister) Register(f Flusher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushers = append(p.flushers, f)
}

// MarkDirty schedules a flush unless one is already pending.
func (p *Persister) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(p.delay, func() {
		if err := p.FlushNow(context.Background()); err != nil {
			p.logger.Warn("cache flush failed", "error", err)
		}
	})
}

// FlushNow cancels any pending flush and writes all registered snapshots.
// A failed writer does not stop the others; the first error is returned.
func (p *Persister) FlushNow(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	flushers := make([]Flusher, len(p.flushers))
	copy(flushers, p.flushers)
	p.mu.Unlock()

	var firstErr error
	for _, f := range flushers {
		if err := f.Flush(ctx, p.store); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
