// Package engine assembles the classification pipeline: the CRM client, the
// resolver, both cache tiers, and the document processor, owned by one
// instance so no state hides at process scope.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"crmscan/internal/cache"
	"crmscan/internal/classify"
	"crmscan/internal/crm"
	"crmscan/internal/platform/config"
	"crmscan/internal/platform/metrics"
	"crmscan/internal/scan/htmldoc"
	"crmscan/pkg/email"
)

const (
	emailSnapshotKey  = "email_cache"
	domainSnapshotKey = "domain_cache"
)

// Engine classifies addresses against the CRM and annotates documents.
// Construct one per context; all its operations are safe for concurrent use.
type Engine struct {
	cfg       config.Engine
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     cache.Store
	resolver  *classify.Resolver
	emails    *cache.Resolver[classify.Status]
	domains   *cache.Resolver[bool]
	persister *cache.Persister
	proc      *htmldoc.Processor
	visible   htmldoc.VisibleFunc

	scanning atomic.Bool
	enabled  atomic.Bool
	hidden   atomic.Bool
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithVisibility forwards a visibility predicate to the document processor.
// The predicate is honored only while ViewportOnly is set.
func WithVisibility(f htmldoc.VisibleFunc) Option {
	return func(e *Engine) { e.visible = f }
}

// New constructs an Engine and loads both cache snapshots from store.
func New(ctx context.Context, client *crm.Client, store cache.Store, cfg config.Engine, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.enabled.Store(true)

	e.resolver = classify.New(client, classify.Config{
		CheckLeads:         cfg.CheckLeads,
		DeepOrgDetailLimit: cfg.DeepOrgDetailLimit,
		Throttle:           cfg.Throttle,
	}, e.logger)

	e.persister = cache.NewPersister(store, cfg.PersistDelay, e.logger)

	e.domains = cache.NewResolver(domainSnapshotKey, e.resolver.KnownDomain,
		cache.WithDirty[bool](e.persister.MarkDirty),
		cache.WithResolverLogger[bool](e.logger),
		cache.WithCounters[bool](e.counter("domain", true), e.counter("domain", false)),
		// the domain tier has no error state: a failed check is false
		cache.WithOnError[bool](func(error) (bool, bool) { return false, true }),
	)
	e.resolver.DomainCheck = e.domains.Resolve

	e.emails = cache.NewResolver(emailSnapshotKey, e.resolver.Resolve,
		cache.WithDirty[classify.Status](e.persister.MarkDirty),
		cache.WithResolverLogger[classify.Status](e.logger),
		cache.WithCounters[classify.Status](e.counter("email", true), e.counter("email", false)),
		cache.WithOnError[classify.Status](func(error) (classify.Status, bool) {
			return classify.StatusError, true
		}),
	)

	e.persister.Register(flusherFunc(e.emails.Flush))
	e.persister.Register(flusherFunc(e.domains.Flush))

	e.emails.Load(ctx, store)
	e.domains.Load(ctx, store)

	procOpts := []htmldoc.Option{htmldoc.WithLogger(e.logger)}
	// the visibility predicate only applies in viewport-only mode
	if e.visible != nil && cfg.ViewportOnly {
		procOpts = append(procOpts, htmldoc.WithVisibility(e.visible))
	}
	if e.metrics != nil {
		procOpts = append(procOpts, htmldoc.WithLinkCounter(e.metrics.EmailsLinked.Inc))
	}
	e.proc = htmldoc.New(e.ClassifyEmail, cfg.Throttle, procOpts...)

	return e
}

// ClassifyEmail resolves one address through the cache. On total lookup
// failure the error status is cached and returned alongside the error.
func (e *Engine) ClassifyEmail(ctx context.Context, address string) (classify.Status, error) {
	st, err := e.emails.Resolve(ctx, email.Normalize(address))
	if e.metrics != nil {
		e.metrics.Lookups.WithLabelValues(string(st)).Inc()
	}
	return st, err
}

// Scan annotates one parsed document. It reports false without doing any
// work when the engine is paused or another scan is still in progress; the
// caller is expected to retry on a later trigger.
func (e *Engine) Scan(ctx context.Context, doc *goquery.Document) (bool, error) {
	if !e.ShouldRun() {
		e.skipped()
		return false, nil
	}
	if !e.scanning.CompareAndSwap(false, true) {
		e.skipped()
		return false, nil
	}
	defer e.scanning.Store(false)

	if e.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ScanTimeout)
		defer cancel()
	}
	err := e.proc.Scan(ctx, doc)
	if err == nil && e.metrics != nil {
		e.metrics.Scans.Inc()
	}
	return true, err
}

// ShouldRun reports whether scans may start right now.
func (e *Engine) ShouldRun() bool {
	if !e.enabled.Load() {
		return false
	}
	return !e.cfg.ActiveTabOnly || !e.hidden.Load()
}

// SetEnabled toggles the engine on or off. Disabling only prevents new
// scans; it does not abort outstanding lookups.
func (e *Engine) SetEnabled(v bool) { e.enabled.Store(v) }

// Enabled reports the toggle state.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// SetHidden records whether the host currently shows the page. Hidden pages
// pause scanning when ActiveTabOnly is set.
func (e *Engine) SetHidden(v bool) { e.hidden.Store(v) }

// ClearCaches drops both tiers and persists the empty snapshots immediately.
func (e *Engine) ClearCaches(ctx context.Context) error {
	e.emails.Clear()
	e.domains.Clear()
	return e.persister.FlushNow(ctx)
}

// Flush forces a persistence flush, for shutdown paths.
func (e *Engine) Flush(ctx context.Context) error {
	return e.persister.FlushNow(ctx)
}

func (e *Engine) skipped() {
	if e.metrics != nil {
		e.metrics.ScansSkipped.Inc()
	}
}

func (e *Engine) counter(tier string, hit bool) func() {
	return func() {
		if e.metrics == nil {
			return
		}
		if hit {
			e.metrics.CacheHits.WithLabelValues(tier).Inc()
		} else {
			e.metrics.CacheMisses.WithLabelValues(tier).Inc()
		}
	}
}

type flusherFunc func(ctx context.Context, store cache.Store) error

func (f flusherFunc) Flush(ctx context.Context, store cache.Store) error {
	return f(ctx, store)
}
