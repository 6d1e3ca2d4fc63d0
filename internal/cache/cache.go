// Package cache memoizes per-key classification results and collapses
// concurrent lookups for the same key into a single execution. Snapshots of
// each cache are persisted as a whole through a debounced Persister.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by stores for missing snapshot keys.
var ErrNotFound = errors.New("not found")

// Store persists cache snapshots as opaque byte strings. Writes replace the
// whole snapshot for a key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc[V any] func(ctx context.Context, key string) (V, error)

// Resolver memoizes ComputeFunc results per key. Entries never expire;
// invalidation is only via Clear. A failed computation still clears the
// in-flight entry, and may cache a fallback value chosen by the onError
// hook so the key is not silently re-fetched.
type Resolver[V any] struct {
	storeKey string
	compute  ComputeFunc[V]
	onError  func(error) (V, bool)
	dirty    func()
	logger   *slog.Logger
	hit      func()
	miss     func()

	mu     sync.RWMutex
	values map[string]V
	group  singleflight.Group
}

type ResolverOption[V any] func(*Resolver[V])

// WithOnError sets the fallback cached when a computation fails. Without it,
// failures are returned but nothing is cached.
func WithOnError[V any](f func(error) (V, bool)) ResolverOption[V] {
	return func(r *Resolver[V]) { r.onError = f }
}

// WithDirty registers the callback invoked after every cache mutation,
// normally a Persister's MarkDirty.
func WithDirty[V any](f func()) ResolverOption[V] {
	return func(r *Resolver[V]) { r.dirty = f }
}

func WithResolverLogger[V any](logger *slog.Logger) ResolverOption[V] {
	return func(r *Resolver[V]) { r.logger = logger }
}

// WithCounters registers cache hit/miss callbacks.
func WithCounters[V any](hit, miss func()) ResolverOption[V] {
	return func(r *Resolver[V]) { r.hit, r.miss = hit, miss }
}

// NewResolver constructs a Resolver whose snapshot persists under storeKey.
func NewResolver[V any](storeKey string, compute ComputeFunc[V], opts ...ResolverOption[V]) *Resolver[V] {
	r := &Resolver[V]{
		storeKey: storeKey,
		compute:  compute,
		values:   make(map[string]V),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve returns the cached value for key, joins an in-flight computation
// for it, or starts one. All concurrent callers of the same key observe one
// execution and one result.
func (r *Resolver[V]) Resolve(ctx context.Context, key string) (V, error) {
	r.mu.RLock()
	v, ok := r.values[key]
	r.mu.RUnlock()
	if ok {
		if r.hit != nil {
			r.hit()
		}
		return v, nil
	}
	if r.miss != nil {
		r.miss()
	}

	res, err, _ := r.group.Do(key, func() (any, error) {
		// a previous flight may have cached the key between our read and
		// joining the group
		r.mu.RLock()
		v, ok := r.values[key]
		r.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, cerr := r.compute(ctx, key)
		if cerr != nil {
			if r.onError != nil {
				if fallback, cache := r.onError(cerr); cache {
					r.put(key, fallback)
					return fallback, cerr
				}
			}
			return nil, cerr
		}
		r.put(key, v)
		return v, nil
	})

	if res == nil {
		var zero V
		return zero, err
	}
	return res.(V), err
}

// Peek returns the cached value without triggering a computation.
func (r *Resolver[V]) Peek(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Len reports the number of cached entries.
func (r *Resolver[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// Clear drops every cached entry.
func (r *Resolver[V]) Clear() {
	r.mu.Lock()
	r.values = make(map[string]V)
	r.mu.Unlock()
	r.markDirty()
}

func (r *Resolver[V]) put(key string, v V) {
	r.mu.Lock()
	r.values[key] = v
	r.mu.Unlock()
	r.markDirty()
}

func (r *Resolver[V]) markDirty() {
	if r.dirty != nil {
		r.dirty()
	}
}

// Load replaces the cache contents with the snapshot persisted in store. A
// missing or corrupt snapshot leaves the cache empty rather than failing.
func (r *Resolver[V]) Load(ctx context.Context, store Store) {
	raw, err := store.Get(ctx, r.storeKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("cache snapshot read failed", "key", r.storeKey, "error", err)
		}
		return
	}
	values := make(map[string]V)
	if err := json.Unmarshal(raw, &values); err != nil {
		r.logger.Warn("cache snapshot corrupt, starting empty", "key", r.storeKey, "error", err)
		return
	}
	r.mu.Lock()
	r.values = values
	r.mu.Unlock()
}

// Flush writes the full snapshot to store, replacing the previous one.
func (r *Resolver[V]) Flush(ctx context.Context, store Store) error {
	r.mu.RLock()
	raw, err := json.Marshal(r.values)
	r.mu.RUnlock()
	if err != nil {
		return err
	}
	return store.Set(ctx, r.storeKey, raw)
}
