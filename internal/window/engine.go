package window

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultEnumerationTimeout bounds a single source invocation
const DefaultEnumerationTimeout = 10 * time.Second

// Options configures an Engine
type Options struct {
	// Primary is the source whose results feed the cache. May be nil, in
	// which case only the fallbacks are used.
	Primary Source

	// Fallbacks are tried in order when the primary source fails. Their
	// results are returned as-is and never touch the cache.
	Fallbacks []Source

	CacheTTL           time.Duration
	EnumerationTimeout time.Duration
	Metrics            *metrics.Metrics
}

// Engine merges a live window enumeration with recently seen windows
type Engine struct {
	primary   Source
	fallbacks []Source
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics

	flight singleflight.Group

	mu        sync.Mutex
	cache     *cache
	lastFresh map[Key]struct{}
}

// NewEngine creates an enumeration engine
func NewEngine(opts Options) *Engine {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	timeout := opts.EnumerationTimeout
	if timeout <= 0 {
		timeout = DefaultEnumerationTimeout
	}

	return &Engine{
		primary:   opts.Primary,
		fallbacks: opts.Fallbacks,
		ttl:       ttl,
		timeout:   timeout,
		now:       time.Now,
		metrics:   opts.Metrics,
		cache:     newCache(),
		lastFresh: make(map[Key]struct{}),
	}
}

// ListWindows returns the currently visible windows followed by windows seen
// within the cache TTL that the primary source no longer reports. It never
// fails; when every source fails the result is empty.
//
// Concurrent calls share one enumeration pass.
func (e *Engine) ListWindows(ctx context.Context) []Descriptor {
	ch := e.flight.DoChan("list", func() (interface{}, error) {
		// The pass outlives a caller that gives up; later callers may be
		// waiting on it.
		return e.enumerate(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		shared := res.Val.([]Descriptor)
		out := make([]Descriptor, len(shared))
		copy(out, shared)
		return out
	case <-ctx.Done():
		return []Descriptor{}
	}
}

// Forget removes a window from the cache. It reports whether an entry
// existed.
func (e *Engine) Forget(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.cache.remove(k)
	if removed {
		logger.WithComponent("window-engine").Debug().
			Str("app", k.App).
			Str("title", k.Title).
			Msg("Forgot cached window")
		e.metrics.SetWindowCacheEntries(e.cache.len())
	}
	return removed
}

// CacheOnly reports whether k is known only from the cache, i.e. it was not
// reported by the most recent enumeration, whichever source answered it.
func (e *Engine) CacheOnly(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cache.has(k) {
		return false
	}
	_, fresh := e.lastFresh[k]
	return !fresh
}

// CacheSize returns the number of cached windows
func (e *Engine) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.len()
}

func (e *Engine) enumerate(ctx context.Context) []Descriptor {
	log := logger.WithComponent("window-engine")

	if e.primary != nil {
		raw, err := e.runSource(ctx, e.primary)
		if err == nil {
			return e.reconcile(raw)
		}
		log.Warn().Err(err).Str("source", e.primary.Name()).Msg("Primary window source failed, trying fallbacks")
	}

	for _, src := range e.fallbacks {
		raw, err := e.runSource(ctx, src)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("Fallback window source failed")
			continue
		}
		windows, seen := toDescriptors(raw)
		e.markFresh(seen)
		log.Debug().Str("source", src.Name()).Int("count", len(windows)).Msg("Using fallback window list")
		return windows
	}

	e.markFresh(map[Key]struct{}{})
	log.Error().Msg("All window sources failed")
	return []Descriptor{}
}

// markFresh records the keys the latest pass reported. Cached windows outside
// this set are cache-only.
func (e *Engine) markFresh(seen map[Key]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastFresh = seen
}

func (e *Engine) runSource(ctx context.Context, src Source) ([]RawWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := src.ListWindows(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.metrics.WindowEnumeration(src.Name(), outcome)

	logger.WithComponent("window-source").Debug().
		Str("source", src.Name()).
		Int("count", len(raw)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Window source finished")

	return raw, err
}

// reconcile folds a successful primary pass into the cache and appends the
// cached windows the pass did not see.
func (e *Engine) reconcile(raw []RawWindow) []Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	windows, seen := toDescriptors(raw)

	for _, d := range windows {
		e.cache.upsert(d, now)
	}
	purged := e.cache.purge(now, e.ttl)

	fresh := len(windows)
	for _, entry := range e.cache.missing(seen) {
		d := entry.descriptor
		d.SyntheticID = len(windows)
		windows = append(windows, d)
	}

	e.lastFresh = seen
	e.metrics.SetWindowCacheEntries(e.cache.len())

	logger.WithComponent("window-engine").Debug().
		Int("fresh", fresh).
		Int("cached", len(windows)-fresh).
		Int("purged", purged).
		Msg("Window list reconciled")

	return windows
}

// toDescriptors drops windows with an empty app or title, keeps the first of
// any duplicate keys and numbers the rest from 0.
func toDescriptors(raw []RawWindow) ([]Descriptor, map[Key]struct{}) {
	windows := make([]Descriptor, 0, len(raw))
	seen := make(map[Key]struct{}, len(raw))

	for _, w := range raw {
		if w.App == "" || w.Title == "" {
			continue
		}
		k := Key{App: w.App, Title: w.Title}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		windows = append(windows, Descriptor{
			OwnerAppName: w.App,
			Title:        w.Title,
			SyntheticID:  len(windows),
		})
	}
	return windows, seen
}
