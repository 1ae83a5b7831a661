package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mchmarny/docshell/pkg/metric"
)

// DefaultLoadTimeout bounds a single fetch from the source.
const DefaultLoadTimeout = 30 * time.Second

// Loader resolves refs to content, loading each ref on demand and caching successful loads
// for the lifetime of the process. At most one load per ref is in flight; concurrent
// resolves of the same ref share it. Failed loads are not cached.
type Loader struct {
	source  Source
	cache   *gocache.Cache
	group   singleflight.Group
	timeout time.Duration

	loads    metric.IncrementalCounter
	lookups  metric.IncrementalCounter
	duration metric.DurationObserver
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

type loaderConfig struct {
	timeout time.Duration
	reg     prometheus.Registerer
}

// WithLoadTimeout bounds every fetch. Loads run detached from the callers that started them,
// so this is the only limit on a slow source.
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(c *loaderConfig) { c.timeout = d }
}

// WithRegisterer registers the loader metrics on reg.
func WithRegisterer(reg prometheus.Registerer) LoaderOption {
	return func(c *loaderConfig) { c.reg = reg }
}

// NewLoader returns a loader fetching from src.
func NewLoader(src Source, opts ...LoaderOption) *Loader {
	cfg := &loaderConfig{timeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultLoadTimeout
	}
	reg := metric.Registerer(cfg.reg)

	return &Loader{
		source: src,
		// no expiration and no janitor: entries live as long as the process
		cache:   gocache.New(gocache.NoExpiration, 0),
		timeout: cfg.timeout,
		loads: metric.NewCounterWithRegistry(reg, "content_loads_total",
			"Content module loads by result.", "result"),
		lookups: metric.NewCounterWithRegistry(reg, "content_cache_lookups_total",
			"Content cache lookups by result.", "result"),
		duration: metric.NewHistogramWithRegistry(reg, "content_load_seconds",
			"Duration of content module loads.", "result"),
	}
}

// Cached returns the cached content for ref without loading.
func (l *Loader) Cached(ref Ref) (*Content, bool) {
	v, ok := l.cache.Get(string(ref))
	if !ok {
		return nil, false
	}
	return v.(*Content), true
}

// Len returns the number of cached refs.
func (l *Loader) Len() int {
	return l.cache.ItemCount()
}

// Resolve returns a completed future when ref is cached, otherwise a future attached to the
// single in-flight load of ref, starting it if needed.
func (l *Loader) Resolve(ref Ref) *Future {
	if c, ok := l.Cached(ref); ok {
		l.lookups.Increment("hit")
		return completed(ref, c)
	}
	l.lookups.Increment("miss")

	f := newFuture(ref)
	ch := l.group.DoChan(string(ref), func() (any, error) {
		return l.fetch(ref)
	})

	go func() {
		res := <-ch
		c, _ := res.Val.(*Content)
		f.complete(c, res.Err)
	}()

	return f
}

// Load resolves ref and waits for the result.
func (l *Loader) Load(ctx context.Context, ref Ref) (*Content, error) {
	return l.Resolve(ref).Wait(ctx)
}

// Preload loads every ref concurrently and returns the first failure.
func (l *Loader) Preload(ctx context.Context, refs ...Ref) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			_, err := l.Load(gCtx, ref)
			return err
		})
	}
	return g.Wait()
}

func (l *Loader) fetch(ref Ref) (c *Content, err error) {
	// a load that finished between the cache miss and joining the group already cached it
	if cached, ok := l.Cached(ref); ok {
		return cached, nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("source panic: %v", r)
		}

		if err != nil {
			err = &LoadError{Ref: ref, Err: err}
			l.loads.Increment("error")
			l.duration.Observe(time.Since(start), "error")
			slog.Warn("content load failed", "ref", ref, "error", err)
			return
		}

		l.loads.Increment("ok")
		l.duration.Observe(time.Since(start), "ok")
		slog.Debug("content loaded", "ref", ref, "duration", time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	c, err = l.source.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: source returned no content", ErrNotFound)
	}
	if c.Ref == "" {
		c.Ref = ref
	}
	if c.LoadedAt.IsZero() {
		c.LoadedAt = time.Now()
	}

	// Add never overwrites; the first stored value stays authoritative.
	if addErr := l.cache.Add(string(ref), c, gocache.NoExpiration); addErr != nil {
		if existing, ok := l.Cached(ref); ok {
			c = existing
		}
	}

	return c, nil
}
