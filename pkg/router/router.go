package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/metric"
	"github.com/mchmarny/docshell/pkg/route"
)

// State is the phase of the active view.
type State string

const (
	// StateIdle is the initial state before any navigation.
	StateIdle State = "idle"

	// StateLoading means the matched route's content is being loaded.
	StateLoading State = "loading"

	// StateReady means the content is available.
	StateReady State = "ready"

	// StateFailed means the content failed to load. Navigating to the route again retries.
	StateFailed State = "failed"

	// StateUnmatched is the empty state for a location no route matches.
	StateUnmatched State = "unmatched"
)

// Terminal reports whether the state persists until the next navigation.
func (s State) Terminal() bool {
	return s != StateLoading
}

// View is the router's single source of truth for what is currently shown.
type View struct {
	// Seq identifies the navigation that produced the view.
	Seq uint64

	// Requested is the normalized location asked for.
	Requested string

	// Path is the location after redirects; the address a client should display.
	Path string

	Redirected bool

	// Route is the matched content route. Zero when unmatched.
	Route route.Route

	State   State
	Content *content.Content
	Err     error
}

// Resolver starts or joins the load of a content ref. *content.Loader implements it.
type Resolver interface {
	Resolve(ref content.Ref) *content.Future
}

// Router maps locations to content views. Navigation is synchronous; only content loading
// completes asynchronously, and a load is committed only while its navigation is still the
// most recent one.
type Router struct {
	table    *route.Table
	resolver Resolver
	log      *slog.Logger

	mu      sync.Mutex
	seq     uint64
	version uint64
	view    View
	changed chan struct{}
	subs    map[int]func(View)
	nextSub int

	notifyMu  sync.Mutex
	delivered uint64

	navigations metric.IncrementalCounter
	stale       metric.IncrementalCounter
}

// Option configures a Router.
type Option func(*options)

type options struct {
	reg prometheus.Registerer
	log *slog.Logger
}

// WithRegisterer registers the router metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns an idle router over table loading content through resolver.
func New(table *route.Table, resolver Resolver, opts ...Option) *Router {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	reg := metric.Registerer(o.reg)

	return &Router{
		table:    table,
		resolver: resolver,
		log:      o.log,
		view:     View{State: StateIdle},
		changed:  make(chan struct{}),
		subs:     make(map[int]func(View)),
		navigations: metric.NewCounterWithRegistry(reg, "navigations_total",
			"Navigations by the state they entered.", "state"),
		stale: metric.NewCounterWithRegistry(reg, "stale_loads_total",
			"Content loads that completed after their navigation was superseded."),
	}
}

// Navigate makes p the current location and returns the resulting view. Cached content is
// ready immediately; otherwise the view is loading until the load completes, unless a later
// navigation supersedes it first.
func (r *Router) Navigate(p string) View {
	res := r.table.Resolve(p)

	var f *content.Future
	v := View{
		Requested:  res.Requested,
		Path:       res.Path,
		Redirected: res.Redirected,
	}
	if res.Matched {
		v.Route = res.Route
		f = r.resolver.Resolve(content.Ref(res.Route.Ref))
	}

	r.mu.Lock()
	r.seq++
	v.Seq = r.seq
	switch {
	case f == nil:
		v.State = StateUnmatched
	case f.Ready():
		v = settle(v, f)
	default:
		v.State = StateLoading
	}
	r.commitLocked(v)
	r.mu.Unlock()

	r.navigations.Increment(string(v.State))
	r.log.Debug("navigated",
		"seq", v.Seq,
		"requested", v.Requested,
		"path", v.Path,
		"state", v.State,
	)

	r.notify()

	if v.State == StateLoading {
		go r.await(v, f)
	}
	return v
}

// Retry navigates to the current location again, re-attempting a failed load.
func (r *Router) Retry() View {
	return r.Navigate(r.Current().Requested)
}

// Current returns the current view.
func (r *Router) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Wait blocks until the current view is terminal or ctx is done.
func (r *Router) Wait(ctx context.Context) (View, error) {
	for {
		r.mu.Lock()
		v, ch := r.view, r.changed
		r.mu.Unlock()

		if v.State.Terminal() {
			return v, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Subscribe registers fn to receive every committed view, in commit order. Views committed
// in quick succession may be coalesced to the latest. The returned function unsubscribes.
func (r *Router) Subscribe(fn func(View)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Router) await(v View, f *content.Future) {
	<-f.Done()

	r.mu.Lock()
	if r.seq != v.Seq {
		r.mu.Unlock()
		r.stale.Increment()
		r.log.Debug("dropping stale load", "seq", v.Seq, "path", v.Path, "ref", v.Route.Ref)
		return
	}
	v = settle(v, f)
	r.commitLocked(v)
	r.mu.Unlock()

	if v.State == StateFailed {
		r.log.Warn("content failed", "seq", v.Seq, "path", v.Path, "error", v.Err)
	}
	r.notify()
}

func settle(v View, f *content.Future) View {
	c, err := f.Result()
	if err != nil {
		v.State = StateFailed
		v.Err = err
		return v
	}
	v.State = StateReady
	v.Content = c
	return v
}

func (r *Router) commitLocked(v View) {
	r.view = v
	r.version++
	close(r.changed)
	r.changed = make(chan struct{})
}

// notify delivers the latest committed view to subscribers if it has not been delivered yet,
// so subscribers never observe an older view after a newer one.
func (r *Router) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	v, version := r.view, r.version
	subs := make([]func(View), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	if version <= r.delivered {
		return
	}
	r.delivered = version

	for _, fn := range subs {
		fn(v)
	}
}
