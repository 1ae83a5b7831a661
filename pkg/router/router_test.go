package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
)

// gates holds one release channel per ref; fetches block until their ref is released.
type gates struct {
	mu    sync.Mutex
	chans map[content.Ref]chan struct{}
	fail  map[content.Ref]bool
	calls atomic.Int32
}

func newGates() *gates {
	return &gates{chans: make(map[content.Ref]chan struct{}), fail: make(map[content.Ref]bool)}
}

func (g *gates) gate(ref content.Ref) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.chans[ref]
	if !ok {
		ch = make(chan struct{})
		g.chans[ref] = ch
	}
	return ch
}

func (g *gates) release(ref content.Ref) {
	close(g.gate(ref))
}

func (g *gates) setFail(ref content.Ref, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[ref] = fail
}

func (g *gates) Fetch(ctx context.Context, ref content.Ref) (*content.Content, error) {
	g.calls.Add(1)
	select {
	case <-g.gate(ref):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.mu.Lock()
	fail := g.fail[ref]
	g.mu.Unlock()
	if fail {
		return nil, errors.New("chunk load error")
	}
	return &content.Content{Title: "content of " + string(ref)}, nil
}

func siteTable() *route.Table {
	return route.MustNew(
		route.Redirect("/", "/overview/introduction"),
		route.Redirect("/overview", "/overview/introduction"),
		route.Leaf("/overview/introduction", "introduction"),
		route.Redirect("/design", "/design/colors"),
		route.Leaf("/design/colors", "colors"),
		route.Leaf("/design/typography", "typography"),
	)
}

func staleLoads(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() == "docshell_stale_loads_total" && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func waitView(t *testing.T, r *Router) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := r.Wait(ctx)
	require.NoError(t, err)
	return v
}

func TestInitialStateIsIdle(t *testing.T) {
	r := New(siteTable(), content.NewLoader(newGates()))
	v := r.Current()
	assert.Equal(t, StateIdle, v.State)
	assert.True(t, v.State.Terminal())
	assert.Equal(t, v, waitView(t, r))
}

func TestRootResolvesToLanding(t *testing.T) {
	g := newGates()
	g.release("introduction")
	r := New(siteTable(), content.NewLoader(g))

	v := r.Navigate("/")
	assert.Equal(t, "/", v.Requested)
	assert.Equal(t, "/overview/introduction", v.Path)
	assert.True(t, v.Redirected)

	v = waitView(t, r)
	require.Equal(t, StateReady, v.State)
	assert.Equal(t, "content of introduction", v.Content.Title)
}

func TestCachedContentIsReadyImmediately(t *testing.T) {
	g := newGates()
	g.release("colors")
	l := content.NewLoader(g)
	_, err := l.Load(context.Background(), "colors")
	require.NoError(t, err)

	r := New(siteTable(), l)
	var states []State
	unsub := r.Subscribe(func(v View) { states = append(states, v.State) })
	defer unsub()

	v := r.Navigate("/design")
	assert.Equal(t, StateReady, v.State, "no loading state for cached content")
	assert.Equal(t, []State{StateReady}, states)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	for _, order := range []string{"newer-first", "older-first"} {
		t.Run(order, func(t *testing.T) {
			g := newGates()
			reg := prometheus.NewRegistry()
			r := New(siteTable(), content.NewLoader(g), WithRegisterer(reg))

			a := r.Navigate("/overview/introduction")
			require.Equal(t, StateLoading, a.State)
			b := r.Navigate("/design/typography")
			require.Equal(t, StateLoading, b.State)
			assert.Greater(t, b.Seq, a.Seq)

			if order == "newer-first" {
				g.release("typography")
				v := waitView(t, r)
				require.Equal(t, StateReady, v.State)
				g.release("introduction")
			} else {
				g.release("introduction")
				g.release("typography")
			}

			// the abandoned load arrives and is dropped
			require.Eventually(t, func() bool {
				return staleLoads(t, reg) == 1
			}, time.Second, 5*time.Millisecond)

			v := waitView(t, r)
			require.Equal(t, StateReady, v.State)
			assert.Equal(t, b.Seq, v.Seq)
			assert.Equal(t, "/design/typography", v.Path)
			assert.Equal(t, "content of typography", v.Content.Title)
		})
	}
}

func TestSameRouteWhileLoadingAttachesToInFlightLoad(t *testing.T) {
	g := newGates()
	r := New(siteTable(), content.NewLoader(g))

	first := r.Navigate("/design/colors")
	second := r.Navigate("/design")
	require.Equal(t, StateLoading, first.State)
	require.Equal(t, StateLoading, second.State)

	g.release("colors")
	v := waitView(t, r)
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, second.Seq, v.Seq)
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestFailedLoadRetriesOnRevisit(t *testing.T) {
	g := newGates()
	g.release("typography")
	g.setFail("typography", true)
	r := New(siteTable(), content.NewLoader(g))

	r.Navigate("/design/typography")
	v := waitView(t, r)
	require.Equal(t, StateFailed, v.State)
	assert.True(t, errors.Is(v.Err, content.ErrLoadFailure))
	assert.Nil(t, v.Content)

	g.setFail("typography", false)
	r.Navigate("/design/typography")
	v = waitView(t, r)
	require.Equal(t, StateReady, v.State)
	assert.Equal(t, int32(2), g.calls.Load())
}

func TestRetry(t *testing.T) {
	g := newGates()
	g.release("colors")
	g.setFail("colors", true)
	r := New(siteTable(), content.NewLoader(g))

	r.Navigate("/design")
	require.Equal(t, StateFailed, waitView(t, r).State)

	g.setFail("colors", false)
	v := r.Retry()
	assert.Equal(t, "/design", v.Requested)
	assert.Equal(t, StateReady, waitView(t, r).State)
}

func TestUnmatchedIsEmptyState(t *testing.T) {
	r := New(siteTable(), content.NewLoader(newGates()))

	var v View
	assert.NotPanics(t, func() { v = r.Navigate("/nonexistent") })
	assert.Equal(t, StateUnmatched, v.State)
	assert.True(t, v.State.Terminal())
	assert.Nil(t, v.Content)
	assert.NoError(t, v.Err)
	assert.Equal(t, "/nonexistent", v.Path)
}

func TestSubscribeSeesLoadingThenReady(t *testing.T) {
	g := newGates()
	r := New(siteTable(), content.NewLoader(g))

	var mu sync.Mutex
	var got []State
	unsub := r.Subscribe(func(v View) {
		mu.Lock()
		got = append(got, v.State)
		mu.Unlock()
	})

	r.Navigate("/overview")
	g.release("introduction")
	waitView(t, r)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []State{StateLoading, StateReady}, got)
	mu.Unlock()

	unsub()
	r.Navigate("/nowhere")
	mu.Lock()
	assert.Len(t, got, 2, "no deliveries after unsubscribe")
	mu.Unlock()
}

func TestWaitHonorsContext(t *testing.T) {
	g := newGates()
	defer g.release("colors")
	r := New(siteTable(), content.NewLoader(g))

	r.Navigate("/design/colors")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	v, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateLoading, v.State)
}

func TestIntroductionScenario(t *testing.T) {
	nav := menu.New("Design System", menu.Entry{
		Name: "Overview",
		Nested: []menu.Entry{
			{Name: "Introduction", Route: "/overview/introduction"},
		},
	})
	tbl := route.MustNew(
		route.Redirect("/", "/overview/introduction"),
		route.Leaf("/overview/introduction", "IntroModule"),
	)
	l := content.NewLoader(content.SourceFunc(func(_ context.Context, ref content.Ref) (*content.Content, error) {
		return &content.Content{Title: "Introduction", Body: "<p>intro</p>"}, nil
	}))
	r := New(tbl, l)

	r.Navigate("/")
	v := waitView(t, r)
	require.Equal(t, StateReady, v.State)
	assert.Equal(t, content.Ref("IntroModule"), v.Content.Ref)

	items := nav.Render(v.Path, nil)
	cur, ok := menu.CurrentItem(items)
	require.True(t, ok)
	assert.Equal(t, "Introduction", cur.Name)
	assert.True(t, items[0].Expanded)
}
