package site

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/fallback"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
	"github.com/mchmarny/docshell/pkg/router"
	"github.com/mchmarny/docshell/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testMenu() *menu.Menu {
	m := menu.New("Design System",
		menu.Entry{Name: "Overview", Nested: []menu.Entry{
			{Name: "Introduction", Route: "/overview/introduction"},
		}},
		menu.Entry{Name: "Design", Nested: []menu.Entry{
			{Name: "Colors", Route: "/design/colors"},
			{Name: "Typography", Route: "/design/typography"},
		}},
		menu.Entry{Name: "Components", Nested: []menu.Entry{
			{Name: "Modals", Route: "/design/modals"},
		}},
	)
	m.Description = "Colors & components"
	return m
}

func testTable() *route.Table {
	return route.MustNew(
		route.Redirect("/", "/overview/introduction"),
		route.Leaf("/overview/introduction", "introduction"),
		route.Redirect("/design", "/design/colors"),
		route.Leaf("/design/colors", "colors"),
		route.Leaf("/design/typography", "typography"),
	)
}

type testSource struct {
	slow chan struct{}
}

func (s *testSource) Fetch(ctx context.Context, ref content.Ref) (*content.Content, error) {
	switch ref {
	case "typography":
		select {
		case <-s.slow:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case "colors":
		return nil, errors.New("chunk load error")
	}
	return &content.Content{Title: "Introduction", Body: template.HTML("<h1>" + string(ref) + "</h1>")}, nil
}

func newSite(t *testing.T, opts ...Option) *Site {
	t.Helper()
	src := &testSource{slow: make(chan struct{})}
	t.Cleanup(func() { close(src.slow) })

	s, err := New(testMenu(), testTable(), content.NewLoader(src), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func resolve(t *testing.T, h http.Handler, p string) ResolveResponse {
	t.Helper()
	rec := get(t, h, "/api/resolve?path="+p)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestShellServedForEveryPath(t *testing.T) {
	s := newSite(t, WithVersion("v1.2.3"))
	h := s.Handler()

	var first string
	for _, p := range []string{"/", "/design/colors", "/no/such/page"} {
		rec := get(t, h, p)
		require.Equal(t, http.StatusOK, rec.Code, p)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		if first == "" {
			first = rec.Body.String()
		}
		assert.Equal(t, first, rec.Body.String(), "shell must not depend on the path")
	}

	assert.Contains(t, first, "<title>Design System</title>")
	assert.Contains(t, first, "Colors &amp; components")
	assert.Contains(t, first, "v1.2.3")
	assert.Contains(t, first, `<main id="content"`)
	assert.NotContains(t, first, "<h1>", "content is never rendered into the shell")
}

func TestStaticAssets(t *testing.T) {
	s := newSite(t)
	h := s.Handler()

	rec := get(t, h, "/static/site.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/ws"`)

	rec = get(t, h, "/static/site.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestNavAndRoutesAPI(t *testing.T) {
	s := newSite(t)
	h := s.Handler()

	rec := get(t, h, "/api/nav")
	require.Equal(t, http.StatusOK, rec.Code)
	var m menu.Menu
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "Design System", m.Title)
	assert.Len(t, m.Entries, 3)

	rec = get(t, h, "/api/routes")
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []route.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	assert.Equal(t, testTable().Routes(), routes)

	rec = get(t, h, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestResolveAPI(t *testing.T) {
	s := newSite(t, WithFallbackDelay(20*time.Millisecond))
	h := s.Handler()

	t.Run("redirected and ready", func(t *testing.T) {
		resp := resolve(t, h, "/")
		assert.Equal(t, "/", resp.Requested)
		assert.Equal(t, "/overview/introduction", resp.Path)
		assert.True(t, resp.Redirected)
		assert.True(t, resp.Matched)
		assert.Equal(t, router.StateReady, resp.State)
		assert.Equal(t, "<h1>introduction</h1>", resp.HTML)
		require.NotNil(t, resp.Route)
		assert.Equal(t, "introduction", resp.Route.Ref)
	})

	t.Run("unmatched is an empty state", func(t *testing.T) {
		resp := resolve(t, h, "/design/modals")
		assert.False(t, resp.Matched)
		assert.Equal(t, router.StateUnmatched, resp.State)
		assert.Empty(t, resp.HTML)
		assert.Nil(t, resp.Route)
	})

	t.Run("slow load reports loading", func(t *testing.T) {
		resp := resolve(t, h, "/design/typography")
		assert.Equal(t, router.StateLoading, resp.State)
		assert.Equal(t, string(fallback.DefaultPlaceholder), resp.HTML)
	})

	t.Run("failed load", func(t *testing.T) {
		resp := resolve(t, h, "/design")
		assert.Equal(t, "/design/colors", resp.Path)
		assert.Equal(t, router.StateFailed, resp.State)
		assert.Contains(t, resp.Error, "chunk load error")
		assert.Equal(t, string(fallback.DefaultPlaceholder), resp.HTML)
	})

	t.Run("missing path", func(t *testing.T) {
		rec := get(t, h, "/api/resolve")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	s := newSite(t, WithCORSOrigins("https://docs.example.com"))
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/nav", nil)
	req.Header.Set("Origin", "https://docs.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://docs.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/nav", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnroutedLeaves(t *testing.T) {
	s := newSite(t)
	leaves := s.UnroutedLeaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "/design/modals", leaves[0].Route)
}

func TestReady(t *testing.T) {
	s := newSite(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Ready(ctx))

	src := content.SourceFunc(func(context.Context, content.Ref) (*content.Content, error) {
		return nil, errors.New("disk gone")
	})
	broken, err := New(testMenu(), testTable(), content.NewLoader(src))
	require.NoError(t, err)
	defer broken.Close()
	err = broken.Ready(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, content.ErrLoadFailure))
}

func TestLiveSession(t *testing.T) {
	s := newSite(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(session.Request{Type: session.TypeNavigate, Path: "/"}))
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var resp session.Response
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.State != string(router.StateReady) {
			continue
		}
		assert.Equal(t, "/overview/introduction", resp.Path)
		assert.Equal(t, "<h1>introduction</h1>", resp.HTML)
		break
	}
	require.Eventually(t, func() bool { return s.Sessions() == 1 }, time.Second, 10*time.Millisecond)
}
