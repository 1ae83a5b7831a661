package site

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/fallback"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/route"
	"github.com/mchmarny/docshell/pkg/router"
	"github.com/mchmarny/docshell/pkg/session"
)

//go:embed web/shell.html
var shellHTML string

//go:embed web/static
var staticFS embed.FS

var shell = template.Must(template.New("shell").Parse(shellHTML))

// DefaultFallbackDelay is how long the resolve API waits for a pending load before
// reporting it as loading.
const DefaultFallbackDelay = 150 * time.Millisecond

// Site is the HTTP surface of the documentation shell: the shell document, its static
// assets, the live session endpoint and a read-only JSON API.
type Site struct {
	menu     *menu.Menu
	table    *route.Table
	resolver router.Resolver
	boundary fallback.Boundary
	hub      *session.Hub
	log      *slog.Logger

	version       string
	fallbackDelay time.Duration
	corsOrigins   []string
	shell         []byte
}

// Option configures a Site.
type Option func(*options)

type options struct {
	boundary      fallback.Boundary
	fallbackDelay time.Duration
	corsOrigins   []string
	reg           prometheus.Registerer
	log           *slog.Logger
	version       string
}

// WithBoundary sets the boundary used for sessions and the resolve API.
func WithBoundary(b fallback.Boundary) Option {
	return func(o *options) { o.boundary = b }
}

// WithFallbackDelay sets how long the resolve API waits for a pending load.
func WithFallbackDelay(d time.Duration) Option {
	return func(o *options) { o.fallbackDelay = d }
}

// WithCORSOrigins sets the origins allowed to call the JSON API. Defaults to any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) { o.corsOrigins = origins }
}

// WithRegisterer registers session and router metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithVersion shows v in the shell header.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// New assembles the site. Navigation leaves the route table does not match are logged as
// warnings; selecting them shows the empty state.
func New(m *menu.Menu, table *route.Table, resolver router.Resolver, opts ...Option) (*Site, error) {
	o := &options{
		boundary:      fallback.Default(),
		fallbackDelay: DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if len(o.corsOrigins) == 0 {
		o.corsOrigins = []string{"*"}
	}

	s := &Site{
		menu:          m,
		table:         table,
		resolver:      resolver,
		boundary:      o.boundary,
		log:           o.log,
		version:       o.version,
		fallbackDelay: o.fallbackDelay,
		corsOrigins:   o.corsOrigins,
		hub: session.NewHub(m, table, resolver,
			session.WithBoundary(o.boundary),
			session.WithRegisterer(o.reg),
			session.WithLogger(o.log),
		),
	}

	var buf bytes.Buffer
	if err := shell.Execute(&buf, map[string]string{
		"Title":       m.Title,
		"Description": m.Description,
		"Version":     o.version,
	}); err != nil {
		return nil, fmt.Errorf("rendering shell: %w", err)
	}
	s.shell = buf.Bytes()

	for _, leaf := range s.UnroutedLeaves() {
		s.log.Warn("navigation entry has no matching route", "name", leaf.Name, "route", leaf.Route)
	}

	return s, nil
}

// UnroutedLeaves returns the navigation leaves whose route resolves to no content.
func (s *Site) UnroutedLeaves() []menu.Entry {
	var out []menu.Entry
	for _, leaf := range s.menu.Leaves() {
		if res := s.table.Resolve(leaf.Route); !res.Matched {
			out = append(out, leaf)
		}
	}
	return out
}

// Handler returns the site routes: the JSON API under /api, the live session at /ws,
// embedded assets under /static and the shell document for every other path.
func (s *Site) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/nav", s.menu.Handler().ServeHTTP)
		r.Get("/routes", s.handleRoutes)
		r.Get("/resolve", s.handleResolve)
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		})
	})

	r.Handle("/ws", s.hub)

	static, _ := fs.Sub(staticFS, "web/static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/*", s.handleShell)

	return r
}

// Ready reports whether the content behind the root location can be loaded.
func (s *Site) Ready(ctx context.Context) error {
	res := s.table.Resolve("/")
	if !res.Matched {
		return fmt.Errorf("no route renders %s", res.Path)
	}
	if _, err := s.resolver.Resolve(content.Ref(res.Route.Ref)).Wait(ctx); err != nil {
		return fmt.Errorf("loading %s: %w", res.Path, err)
	}
	return nil
}

// Sessions returns the number of open live sessions.
func (s *Site) Sessions() int {
	return s.hub.Len()
}

// Close ends all live sessions.
func (s *Site) Close() {
	s.hub.Close()
}

func (s *Site) handleShell(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.shell)
}
