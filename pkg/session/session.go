package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mchmarny/docshell/pkg/fallback"
	"github.com/mchmarny/docshell/pkg/menu"
	"github.com/mchmarny/docshell/pkg/metric"
	"github.com/mchmarny/docshell/pkg/route"
	"github.com/mchmarny/docshell/pkg/router"
)

const (
	// TypeNavigate asks the session router to change location.
	TypeNavigate = "navigate"

	// TypeToggle flips a menu section open or closed.
	TypeToggle = "toggle"

	// TypeView carries a committed view to the client.
	TypeView = "view"

	// TypeError reports a rejected client message.
	TypeError = "error"

	writeWait      = 5 * time.Second
	maxMessageSize = 4096
)

// Request is a client message.
type Request struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Key  string `json:"key,omitempty"`
}

// Response is a server message. View fields are set for TypeView, Error for TypeError.
type Response struct {
	Type      string `json:"type"`
	Session   string `json:"session"`
	Seq       uint64 `json:"seq,omitempty"`
	Requested string `json:"requested,omitempty"`
	Path      string `json:"path,omitempty"`
	State     string `json:"state,omitempty"`
	Title     string `json:"title,omitempty"`
	HTML      string `json:"html"`
	Menu      string `json:"menu,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Hub accepts live sessions. Every session drives its own router over the shared route table
// and content resolver, so content loaded for one session is cached for all.
type Hub struct {
	menu     *menu.Menu
	table    *route.Table
	resolver router.Resolver
	boundary fallback.Boundary
	reg      prometheus.Registerer
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	opened   metric.IncrementalCounter
	messages metric.IncrementalCounter
}

// Option configures a Hub.
type Option func(*Hub)

// WithBoundary sets the fallback boundary that fills the content region.
func WithBoundary(b fallback.Boundary) Option {
	return func(h *Hub) { h.boundary = b }
}

// WithRegisterer registers session and per-session router metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Hub) { h.reg = reg }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithCheckOrigin sets the websocket origin check. By default same-origin requests and
// requests without an Origin header are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub returns a hub serving sessions over m and table, loading content through resolver.
func NewHub(m *menu.Menu, table *route.Table, resolver router.Resolver, opts ...Option) *Hub {
	h := &Hub{
		menu:     m,
		table:    table,
		resolver: resolver,
		boundary: fallback.Default(),
		log:      slog.Default(),
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.reg = metric.Registerer(h.reg)

	h.opened = metric.NewCounterWithRegistry(h.reg, "sessions_total", "Live sessions opened.")
	h.messages = metric.NewCounterWithRegistry(h.reg, "session_messages_total",
		"Client session messages by type.", "type")

	return h
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close ends every open session and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}
}

// ServeHTTP upgrades the request and runs the session until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := &Session{
		ID:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		expansion: menu.NewExpansion(),
	}
	s.log = h.log.With("session", s.ID)
	s.router = router.New(h.table, h.resolver,
		router.WithRegisterer(h.reg),
		router.WithLogger(s.log),
	)

	if !h.add(s) {
		s.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer h.remove(s)

	h.opened.Increment()
	s.log.Info("session opened", "remote", r.RemoteAddr)

	s.run()
}

func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.ID] = s
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
}

// Session is one live client: a router, the client's menu expansion state and the
// connection views are pushed over.
type Session struct {
	ID string

	hub       *Hub
	conn      *websocket.Conn
	router    *router.Router
	expansion *menu.Expansion
	log       *slog.Logger

	writeMu sync.Mutex
	closed  bool
}

func (s *Session) run() {
	defer s.close(websocket.CloseNormalClosure, "")
	unsubscribe := s.router.Subscribe(func(router.View) { s.push() })
	defer unsubscribe()

	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("session read failed", "error", err)
			}
			s.log.Info("session closed")
			return
		}

		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError("invalid message format")
			continue
		}

		switch req.Type {
		case TypeNavigate, TypeToggle:
			s.hub.messages.Increment(req.Type)
		default:
			s.hub.messages.Increment("unknown")
		}

		switch req.Type {
		case TypeNavigate:
			// the subscriber pushes the resulting view
			s.router.Navigate(req.Path)
		case TypeToggle:
			if req.Key == "" {
				s.sendError("key is required")
				continue
			}
			s.expansion.Toggle(req.Key)
			s.push()
		default:
			s.sendError("unknown message type: " + req.Type)
		}
	}
}

// push writes the router's current view. Writes are serialized and always read the latest
// view, so the client never receives an older view after a newer one.
func (s *Session) push() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return
	}

	v := s.router.Current()
	if v.State == router.StateIdle {
		return
	}

	resp, err := s.render(v)
	if err != nil {
		s.log.Error("rendering view failed", "seq", v.Seq, "error", err)
		resp = Response{Type: TypeError, Session: s.ID, Error: "rendering failed"}
	}

	s.writeLocked(resp)
}

func (s *Session) render(v router.View) (Response, error) {
	current := v.Path
	if v.State == router.StateUnmatched {
		current = ""
	}
	nav, err := menu.HTML(s.hub.menu.Render(current, s.expansion))
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Type:      TypeView,
		Session:   s.ID,
		Seq:       v.Seq,
		Requested: v.Requested,
		Path:      v.Path,
		State:     string(v.State),
		Title:     s.hub.menu.Title,
		HTML:      string(s.hub.boundary.Render(v)),
		Menu:      string(nav),
	}
	if v.Content != nil && v.Content.Title != "" {
		resp.Title = v.Content.Title + " | " + s.hub.menu.Title
	}
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}
	return resp, nil
}

func (s *Session) sendError(msg string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writeLocked(Response{Type: TypeError, Session: s.ID, Error: msg})
}

func (s *Session) writeLocked(resp Response) {
	if s.closed {
		return
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Debug("setting write deadline failed", "error", err)
	}
	if err := s.conn.WriteJSON(resp); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			s.log.Warn("session write failed", "error", err)
		}
	}
}

func (s *Session) close(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = s.conn.Close()
}
