package site

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/fallback"
	"github.com/mchmarny/docshell/pkg/route"
	"github.com/mchmarny/docshell/pkg/router"
)

// ResolveResponse describes what a location shows.
type ResolveResponse struct {
	Requested  string       `json:"requested"`
	Path       string       `json:"path"`
	Redirected bool         `json:"redirected"`
	Matched    bool         `json:"matched"`
	Route      *route.Route `json:"route,omitempty"`
	State      router.State `json:"state"`
	Title      string       `json:"title,omitempty"`
	HTML       string       `json:"html"`
	Error      string       `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Site) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.table.Routes())
}

// handleResolve resolves ?path= and waits briefly for its content. Unmatched locations are
// a normal empty-state answer, not an error.
func (s *Site) handleResolve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path is required"})
		return
	}

	res := s.table.Resolve(p)
	v := router.View{
		Requested:  res.Requested,
		Path:       res.Path,
		Redirected: res.Redirected,
		State:      router.StateUnmatched,
	}

	if res.Matched {
		v.Route = res.Route
		out := fallback.Await(r.Context(), s.resolver.Resolve(content.Ref(res.Route.Ref)), s.fallbackDelay)
		v.State, v.Content, v.Err = out.State, out.Content, out.Err
	}

	resp := ResolveResponse{
		Requested:  v.Requested,
		Path:       v.Path,
		Redirected: v.Redirected,
		Matched:    res.Matched,
		State:      v.State,
		HTML:       string(s.boundary.Render(v)),
	}
	if res.Matched {
		rt := res.Route
		resp.Route = &rt
	}
	if v.Content != nil {
		resp.Title = v.Content.Title
	}
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}

	s.log.Debug("resolved", "requested", resp.Requested, "path", resp.Path, "state", resp.State)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
