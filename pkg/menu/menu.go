package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrInvalidEntry is returned by Validate for malformed navigation entries.
var ErrInvalidEntry = errors.New("invalid navigation entry")

// Menu represents the root navigation structure. It is built once at startup and never mutated.
type Menu struct {
	// Title is the site title shown above the menu
	Title string `json:"title"`

	// Description of the site
	Description string `json:"description,omitempty"`

	// Version of the site content
	Version string `json:"version,omitempty"`

	// Entries is the ordered list of top-level entries
	Entries []Entry `json:"entries,omitempty"`
}

// New returns a menu with the given title and entries.
func New(title string, entries ...Entry) *Menu {
	return &Menu{Title: title, Entries: entries}
}

// Validate walks the tree and rejects entries without a name, routes that are not absolute,
// and entries that neither own a route nor group children.
func (m *Menu) Validate() error {
	var errs []error
	m.Walk(func(e Entry, key string, _ int) {
		switch {
		case strings.TrimSpace(e.Name) == "":
			errs = append(errs, fmt.Errorf("%w: entry %q has no name", ErrInvalidEntry, key))
		case e.Route != "" && !strings.HasPrefix(e.Route, "/"):
			errs = append(errs, fmt.Errorf("%w: entry %q route %q must start with /", ErrInvalidEntry, key, e.Route))
		case !e.IsLeaf() && !e.IsSection():
			errs = append(errs, fmt.Errorf("%w: entry %q has neither a route nor nested entries", ErrInvalidEntry, key))
		}
	})
	return errors.Join(errs...)
}

// Walk visits every entry depth-first in declaration order.
func (m *Menu) Walk(fn func(e Entry, key string, depth int)) {
	walkEntries(m.Entries, "", 0, fn)
}

func walkEntries(entries []Entry, parent string, depth int, fn func(Entry, string, int)) {
	for i := range entries {
		key := childKey(parent, entries[i].Name)
		fn(entries[i], key, depth)
		walkEntries(entries[i].Nested, key, depth+1, fn)
	}
}

// Leaves returns every entry that owns a route, in declaration order.
func (m *Menu) Leaves() []Entry {
	var out []Entry
	m.Walk(func(e Entry, _ string, _ int) {
		if e.IsLeaf() {
			out = append(out, e)
		}
	})
	return out
}

// Find returns the first entry owning route.
func (m *Menu) Find(route string) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)
	m.Walk(func(e Entry, _ string, _ int) {
		if !ok && e.IsLeaf() && samePath(e.Route, route) {
			found, ok = e, true
		}
	})
	return found, ok
}

// Handler returns an HTTP handler that responds with the menu structure as JSON.
func (m *Menu) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("handling menu request",
			"method", r.Method,
			"url", r.URL.Path,
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(m); err != nil {
			slog.Error("failed to encode menu", "error", err)
			return
		}
	})
}
