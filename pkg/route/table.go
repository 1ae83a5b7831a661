package route

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every error reported while building a Table.
var ErrConfiguration = errors.New("route configuration error")

// ConfigError describes one malformed route table entry. It is fatal to startup.
type ConfigError struct {
	Index  int
	Route  Route
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("route table: %s", e.Reason)
	}
	return fmt.Sprintf("route %d (%s): %s", e.Index, e.Route, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) hold for every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Resolution is the outcome of resolving a location against the table.
type Resolution struct {
	// Requested is the normalized location that was asked for.
	Requested string `json:"requested"`

	// Path is the location after applying a redirect.
	Path string `json:"path"`

	// Route is the content-owning route that matched Path.
	Route Route `json:"route"`

	Redirected bool `json:"redirected,omitempty"`

	// Matched is false when no route matches; this is the empty state, not an error.
	Matched bool `json:"matched"`
}

// Table is an ordered, immutable route table matched first-match-wins.
type Table struct {
	routes []Route
}

// New validates routes and builds a table. Routes must be given in priority order:
// redirects and defaults first, specific routes in declared order, a catch-all last.
// Every redirect source is resolved once during validation so chains and cycles are
// reported here instead of at navigation time.
func New(routes ...Route) (*Table, error) {
	t := &Table{routes: make([]Route, 0, len(routes))}

	var errs []error
	fail := func(i int, r Route, format string, args ...any) {
		errs = append(errs, &ConfigError{Index: i, Route: r, Reason: fmt.Sprintf(format, args...)})
	}

	owners := make(map[string]int)
	catchAll := -1

	for i, r := range routes {
		switch r.Kind {
		case KindRedirect, KindLeaf:
			if r.Path == "" || r.Path[0] != '/' {
				fail(i, r, "path %q must be absolute", r.Path)
				continue
			}
			r.Path = Normalize(r.Path)
			if prev, ok := owners[r.Path]; ok {
				fail(i, r, "path %q is already owned by route %d", r.Path, prev)
				continue
			}
			owners[r.Path] = i

			if r.Kind == KindRedirect {
				if r.Target == "" {
					fail(i, r, "redirect has no target")
					continue
				}
				r.Target = Normalize(r.Target)
				r.Exact = true
			} else if r.Ref == "" {
				fail(i, r, "leaf has no content ref")
				continue
			}
		case KindCatchAll:
			if catchAll >= 0 {
				fail(i, r, "only one catch-all is allowed (first at route %d)", catchAll)
				continue
			}
			catchAll = i
			if r.Ref == "" {
				fail(i, r, "catch-all has no content ref")
				continue
			}
			if i != len(routes)-1 {
				fail(i, r, "catch-all must be the last route")
				continue
			}
			r.Path = ""
		default:
			fail(i, r, "unknown kind %q", r.Kind)
			continue
		}

		if r.Kind != KindCatchAll {
			for j, prev := range t.routes {
				if prev.Matches(r.Path) {
					fail(i, r, "unreachable, shadowed by %s", t.routes[j])
					break
				}
			}
		}

		t.routes = append(t.routes, r)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for i, r := range t.routes {
		if r.Kind != KindRedirect {
			continue
		}
		if reason := t.simulate(r); reason != "" {
			errs = append(errs, &ConfigError{Index: i, Route: r, Reason: reason})
		}
	}

	if res := t.Resolve("/"); !res.Matched {
		errs = append(errs, &ConfigError{Index: -1, Reason: "no route resolves the root path /"})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// MustNew is like New but panics on a configuration error.
func MustNew(routes ...Route) *Table {
	t, err := New(routes...)
	if err != nil {
		panic(err)
	}
	return t
}

// simulate follows a redirect the way Resolve would and explains why it does not land on
// content in exactly one hop.
func (t *Table) simulate(r Route) string {
	seen := map[string]bool{r.Path: true}
	cur := r
	for hop := 1; ; hop++ {
		next, ok := t.Match(cur.Target)
		if !ok {
			return fmt.Sprintf("target %q does not match any route", cur.Target)
		}
		if next.OwnsContent() {
			if hop > 1 {
				return fmt.Sprintf("target %q is itself a redirect (chain of %d hops)", r.Target, hop)
			}
			return ""
		}
		if seen[next.Path] {
			return fmt.Sprintf("redirect cycle through %q", next.Path)
		}
		seen[next.Path] = true
		cur = next
	}
}

// Match returns the first route matching p.
func (t *Table) Match(p string) (Route, bool) {
	p = Normalize(p)
	for _, r := range t.routes {
		if r.Matches(p) {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve maps a location to the content-owning route, applying at most one redirect.
// An unmatched location yields Matched == false.
func (t *Table) Resolve(p string) Resolution {
	p = Normalize(p)
	res := Resolution{Requested: p, Path: p}

	r, ok := t.Match(p)
	if !ok {
		return res
	}

	if r.Kind == KindRedirect {
		res.Redirected = true
		res.Path = r.Target
		r, ok = t.Match(r.Target)
		if !ok || !r.OwnsContent() {
			return res
		}
	}

	res.Route = r
	res.Matched = true
	return res
}

// Routes returns a copy of the table in priority order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Refs returns the distinct content refs in priority order.
func (t *Table) Refs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.routes {
		if r.OwnsContent() && !seen[r.Ref] {
			seen[r.Ref] = true
			out = append(out, r.Ref)
		}
	}
	return out
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}
