package route

import (
	"fmt"
	"path"
	"strings"
)

// Kind tags a route table entry.
type Kind string

const (
	// KindRedirect forwards resolution to Target.
	KindRedirect Kind = "redirect"

	// KindLeaf owns content identified by Ref.
	KindLeaf Kind = "leaf"

	// KindCatchAll matches any otherwise-unmatched path.
	KindCatchAll Kind = "catch-all"
)

// Route is one entry of the route table.
type Route struct {
	Kind Kind `json:"kind" yaml:"kind" koanf:"kind"`

	// Path is the pattern this route matches. Unused for catch-all routes.
	Path string `json:"path,omitempty" yaml:"path,omitempty" koanf:"path"`

	// Target is the path a redirect forwards to.
	Target string `json:"target,omitempty" yaml:"target,omitempty" koanf:"target"`

	// Ref identifies the content module a leaf or catch-all renders.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty" koanf:"ref"`

	// Exact restricts a leaf to its own path; otherwise it also matches sub-paths.
	// Redirects always match exactly.
	Exact bool `json:"exact,omitempty" yaml:"exact,omitempty" koanf:"exact"`
}

// Redirect returns a route forwarding from to to.
func Redirect(from, to string) Route {
	return Route{Kind: KindRedirect, Path: from, Target: to, Exact: true}
}

// Leaf returns a route rendering ref at p and its sub-paths.
func Leaf(p, ref string) Route {
	return Route{Kind: KindLeaf, Path: p, Ref: ref}
}

// CatchAll returns a route rendering ref for any unmatched path.
func CatchAll(ref string) Route {
	return Route{Kind: KindCatchAll, Ref: ref}
}

// OwnsContent reports whether resolving to r produces a content view.
func (r Route) OwnsContent() bool {
	return r.Kind == KindLeaf || r.Kind == KindCatchAll
}

// Matches reports whether the normalized path p is matched by r.
func (r Route) Matches(p string) bool {
	switch r.Kind {
	case KindCatchAll:
		return true
	case KindRedirect:
		return p == r.Path
	case KindLeaf:
		if p == r.Path {
			return true
		}
		if r.Exact {
			return false
		}
		if r.Path == "/" {
			return true
		}
		return strings.HasPrefix(p, r.Path+"/")
	default:
		return false
	}
}

func (r Route) String() string {
	switch r.Kind {
	case KindRedirect:
		return fmt.Sprintf("%s -> %s", r.Path, r.Target)
	case KindCatchAll:
		return fmt.Sprintf("* => %s", r.Ref)
	default:
		return fmt.Sprintf("%s => %s", r.Path, r.Ref)
	}
}

// Normalize cleans p into the canonical form used for matching: absolute, no trailing slash,
// no dot segments. The empty path is the root.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
