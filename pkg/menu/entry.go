package menu

import "strings"

// Entry represents one labeled item in the side navigation. A leaf owns a Route; a section
// header has no Route and groups its Nested entries.
type Entry struct {
	// Name is the display label.
	Name string `json:"name" yaml:"name" koanf:"name"`

	// Route is the path this entry navigates to. Empty on section headers.
	Route string `json:"route,omitempty" yaml:"route,omitempty" koanf:"route"`

	// Nested are the child entries, in display order.
	Nested []Entry `json:"nested,omitempty" yaml:"nested,omitempty" koanf:"nested"`
}

// Intent is a request to change the current location, emitted when a leaf is selected.
type Intent struct {
	Route string `json:"route"`
}

// IsLeaf reports whether the entry owns a route.
func (e Entry) IsLeaf() bool {
	return e.Route != ""
}

// IsSection reports whether the entry groups child entries.
func (e Entry) IsSection() bool {
	return len(e.Nested) > 0
}

// Select returns the navigation intent for selecting e. Selecting a header without its own
// route performs no navigation.
func Select(e Entry) (Intent, bool) {
	if !e.IsLeaf() {
		return Intent{}, false
	}
	return Intent{Route: e.Route}, true
}

// childKey builds the stable key of an entry from its parent's key.
func childKey(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// samePath compares two routes ignoring a trailing slash.
func samePath(a, b string) bool {
	trim := func(s string) string {
		if len(s) > 1 {
			return strings.TrimRight(s, "/")
		}
		return s
	}
	return trim(a) == trim(b)
}
