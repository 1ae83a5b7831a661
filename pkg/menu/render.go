package menu

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"
)

// Item is one rendered menu entry.
type Item struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Route    string `json:"route,omitempty"`
	Depth    int    `json:"depth"`
	Current  bool   `json:"current,omitempty"`
	Expanded bool   `json:"expanded,omitempty"`
	Items    []Item `json:"items,omitempty"`
}

// Expansion holds the transient expand/collapse state of one rendered menu. Sections default
// to expanded when they contain the current route; a toggle flips that default.
type Expansion struct {
	mu      sync.Mutex
	toggled map[string]bool
}

// NewExpansion returns an empty expand/collapse state.
func NewExpansion() *Expansion {
	return &Expansion{toggled: make(map[string]bool)}
}

// Toggle flips the section identified by key.
func (x *Expansion) Toggle(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.toggled[key] = !x.toggled[key]
}

func (x *Expansion) expanded(key string, containsCurrent bool) bool {
	if x == nil {
		return containsCurrent
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return containsCurrent != x.toggled[key]
}

// Render produces one Item per entry, preserving declaration order at every level. The leaf
// whose route equals current is marked current and its ancestor sections are expanded.
// A nil expansion renders the default state.
func (m *Menu) Render(current string, x *Expansion) []Item {
	items, _ := renderEntries(m.Entries, "", 0, current, x)
	return items
}

func renderEntries(entries []Entry, parent string, depth int, current string, x *Expansion) ([]Item, bool) {
	if len(entries) == 0 {
		return nil, false
	}

	items := make([]Item, 0, len(entries))
	found := false
	for _, e := range entries {
		key := childKey(parent, e.Name)
		it := Item{
			Key:     key,
			Name:    e.Name,
			Route:   e.Route,
			Depth:   depth,
			Current: current != "" && e.IsLeaf() && samePath(e.Route, current),
		}

		children, inside := renderEntries(e.Nested, key, depth+1, current, x)
		it.Items = children
		if it.IsSection() {
			it.Expanded = x.expanded(key, inside)
		}

		found = found || it.Current || inside
		items = append(items, it)
	}
	return items, found
}

// IsSection reports whether the item groups children.
func (it Item) IsSection() bool {
	return len(it.Items) > 0
}

// CountItems returns the number of items in the tree.
func CountItems(items []Item) int {
	n := 0
	for _, it := range items {
		n += 1 + CountItems(it.Items)
	}
	return n
}

// CurrentItem returns the item marked current, if any.
func CurrentItem(items []Item) (Item, bool) {
	for _, it := range items {
		if it.Current {
			return it, true
		}
		if c, ok := CurrentItem(it.Items); ok {
			return c, true
		}
	}
	return Item{}, false
}

var sidebar = template.Must(template.New("sidebar").Parse(
	`{{define "items"}}<ul class="nav depth-{{with index . 0}}{{.Depth}}{{end}}">` +
		`{{range .}}<li class="{{if .IsSection}}section{{if .Expanded}} expanded{{end}}{{else}}leaf{{end}}{{if .Current}} current{{end}}">` +
		`{{if .Route}}<a href="{{.Route}}" data-route="{{.Route}}"{{if .Current}} aria-current="page"{{end}}>{{.Name}}</a>` +
		`{{else}}<button type="button" class="section-toggle" data-key="{{.Key}}" aria-expanded="{{.Expanded}}">{{.Name}}</button>{{end}}` +
		`{{if .IsSection}}{{template "items" .Items}}{{end}}</li>{{end}}</ul>{{end}}`))

// HTML renders the item tree as a nested list for the sidebar.
func HTML(items []Item) (template.HTML, error) {
	if len(items) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := sidebar.ExecuteTemplate(&buf, "items", items); err != nil {
		return "", fmt.Errorf("rendering menu: %w", err)
	}

	// Content is produced by html/template and already escaped.
	return template.HTML(buf.String()), nil
}
