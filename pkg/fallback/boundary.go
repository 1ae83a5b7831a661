package fallback

import (
	"context"
	"html/template"
	"time"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/router"
)

// DefaultPlaceholder is shown in place of content that is still loading.
const DefaultPlaceholder template.HTML = `<div class="fallback loading" role="status">Loading...</div>`

// Boundary decides what fills the content region for a view.
type Boundary struct {
	// Loading is shown while content loads.
	Loading template.HTML

	// Failed renders failed-state UI. When nil, failures show the Loading placeholder.
	Failed func(router.View) template.HTML

	// Empty fills the region for unmatched and idle views.
	Empty template.HTML
}

// Default returns a boundary with the standard placeholder, no failed-state UI and an
// empty region for unmatched locations.
func Default() Boundary {
	return Boundary{Loading: DefaultPlaceholder}
}

// Render returns the fragment for the content region of v.
func (b Boundary) Render(v router.View) template.HTML {
	switch v.State {
	case router.StateReady:
		if v.Content == nil {
			return b.Empty
		}
		return v.Content.Body
	case router.StateLoading:
		return b.placeholder()
	case router.StateFailed:
		if b.Failed != nil {
			return b.Failed(v)
		}
		return b.placeholder()
	default:
		return b.Empty
	}
}

func (b Boundary) placeholder() template.HTML {
	if b.Loading == "" {
		return DefaultPlaceholder
	}
	return b.Loading
}

// Outcome is the state of a future observed by Await.
type Outcome struct {
	State   router.State
	Content *content.Content
	Err     error
}

// Await waits at most delay for f. A future still pending after delay reports StateLoading;
// its load keeps running.
func Await(ctx context.Context, f *content.Future, delay time.Duration) Outcome {
	if !f.Ready() && delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()

		select {
		case <-f.Done():
		case <-t.C:
		case <-ctx.Done():
		}
	}

	if !f.Ready() {
		return Outcome{State: router.StateLoading}
	}

	c, err := f.Result()
	if err != nil {
		return Outcome{State: router.StateFailed, Err: err}
	}
	return Outcome{State: router.StateReady, Content: c}
}
