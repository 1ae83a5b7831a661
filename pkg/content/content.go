package content

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"
)

var (
	// ErrLoadFailure matches every error produced by a failed content load.
	ErrLoadFailure = errors.New("content load failed")

	// ErrNotFound is returned by sources for refs they do not own.
	ErrNotFound = errors.New("content not found")
)

// Ref is an opaque handle to a lazily loadable content module.
type Ref string

// Content is a realized content module, ready to render.
type Content struct {
	Ref      Ref           `json:"ref"`
	Title    string        `json:"title"`
	Body     template.HTML `json:"body"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// Source fetches content modules. Implementations are called at most once at a time per ref.
type Source interface {
	Fetch(ctx context.Context, ref Ref) (*Content, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, ref Ref) (*Content, error)

func (f SourceFunc) Fetch(ctx context.Context, ref Ref) (*Content, error) {
	return f(ctx, ref)
}

// LoadError reports a failed load of one ref. It is localized to that ref and never cached.
type LoadError struct {
	Ref Ref
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading content %q: %v", e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLoadFailure) hold for every LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoadFailure
}
