package content

import "context"

// Future is the pending or completed result of resolving one ref.
type Future struct {
	ref     Ref
	cached  bool
	done    chan struct{}
	content *Content
	err     error
}

func newFuture(ref Ref) *Future {
	return &Future{ref: ref, done: make(chan struct{})}
}

func completed(ref Ref, c *Content) *Future {
	f := &Future{ref: ref, cached: true, done: make(chan struct{}), content: c}
	close(f.done)
	return f
}

func (f *Future) complete(c *Content, err error) {
	f.content, f.err = c, err
	close(f.done)
}

// Ref returns the ref this future resolves.
func (f *Future) Ref() Ref {
	return f.ref
}

// Cached reports whether the future was satisfied from the cache without loading.
func (f *Future) Cached() bool {
	return f.cached
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the result is available without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (*Content, error) {
	return f.content, f.err
}

// Wait blocks until the result is available or ctx is done. Giving up on a future does not
// cancel the underlying load.
func (f *Future) Wait(ctx context.Context) (*Content, error) {
	select {
	case <-f.done:
		return f.content, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
