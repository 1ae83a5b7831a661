package fallback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/mchmarny/docshell/pkg/content"
	"github.com/mchmarny/docshell/pkg/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRender(t *testing.T) {
	b := Default()
	ready := router.View{State: router.StateReady, Content: &content.Content{Body: "<p>colors</p>"}}
	failed := router.View{State: router.StateFailed, Path: "/design/colors", Err: errors.New("boom")}

	assert.Equal(t, template.HTML("<p>colors</p>"), b.Render(ready))
	assert.Equal(t, DefaultPlaceholder, b.Render(router.View{State: router.StateLoading}))
	assert.Equal(t, DefaultPlaceholder, b.Render(failed), "no failed UI falls back to the placeholder")
	assert.Empty(t, b.Render(router.View{State: router.StateUnmatched}))
	assert.Empty(t, b.Render(router.View{State: router.StateIdle}))
	assert.Empty(t, b.Render(router.View{State: router.StateReady}))
}

func TestRenderCustomFallbacks(t *testing.T) {
	b := Boundary{
		Loading: "<i>wait</i>",
		Empty:   "<p>nothing here</p>",
		Failed: func(v router.View) template.HTML {
			return template.HTML(fmt.Sprintf("<p>could not load %s</p>", template.HTMLEscapeString(v.Path)))
		},
	}

	assert.Equal(t, template.HTML("<i>wait</i>"), b.Render(router.View{State: router.StateLoading}))
	assert.Equal(t, template.HTML("<p>nothing here</p>"), b.Render(router.View{State: router.StateUnmatched}))
	assert.Equal(t, template.HTML("<p>could not load /x</p>"),
		b.Render(router.View{State: router.StateFailed, Path: "/x"}))
}

func TestAwait(t *testing.T) {
	release := make(chan struct{})
	l := content.NewLoader(content.SourceFunc(func(ctx context.Context, ref content.Ref) (*content.Content, error) {
		if ref == "bad" {
			return nil, errors.New("nope")
		}
		if ref == "slow" {
			<-release
		}
		return &content.Content{Title: string(ref)}, nil
	}))

	out := Await(context.Background(), l.Resolve("fast"), time.Second)
	assert.Equal(t, router.StateReady, out.State)
	assert.Equal(t, "fast", out.Content.Title)

	out = Await(context.Background(), l.Resolve("bad"), time.Second)
	assert.Equal(t, router.StateFailed, out.State)
	assert.True(t, errors.Is(out.Err, content.ErrLoadFailure))

	slow := l.Resolve("slow")
	out = Await(context.Background(), slow, 10*time.Millisecond)
	assert.Equal(t, router.StateLoading, out.State)

	close(release)
	<-slow.Done()
	out = Await(context.Background(), l.Resolve("slow"), 0)
	assert.Equal(t, router.StateReady, out.State, "cached after the load finished")
}
