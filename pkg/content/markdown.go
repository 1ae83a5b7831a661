package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// DefaultInclude makes every markdown file of the source loadable.
var DefaultInclude = []string{"**/*.md"}

// MarkdownSource compiles markdown files from a file system into content modules.
// A ref names a file relative to the root, with or without the .md extension.
type MarkdownSource struct {
	fsys    fs.FS
	include []string
}

// NewMarkdownSource returns a source over fsys restricted to files matching the include
// patterns (doublestar syntax). With no patterns every markdown file is loadable.
func NewMarkdownSource(fsys fs.FS, include ...string) (*MarkdownSource, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}
	return &MarkdownSource{fsys: fsys, include: include}, nil
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

// Fetch reads and compiles the markdown file named by ref.
func (s *MarkdownSource) Fetch(ctx context.Context, ref Ref) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, ok := refToFile(ref)
	if !ok || !s.allowed(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	src, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := newMarkdown().Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("converting %s: %w", name, err)
	}

	return &Content{
		Ref:      ref,
		Title:    extractTitle(string(src), name),
		Body:     template.HTML(buf.String()),
		LoadedAt: time.Now(),
	}, nil
}

// List returns the refs of every loadable file, sorted.
func (s *MarkdownSource) List() ([]Ref, error) {
	seen := make(map[string]bool)
	for _, p := range s.include {
		matches, err := doublestar.Glob(s.fsys, p)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", p, err)
		}
		for _, m := range matches {
			if strings.HasSuffix(m, ".md") {
				seen[m] = true
			}
		}
	}

	refs := make([]Ref, 0, len(seen))
	for name := range seen {
		refs = append(refs, Ref(strings.TrimSuffix(name, ".md")))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs, nil
}

func (s *MarkdownSource) allowed(name string) bool {
	for _, p := range s.include {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// refToFile maps a ref to a file name valid for fs.FS.
func refToFile(ref Ref) (string, bool) {
	name := strings.Trim(string(ref), "/")
	if name == "" {
		return "", false
	}
	name = path.Clean(name)
	if path.Ext(name) != ".md" {
		name += ".md"
	}
	return name, fs.ValidPath(name)
}

// extractTitle returns the first level-one heading, or the file name without extension.
func extractTitle(src, name string) string {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(path.Base(name), ".md")
}
