// Package compile turns post files into HTML fragments with bracket
// references rendered, sanitized and resolved.
package compile

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/starford/panes/internal/bracket"
	"github.com/starford/panes/internal/checksum"
	"github.com/starford/panes/internal/index"
	"github.com/starford/panes/internal/post"
	"github.com/starford/panes/internal/resolve"
)

// Resolver resolves a parsed reference.
type Resolver interface {
	ResolveFragment(f bracket.Fragment) (resolve.Target, error)
}

// Options configures a Pipeline.
type Options struct {
	// UnsafeHTML lets raw HTML in posts through the Markdown renderer.
	UnsafeHTML bool
	// Sanitize runs rendered HTML through a bluemonday policy that keeps the
	// reference markup.
	Sanitize bool
	Logger   *slog.Logger
}

// Reference is one compiled reference and its resolution outcome.
type Reference struct {
	bracket.Fragment
	Target *resolve.Target `json:"target,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Resolved reports whether the reference has a destination.
func (r Reference) Resolved() bool { return r.Target != nil }

// Result is a compiled post.
type Result struct {
	Path       string         `json:"path"`
	Slug       string         `json:"slug"`
	Doc        *post.Document `json:"-"`
	HTML       string         `json:"html"`
	References []Reference    `json:"references"`
	Checksum   string         `json:"checksum"`
}

// Pipeline compiles posts. It is safe for concurrent use.
type Pipeline struct {
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	resolver Resolver
	logger   *slog.Logger
}

// New builds a Pipeline. Linkify must stay off: it turns URL references into
// autolinks before they are scanned.
func New(r Resolver, opts Options) *Pipeline {
	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			&Extension{},
		),
	}
	if opts.UnsafeHTML {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}

	p := &Pipeline{
		md:       goldmark.New(rendererOpts...),
		resolver: r,
		logger:   opts.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if opts.Sanitize {
		p.policy = Policy()
	}
	return p
}

// Policy returns the sanitizer policy: bluemonday's UGC policy plus the
// reference marker and its attributes.
func Policy() *bluemonday.Policy {
	pol := bluemonday.UGCPolicy()
	pol.AllowElements("span")
	pol.AllowAttrs("class").Matching(regexp.MustCompile(`^` + bracket.MarkerClass + `$`)).OnElements("span")
	pol.AllowAttrs("data-trigger", "data-type", "data-content").OnElements("span")
	pol.AllowAttrs("role").Matching(regexp.MustCompile(`^button$`)).OnElements("span")
	pol.AllowAttrs("tabindex").Matching(regexp.MustCompile(`^0$`)).OnElements("span")
	return pol
}

// Render converts a Markdown body to HTML and returns the references found
// in prose, in document order.
func (p *Pipeline) Render(body []byte) (string, []bracket.Fragment, error) {
	doc := p.md.Parser().Parse(text.NewReader(body))

	links := Links(doc)
	frags := make([]bracket.Fragment, len(links))
	for i, l := range links {
		frags[i] = l.Fragment
	}

	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, body, doc); err != nil {
		return "", nil, fmt.Errorf("compile: render: %w", err)
	}
	out := buf.String()
	if p.policy != nil {
		out = p.policy.Sanitize(out)
	}
	return out, frags, nil
}

// Compile parses the post at path, renders it and resolves its references.
// Unresolvable references are recorded, never fatal.
func (p *Pipeline) Compile(path string, data []byte) (*Result, error) {
	doc, err := post.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("compile: %s: %w", path, err)
	}
	htmlOut, frags, err := p.Render([]byte(doc.Body))
	if err != nil {
		return nil, err
	}

	res := &Result{
		Path:       path,
		Slug:       post.SlugFromPath(path),
		Doc:        doc,
		HTML:       htmlOut,
		References: make([]Reference, len(frags)),
		Checksum:   checksum.Sum(data),
	}
	for i, f := range frags {
		ref := Reference{Fragment: f}
		target, err := p.resolver.ResolveFragment(f)
		if err != nil {
			ref.Error = err.Error()
			p.logger.Warn("compile: unresolved reference",
				slog.String("path", path),
				slog.String("content", f.Content),
				slog.String("error", err.Error()))
		} else {
			if target.HintMismatch {
				p.logger.Debug("compile: kind hint differs from destination",
					slog.String("path", path),
					slog.String("hint", string(f.Kind)),
					slog.String("kind", string(target.Kind)))
			}
			ref.Target = &target
		}
		res.References[i] = ref
	}
	return res, nil
}

// Build compiles the post at path into an index entry.
func (p *Pipeline) Build(path string, data []byte) (*index.Entry, error) {
	res, err := p.Compile(path, data)
	if err != nil {
		return nil, err
	}
	return res.Entry(time.Now().UTC()), nil
}

// Entry converts r into an index entry stamped with updatedAt.
func (r *Result) Entry(updatedAt time.Time) *index.Entry {
	e := &index.Entry{
		Post: index.PostRow{
			Slug:        r.Slug,
			Path:        r.Path,
			Title:       r.Doc.Title,
			Description: r.Doc.Meta.Description,
			Date:        r.Doc.Meta.Date,
			Draft:       r.Doc.Meta.Draft,
			Checksum:    r.Checksum,
			UpdatedAt:   updatedAt,
		},
		Body: r.Doc.Body,
		HTML: r.HTML,
		Refs: make([]index.RefRow, len(r.References)),
	}
	for i, ref := range r.References {
		row := index.RefRow{
			Source:   r.Path,
			Slug:     r.Slug,
			Position: i,
			Trigger:  ref.Trigger,
			Hint:     string(ref.Kind),
			Content:  ref.Content,
			Error:    ref.Error,
		}
		if ref.Target != nil {
			row.Resolved = true
			row.TargetKind = string(ref.Target.Kind)
			row.TargetURL = ref.Target.URL
			row.External = ref.Target.External
		}
		e.Refs[i] = row
	}
	return e
}
