package compile

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/panes/internal/bracket"
)

// KindLink is the AST node kind of a bracket reference.
var KindLink = ast.NewNodeKind("BracketLink")

// Link is an inline node holding one parsed bracket reference.
type Link struct {
	ast.BaseInline
	Fragment bracket.Fragment
}

// NewLink returns a Link node for f.
func NewLink(f bracket.Fragment) *Link {
	return &Link{Fragment: f}
}

func (n *Link) Kind() ast.NodeKind {
	return KindLink
}

func (n *Link) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Trigger": n.Fragment.Trigger,
		"Kind":    string(n.Fragment.Kind),
		"Content": n.Fragment.Content,
	}, nil)
}

// Extension adds bracket references to a goldmark instance.
type Extension struct{}

// Extend implements goldmark.Extender.
func (e *Extension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&linkTransformer{}, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&linkRenderer{}, 500),
	))
}

// linkTransformer rewrites prose text into text and Link nodes. The inline
// parser may split one line of prose into several adjacent Text nodes (every
// bracket starts a new one), so contiguous runs on the same line are scanned
// as a whole. Raw text (code spans) is never scanned; code blocks and raw
// HTML have no Text children.
type linkTransformer struct{}

func (t *linkTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var parents []ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.CodeSpan, *ast.AutoLink, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if _, ok := c.(*ast.Text); ok {
				parents = append(parents, n)
				break
			}
		}
		return ast.WalkContinue, nil
	})

	for _, p := range parents {
		rewriteRuns(p, source)
	}
}

func rewriteRuns(parent ast.Node, source []byte) {
	for c := parent.FirstChild(); c != nil; {
		first, ok := c.(*ast.Text)
		if !ok || first.IsRaw() {
			c = c.NextSibling()
			continue
		}
		last := first
		for !last.SoftLineBreak() && !last.HardLineBreak() {
			next, ok := last.NextSibling().(*ast.Text)
			if !ok || next.IsRaw() || next.Segment.Start != last.Segment.Stop {
				break
			}
			last = next
		}
		after := last.NextSibling()
		replaceRun(parent, first, last, source)
		c = after
	}
}

// replaceRun swaps the run first..last for the segments bracket.Parse finds
// in it. Runs without references are left untouched.
func replaceRun(parent ast.Node, first, last *ast.Text, source []byte) {
	base := first.Segment.Start
	segs := bracket.Parse(string(source[base:last.Segment.Stop]))
	if len(segs) == 1 && !segs[0].IsLink() {
		return
	}

	var tail ast.Node
	for _, s := range segs {
		var node ast.Node
		if s.Link != nil {
			node = NewLink(decodeFragment(*s.Link))
		} else {
			node = ast.NewTextSegment(text.NewSegment(base+s.Start, base+s.End))
		}
		parent.InsertBefore(parent, first, node)
		tail = node
	}

	soft, hard := last.SoftLineBreak(), last.HardLineBreak()
	for c := ast.Node(first); c != nil; {
		next := c.NextSibling()
		parent.RemoveChild(parent, c)
		if c == ast.Node(last) {
			break
		}
		c = next
	}

	if soft || hard {
		t, ok := tail.(*ast.Text)
		if !ok {
			stop := last.Segment.Stop
			t = ast.NewTextSegment(text.NewSegment(stop, stop))
			parent.InsertAfter(parent, tail, t)
		}
		t.SetSoftLineBreak(soft)
		t.SetHardLineBreak(hard)
	}
}

// decodeFragment resolves backslash escapes and character references in a
// fragment scanned from raw source, so it carries the text a reader sees.
func decodeFragment(f bracket.Fragment) bracket.Fragment {
	f.Trigger = decodeInline(f.Trigger)
	f.Content = decodeInline(f.Content)
	return f
}

func decodeInline(s string) string {
	b := util.UnescapePunctuations([]byte(s))
	b = util.ResolveNumericReferences(b)
	b = util.ResolveEntityNames(b)
	return string(b)
}

type linkRenderer struct{}

func (r *linkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindLink, r.renderLink)
}

func (r *linkRenderer) renderLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Link)
	_, _ = w.WriteString(n.Fragment.HTML())
	return ast.WalkSkipChildren, nil
}

// Links returns the Link nodes under doc in document order.
func Links(doc ast.Node) []*Link {
	var out []*Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if l, ok := n.(*Link); ok {
				out = append(out, l)
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}
