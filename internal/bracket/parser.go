// Package bracket parses the [[trigger:content]] inline reference syntax out of
// prose text and emits the markup consumed by the pane runtime.
package bracket

import (
	"regexp"
	"strings"
)

// Kind classifies a reference target.
type Kind string

// Reference kinds. The parser only emits KindArtifact and KindSite; KindPost
// is assigned by the resolver for internal slugs.
const (
	KindArtifact Kind = "artifact"
	KindSite     Kind = "site"
	KindPost     Kind = "post"
)

var (
	// Trigger excludes ']' and ':' so the first colon splits; content excludes
	// ']' so a span always ends at the nearest "]]".
	referenceRe = regexp.MustCompile(`\[\[([^\]:]+):([^\]]+)\]\]`)
	explicitRe  = regexp.MustCompile(`^(artifact|site):(.+)$`)
)

// Fragment is a parsed bracket reference. Trigger and Content are stored
// unescaped; escaping happens in HTML.
type Fragment struct {
	Trigger string `json:"trigger"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// Segment is one piece of a parsed text node: either literal text or a link.
// Start and End are byte offsets of the piece in the parsed input.
type Segment struct {
	Text  string    `json:"text,omitempty"`
	Link  *Fragment `json:"link,omitempty"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// IsLink reports whether the segment is a reference.
func (s Segment) IsLink() bool {
	return s.Link != nil
}

// Parse splits text into literal segments and reference fragments in a single
// left-to-right pass. It never fails: text without references comes back as a
// single segment equal to the input.
func Parse(text string) []Segment {
	matches := referenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Segment{{Text: text, Start: 0, End: len(text)}}
	}

	segs := make([]Segment, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		f, ok := fragment(text[m[2]:m[3]], text[m[4]:m[5]])
		if !ok {
			// Left in place; it becomes part of the next literal run.
			continue
		}
		if m[0] > last {
			segs = append(segs, Segment{Text: text[last:m[0]], Start: last, End: m[0]})
		}
		segs = append(segs, Segment{Link: &f, Start: m[0], End: m[1]})
		last = m[1]
	}
	if last < len(text) || len(segs) == 0 {
		segs = append(segs, Segment{Text: text[last:], Start: last, End: len(text)})
	}
	return segs
}

// fragment trims the raw captures and classifies them. Content that is blank
// after trimming is not a reference.
func fragment(rawTrigger, rawContent string) (Fragment, bool) {
	trigger := strings.TrimSpace(rawTrigger)
	content := strings.TrimSpace(rawContent)
	if content == "" {
		return Fragment{}, false
	}
	if trigger == "" {
		trigger = content
	}
	return Classify(trigger, content), true
}

// Classify assigns a kind to content: an explicit "artifact:" or "site:"
// prefix wins, then absolute http(s) URLs are sites, and anything else
// defaults to an artifact.
func Classify(trigger, content string) Fragment {
	if m := explicitRe.FindStringSubmatch(content); m != nil {
		return Fragment{Trigger: trigger, Kind: Kind(m[1]), Content: m[2]}
	}
	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		return Fragment{Trigger: trigger, Kind: KindSite, Content: content}
	}
	return Fragment{Trigger: trigger, Kind: KindArtifact, Content: content}
}

// Display joins the segments back into readable text, substituting each
// reference with its trigger.
func Display(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.IsLink() {
			b.WriteString(s.Link.Trigger)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Links returns the fragments of segs in order.
func Links(segs []Segment) []Fragment {
	var out []Fragment
	for _, s := range segs {
		if s.IsLink() {
			out = append(out, *s.Link)
		}
	}
	return out
}
