package bracket

import (
	"net/url"
	"strings"
)

// MarkerClass identifies reference elements in rendered markup.
const MarkerClass = "bracket-link"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML replaces & < > " ' with character references. It is safe for
// both element text and quoted attribute values.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// EncodeContent percent-encodes a reference payload for a data attribute.
// Only [A-Za-z0-9-_.~] pass through; spaces become %20.
func EncodeContent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DecodeContent reverses EncodeContent.
func DecodeContent(s string) (string, error) {
	return url.PathUnescape(s)
}

// HTML renders the fragment as an interactive reference element.
func (f Fragment) HTML() string {
	trigger := EscapeHTML(f.Trigger)

	var b strings.Builder
	b.Grow(len(trigger)*2 + len(f.Content) + 128)
	b.WriteString(`<span class="` + MarkerClass + `" data-trigger="`)
	b.WriteString(trigger)
	b.WriteString(`" data-type="`)
	b.WriteString(EscapeHTML(string(f.Kind)))
	b.WriteString(`" data-content="`)
	b.WriteString(EncodeContent(f.Content))
	b.WriteString(`" role="button" tabindex="0">`)
	b.WriteString(trigger)
	b.WriteString(`</span>`)
	return b.String()
}

// Render emits segs as markup: literal text escaped, references as HTML.
func Render(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.IsLink() {
			b.WriteString(s.Link.HTML())
			continue
		}
		b.WriteString(EscapeHTML(s.Text))
	}
	return b.String()
}
