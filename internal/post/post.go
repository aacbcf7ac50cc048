// Package post reads and writes the post file format: YAML frontmatter
// followed by a Markdown body.
package post

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/panes/internal/bracket"
	"github.com/starford/panes/internal/resolve"
)

// ErrInvalidDate is returned when the frontmatter date cannot be parsed.
var ErrInvalidDate = errors.New("post: invalid date")

// Extensions recognised as post files.
var Extensions = []string{".md", ".mdx"}

const dateLayout = "2006-01-02"

// Meta is the typed frontmatter of a post.
type Meta struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Draft       bool      `json:"draft"`
	Islands     []string  `json:"islands,omitempty"`
}

// rawMeta is the YAML shape; dates stay strings until parsed so both bare
// YAML dates and RFC 3339 timestamps are accepted.
type rawMeta struct {
	Title       string   `yaml:"title"`
	Date        string   `yaml:"date"`
	Description string   `yaml:"description"`
	Draft       bool     `yaml:"draft"`
	Islands     []string `yaml:"islands,omitempty"`
}

// Validate checks the fields required of an authored post.
func (m Meta) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&m.Date, validation.Required),
		validation.Field(&m.Description, validation.Required),
		validation.Field(&m.Islands, validation.Each(validation.Required)),
	)
}

// Document is a parsed post file.
type Document struct {
	Meta           Meta
	HasFrontmatter bool
	Body           string
	// Title is Meta.Title, or the first H1 of the body when unset.
	Title string
}

// Parse splits data into frontmatter and body. Missing or malformed YAML is
// not an error: the whole file becomes the body. An unparseable date is.
func Parse(data []byte) (*Document, error) {
	raw, body, ok := splitFrontmatter(data)
	doc := &Document{Body: body, HasFrontmatter: ok}
	if ok {
		doc.Meta = Meta{
			Title:       strings.TrimSpace(raw.Title),
			Description: strings.TrimSpace(raw.Description),
			Draft:       raw.Draft,
			Islands:     raw.Islands,
		}
		if raw.Date != "" {
			d, err := parseDate(raw.Date)
			if err != nil {
				return nil, err
			}
			doc.Meta.Date = d
		}
	}
	doc.Title = deriveTitle(doc.Meta.Title, body)
	return doc, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body.
func splitFrontmatter(data []byte) (rawMeta, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return rawMeta{}, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return rawMeta{}, string(data), false
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(after), "\n\r")

	var raw rawMeta
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return rawMeta{}, string(data), false
	}
	return raw, body, true
}

func deriveTitle(title, body string) string {
	if title != "" {
		return title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Render serializes meta and body back into the post file format.
func Render(m Meta, body string) ([]byte, error) {
	raw := rawMeta{
		Title:       m.Title,
		Description: m.Description,
		Draft:       m.Draft,
		Islands:     m.Islands,
	}
	if !m.Date.IsZero() {
		raw.Date = m.Date.UTC().Format(dateLayout)
	}
	fm, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("post: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// IsPostFile reports whether path has a post extension.
func IsPostFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SlugFromPath returns the slug of the post stored at path: its file stem.
func SlugFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidSlug reports whether slug can address a post.
func ValidSlug(slug string) bool {
	return resolve.ValidSlug(slug)
}

// References returns every bracket reference in body, including any inside
// code; the compile pipeline is the authority on what gets rendered.
func References(body string) []bracket.Fragment {
	return bracket.Links(bracket.Parse(body))
}
