// Package resolve maps bracket reference payloads to navigable destinations.
//
// Resolution is fail-closed: anything that is neither a registry entry, a
// valid http(s) URL, an internal post slug nor an artifact identifier is
// rejected rather than interpolated into a URL.
package resolve

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/starford/panes/internal/bracket"
)

var (
	// ErrUnresolved is returned for content matching no resolution rule.
	ErrUnresolved = errors.New("resolve: unrecognized reference")
	// ErrInvalidURL is returned for http(s)-looking content that fails URL validation.
	ErrInvalidURL = errors.New("resolve: invalid url")
)

// Defaults used when Options leaves a field empty.
const (
	DefaultPostPathPrefix   = "/posts"
	DefaultArtifactEmbedURL = "https://claude.site/public/artifacts/%s/embed"
)

var (
	slugRe      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,100}$`)
	canonicalRe = regexp.MustCompile(`(?i)^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	shortIDRe   = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9-]{0,50}$`)
)

// Registry holds the fixed short-id mappings. Apps refuse to be framed and
// always open as a new top-level view; Artifacts are embeddable.
type Registry struct {
	Apps      map[string]string `yaml:"apps"`
	Artifacts map[string]string `yaml:"artifacts"`
}

// Options configures a Resolver.
type Options struct {
	Registry Registry
	// PostPathPrefix is the route under which posts are served, e.g. "/posts".
	PostPathPrefix string
	// ArtifactEmbedURL is a fmt template with a single %s for the identifier.
	ArtifactEmbedURL string
}

// Target is a resolved destination.
type Target struct {
	URL  string       `json:"url"`
	Kind bracket.Kind `json:"kind"`
	// External destinations must be opened as a new top-level view.
	External bool `json:"external,omitempty"`
	// HintMismatch is set by ResolveFragment when the parser's kind hint
	// disagrees with the resolved kind.
	HintMismatch bool `json:"hint_mismatch,omitempty"`
}

// Resolver applies the resolution policy. It is safe for concurrent use;
// its configuration is copied at construction and never mutated.
type Resolver struct {
	apps        map[string]string
	artifacts   map[string]string
	postPrefix  string
	artifactURL string
}

// New creates a Resolver from opts.
func New(opts Options) *Resolver {
	r := &Resolver{
		apps:        copyMap(opts.Registry.Apps),
		artifacts:   copyMap(opts.Registry.Artifacts),
		postPrefix:  strings.TrimRight(opts.PostPathPrefix, "/"),
		artifactURL: opts.ArtifactEmbedURL,
	}
	if opts.PostPathPrefix == "" {
		r.postPrefix = DefaultPostPathPrefix
	}
	if r.artifactURL == "" {
		r.artifactURL = DefaultArtifactEmbedURL
	}
	return r
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Resolve maps content to a Target. The first matching rule wins:
// registry, absolute URL, internal post slug, artifact identifier.
func (r *Resolver) Resolve(content string) (Target, error) {
	if u, ok := r.apps[content]; ok {
		return Target{URL: u, Kind: bracket.KindSite, External: true}, nil
	}
	if u, ok := r.artifacts[content]; ok {
		return Target{URL: u, Kind: bracket.KindArtifact}, nil
	}

	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		if !ValidURL(content) {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidURL, content)
		}
		return Target{URL: content, Kind: bracket.KindSite}, nil
	}

	if ValidSlug(content) {
		return Target{URL: r.postPrefix + "/" + content + "/embed", Kind: bracket.KindPost}, nil
	}

	if canonicalRe.MatchString(content) || shortIDRe.MatchString(content) {
		return Target{URL: fmt.Sprintf(r.artifactURL, content), Kind: bracket.KindArtifact}, nil
	}

	return Target{}, fmt.Errorf("%w: %q", ErrUnresolved, content)
}

// ResolveFragment resolves f.Content. The parser's kind is only a hint; the
// policy above decides and disagreement is flagged on the target.
func (r *Resolver) ResolveFragment(f bracket.Fragment) (Target, error) {
	t, err := r.Resolve(f.Content)
	if err != nil {
		return t, err
	}
	if f.Kind != "" && f.Kind != t.Kind && !(f.Kind == bracket.KindSite && t.External) {
		t.HintMismatch = true
	}
	return t, nil
}

// IsExternal reports whether content names a registered app that must be
// opened outside the pane stack.
func (r *Resolver) IsExternal(content string) bool {
	_, ok := r.apps[content]
	return ok
}

// ValidURL reports whether s parses as an absolute http or https URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// ValidSlug reports whether s is an internal post slug. Canonical artifact
// identifiers are excluded so they keep resolving as artifacts.
func ValidSlug(s string) bool {
	return slugRe.MatchString(s) && !canonicalRe.MatchString(s)
}

// DirectURL is the address to open when an embedded view refuses to render.
// Artifact embed URLs drop their trailing "/embed".
func DirectURL(t Target) string {
	if t.Kind == bracket.KindArtifact {
		return strings.TrimSuffix(t.URL, "/embed")
	}
	return t.URL
}
