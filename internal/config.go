package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/resolve"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Content  ContentConfig     `yaml:"content"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Site     SiteConfig        `yaml:"site"`
	Resolver ResolverConfig    `yaml:"resolver"`
	Panes    PanesConfig       `yaml:"panes"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Resolver.Validate(); err != nil {
		return err
	}
	return c.Panes.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig holds the path to the directory of post files.
type ContentConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SiteConfig controls how posts are compiled and where they are served.
type SiteConfig struct {
	PostPathPrefix string `yaml:"post_path_prefix"`
	UnsafeHTML     bool   `yaml:"unsafe_html"`
	Sanitize       bool   `yaml:"sanitize"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PostPathPrefix, validation.Required, validation.By(func(v any) error {
			if !strings.HasPrefix(v.(string), "/") {
				return fmt.Errorf("must start with /")
			}
			return nil
		})),
	)
}

// ResolverConfig holds the reference registries and the artifact URL template.
type ResolverConfig struct {
	ArtifactEmbedURL string           `yaml:"artifact_embed_url"`
	Registry         resolve.Registry `yaml:",inline"`
}

// Validate validates the resolver configuration. Registry destinations must
// be absolute http(s) URLs.
func (c *ResolverConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ArtifactEmbedURL, validation.Required, validation.By(func(v any) error {
			tmpl := v.(string)
			verbs := strings.Count(tmpl, "%") - 2*strings.Count(tmpl, "%%")
			if strings.Count(tmpl, "%s") != 1 || verbs != 1 {
				return fmt.Errorf("must contain exactly one %%s and no other verbs")
			}
			return nil
		})),
	); err != nil {
		return err
	}
	for name, m := range map[string]map[string]string{"apps": c.Registry.Apps, "artifacts": c.Registry.Artifacts} {
		for id, dest := range m {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("resolver: %s: empty id", name)
			}
			if !resolve.ValidURL(dest) {
				return fmt.Errorf("resolver: %s: %q: invalid url %q", name, id, dest)
			}
		}
	}
	return nil
}

// Options returns the resolver options described by c and site.
func (c *ResolverConfig) Options(site SiteConfig) resolve.Options {
	return resolve.Options{
		Registry:         c.Registry,
		PostPathPrefix:   site.PostPathPrefix,
		ArtifactEmbedURL: c.ArtifactEmbedURL,
	}
}

// PanesConfig configures pane sessions.
type PanesConfig struct {
	// TrustedOrigins may send messages to sessions and frame embedded posts.
	TrustedOrigins []string      `yaml:"trusted_origins"`
	HoverDelay     time.Duration `yaml:"hover_delay"`
	HideGrace      time.Duration `yaml:"hide_grace"`
}

// Validate validates the panes configuration.
func (c *PanesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TrustedOrigins, validation.Each(validation.Required, validation.By(validOrigin))),
		validation.Field(&c.HoverDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.HideGrace, validation.Min(time.Duration(0))),
	)
}

// validOrigin accepts scheme://host[:port] with no path.
func validOrigin(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" || u.RawQuery != "" || u.User != nil {
		return fmt.Errorf("must be an origin like https://example.com")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Path: "./content",
		},
		SQLite: SQLiteConfig{
			Path: "./panes.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Site: SiteConfig{
			PostPathPrefix: resolve.DefaultPostPathPrefix,
			Sanitize:       true,
		},
		Resolver: ResolverConfig{
			ArtifactEmbedURL: resolve.DefaultArtifactEmbedURL,
		},
		Panes: PanesConfig{
			HoverDelay: pane.DefaultHoverDelay,
			HideGrace:  pane.DefaultHideGrace,
		},
	}
}
