package api

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/panes/internal/checksum"
	"github.com/starford/panes/internal/postservice"
)

var embedTmpl = template.Must(template.New("embed").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<article class="post" data-slug="{{.Slug}}">
<h1>{{.Title}}</h1>
{{.HTML}}
</article>
</body>
</html>
`))

// EmbedHandler serves compiled posts as standalone pages for framing inside
// a pane.
type EmbedHandler struct {
	svc            *postservice.Service
	frameAncestors string
}

// NewEmbedHandler creates an EmbedHandler. Only trustedOrigins (and the
// site itself) may frame the pages it serves.
func NewEmbedHandler(svc *postservice.Service, trustedOrigins []string) *EmbedHandler {
	return &EmbedHandler{svc: svc, frameAncestors: FrameAncestors(trustedOrigins)}
}

// FrameAncestors builds the frame-ancestors CSP directive for origins.
func FrameAncestors(origins []string) string {
	parts := []string{"frame-ancestors", "'self'"}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" || strings.ContainsAny(o, " ;,'\"") {
			continue
		}
		parts = append(parts, o)
	}
	return strings.Join(parts, " ")
}

// ServeEmbed handles GET /posts/{slug}/embed.
func (h *EmbedHandler) ServeEmbed(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	p, err := h.svc.Embed(r.Context(), slug)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		slog.Error("embed post failed", slog.String("slug", slug), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", h.frameAncestors)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("ETag", checksum.ETag(p.Checksum))
	if inm := r.Header.Get("If-None-Match"); inm != "" && checksum.Matches(inm, p.Checksum) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	// HTML was sanitized (or rendered without raw HTML) at compile time.
	if err := embedTmpl.Execute(w, map[string]any{
		"Slug":  p.Slug,
		"Title": p.Title,
		"HTML":  template.HTML(p.HTML), //nolint:gosec // compiled post markup
	}); err != nil {
		slog.Error("embed render failed", slog.String("slug", slug), slog.String("error", err.Error()))
	}
}
