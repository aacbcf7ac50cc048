package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/panes/internal/assets"
	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/postservice"
	"github.com/starford/panes/internal/resolve"
)

// Services bundles what the routes call into.
type Services struct {
	Posts    *postservice.Service
	Sessions *pane.Sessions
	Resolver *resolve.Resolver
	Assets   *assets.Store
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(s Services, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(s.Posts)
	rh := NewReferenceHandler(s.Resolver)
	sh := NewSessionHandler(s.Sessions)
	ah := NewAssetHandler(s.Assets)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Posts CRUD.
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{slug}", h.GetPost)
	r.Put("/posts/{slug}", h.UpdatePost)
	r.Delete("/posts/{slug}", h.DeletePost)
	r.Post("/posts/{slug}/rename", h.RenamePost)
	r.Get("/posts/{slug}/backlinks", h.Backlinks)
	r.Get("/posts/{slug}/references", h.References)

	// References.
	r.Get("/references/unresolved", h.Unresolved)
	r.Post("/parse", rh.Parse)
	r.Get("/resolve", rh.Resolve)

	// Search.
	r.Get("/search", h.Search)

	// Pane sessions.
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", sh.List)
		r.Post("/", sh.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sh.Get)
			r.Delete("/", sh.Delete)
			r.Post("/activate", sh.Activate)
			r.Post("/navigate", sh.Navigate)
			r.Post("/close", sh.Close)
			r.Post("/close-all", sh.CloseAll)
			r.Post("/key", sh.Key)
			r.Post("/hover", sh.Hover)
			r.Post("/messages", sh.Message)
			r.Post("/embed-refused", sh.EmbedRefused)
		})
	})

	// Asset upload (auth-protected).
	r.Post("/assets", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// SiteRoutes registers the public routes on r: embeddable post pages and
// assets.
func SiteRoutes(r chi.Router, s Services, trustedOrigins []string) {
	eh := NewEmbedHandler(s.Posts, trustedOrigins)
	ah := NewAssetHandler(s.Assets)

	r.Get("/posts/{slug}/embed", eh.ServeEmbed)
	r.Get("/assets/{filename}", ah.ServeFile)
}
