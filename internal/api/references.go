package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/starford/panes/internal/bracket"
	"github.com/starford/panes/internal/resolve"
)

// maxParseBytes bounds the text accepted by POST /api/parse.
const maxParseBytes = 1 << 20

// ReferenceHandler exposes the bracket parser and resolver.
type ReferenceHandler struct {
	resolver *resolve.Resolver
}

// NewReferenceHandler creates a ReferenceHandler.
func NewReferenceHandler(r *resolve.Resolver) *ReferenceHandler {
	return &ReferenceHandler{resolver: r}
}

// Parse handles POST /api/parse.
//
//	@Summary		Split text into literal and reference segments
//	@Tags			references
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ParseRequest	true	"Text to parse"
//	@Success		200		{object}	ParseResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/parse [post]
func (h *ReferenceHandler) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxParseBytes)
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	segs := bracket.Parse(req.Text)
	writeJSON(w, http.StatusOK, ParseResponse{
		Segments: segs,
		HTML:     bracket.Render(segs),
		Display:  bracket.Display(segs),
	})
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a reference payload to a destination
//	@Tags			references
//	@Produce		json
//	@Param			content	query		string	true	"Reference content"
//	@Success		200		{object}	resolve.Target
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *ReferenceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	content := r.URL.Query().Get("content")
	if strings.TrimSpace(content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'content' is required"))
		return
	}
	target, err := h.resolver.Resolve(content)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Target: target, DirectURL: resolve.DirectURL(target)})
}
