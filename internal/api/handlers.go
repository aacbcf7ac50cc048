package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/checksum"
	"github.com/starford/panes/internal/post"
	"github.com/starford/panes/internal/postservice"
)

// Handler holds post route handlers.
type Handler struct {
	svc *postservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *postservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List posts newest first
//	@Tags			posts
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			drafts	query		bool	false	"Include drafts"
//	@Success		200		{object}	PostListResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	drafts, _ := strconv.ParseBool(q.Get("drafts"))

	items, total, err := h.svc.ListPosts(r.Context(), limit, offset, drafts)
	if err != nil {
		slog.Error("list posts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: items, Total: total})
}

// GetPost handles GET /api/posts/{slug}.
//
//	@Summary		Get a single post by slug
//	@Tags			posts
//	@Produce		json
//	@Param			slug	path		string	true	"Post slug"
//	@Success		200		{object}	PostDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	p, err := h.svc.GetPost(r.Context(), slug)
	if err != nil {
		writeError(w, "get post", err, slog.String("slug", slug))
		return
	}
	w.Header().Set("ETag", checksum.ETag(p.Checksum))
	writeJSON(w, http.StatusOK, p)
}

// CreatePost handles POST /api/posts.
//
//	@Summary		Create a new post
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePostRequest	true	"Post to create"
//	@Success		201		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}

	var date time.Time
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
			return
		}
		date = d
	}

	p, err := h.svc.CreatePost(r.Context(), postservice.CreateInput{
		Slug: req.Slug,
		Meta: post.Meta{
			Title:       req.Title,
			Date:        date,
			Description: req.Description,
			Draft:       req.Draft,
			Islands:     req.Islands,
		},
		Body: req.Body,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("post already exists"))
			return
		}
		writeError(w, "create post", err, slog.String("slug", req.Slug))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePost handles PUT /api/posts/{slug}.
//
//	@Summary		Replace a post file with optimistic concurrency
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			slug		path		string				true	"Post slug"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdatePostRequest	true	"Updated file content"
//	@Success		200			{object}	PostDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug} [put]
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	slug := chi.URLParam(r, "slug")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdatePostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	p, err := h.svc.UpdatePost(r.Context(), slug, []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
			return
		}
		writeError(w, "update post", err, slog.String("slug", slug))
		return
	}
	w.Header().Set("ETag", checksum.ETag(p.Checksum))
	writeJSON(w, http.StatusOK, p)
}

// DeletePost handles DELETE /api/posts/{slug}.
//
//	@Summary		Delete a post
//	@Tags			posts
//	@Param			slug	path	string	true	"Post slug"
//	@Success		204		"Post deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug} [delete]
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.svc.DeletePost(r.Context(), slug); err != nil {
		writeError(w, "delete post", err, slog.String("slug", slug))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenamePost handles POST /api/posts/{slug}/rename.
//
//	@Summary		Rename a post
//	@Description	Moves the post file to <slug>.md. References to the old slug are not rewritten.
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			slug	path		string				true	"Current post slug"
//	@Param			body	body		RenamePostRequest	true	"New slug"
//	@Success		200		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug}/rename [post]
func (h *Handler) RenamePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req RenamePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	p, err := h.svc.RenamePost(r.Context(), slug, req.Slug)
	if err != nil {
		writeError(w, "rename post", err, slog.String("slug", slug), slog.String("new_slug", req.Slug))
		return
	}
	w.Header().Set("ETag", checksum.ETag(p.Checksum))
	writeJSON(w, http.StatusOK, p)
}

// Backlinks handles GET /api/posts/{slug}/backlinks.
//
//	@Summary		Posts referencing a post
//	@Tags			references
//	@Produce		json
//	@Param			slug	path		string	true	"Post slug"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	bl, err := h.svc.Backlinks(r.Context(), slug)
	if err != nil {
		writeError(w, "backlinks", err, slog.String("slug", slug))
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: bl})
}

// References handles GET /api/posts/{slug}/references.
//
//	@Summary		References found in a post and how they resolved
//	@Tags			references
//	@Produce		json
//	@Param			slug	path		string	true	"Post slug"
//	@Success		200		{object}	ReferencesResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{slug}/references [get]
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	refs, err := h.svc.References(r.Context(), slug)
	if err != nil {
		writeError(w, "references", err, slog.String("slug", slug))
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: refs})
}

// Unresolved handles GET /api/references/unresolved.
//
//	@Summary		Every reference in the vault that failed to resolve
//	@Tags			references
//	@Produce		json
//	@Success		200	{object}	ReferencesResponse
//	@Security		BearerAuth
//	@Router			/references/unresolved [get]
func (h *Handler) Unresolved(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.Unresolved(r.Context())
	if err != nil {
		writeError(w, "unresolved", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: refs})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across published posts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
