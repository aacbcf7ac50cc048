package api

import (
	"github.com/starford/panes/internal/bracket"
	"github.com/starford/panes/internal/index"
	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/postservice"
	"github.com/starford/panes/internal/resolve"
)

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Slug        string   `json:"slug" example:"beyond-the-boxes" validate:"required"`
	Title       string   `json:"title" example:"Beyond the Boxes" validate:"required"`
	Date        string   `json:"date" example:"2024-05-01" validate:"required"`
	Description string   `json:"description" example:"Notes on framing" validate:"required"`
	Draft       bool     `json:"draft"`
	Islands     []string `json:"islands,omitempty"`
	Body        string   `json:"body" example:"See [[the demo:demo-artifact]]."`
}

// UpdatePostRequest is the request body for replacing a post file.
type UpdatePostRequest struct {
	Content string `json:"content" example:"---\ntitle: Updated\n---\nBody" validate:"required"`
}

// RenamePostRequest is the payload for POST /api/posts/{slug}/rename.
type RenamePostRequest struct {
	Slug string `json:"slug" example:"new-slug" validate:"required"`
}

// PostDetail is the full post response type (aliased from the domain layer).
type PostDetail = postservice.PostDetail

// PostListItem is a lightweight item in a list response (aliased from the domain layer).
type PostListItem = postservice.PostListItem

// PostListResponse wraps paginated post listings.
type PostListResponse struct {
	Posts []PostListItem `json:"posts" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse wraps the posts referencing a post.
type BacklinksResponse struct {
	Backlinks []index.Backlink `json:"backlinks" validate:"required"`
}

// ReferencesResponse wraps indexed references.
type ReferencesResponse struct {
	References []index.RefRow `json:"references" validate:"required"`
}

// ParseRequest is the request body for POST /parse.
type ParseRequest struct {
	Text string `json:"text" example:"Check [[this demo:abc123]]" validate:"required"`
}

// ParseResponse carries the parsed segments and their markup.
type ParseResponse struct {
	Segments []bracket.Segment `json:"segments" validate:"required"`
	HTML     string            `json:"html" validate:"required"`
	Display  string            `json:"display" validate:"required"`
}

// ResolveResponse is a resolved destination plus its unframed form.
type ResolveResponse struct {
	Target    resolve.Target `json:"target" validate:"required"`
	DirectURL string         `json:"direct_url" validate:"required"`
}

// CreateSessionRequest starts a pane session.
type CreateSessionRequest struct {
	Origin string `json:"origin" example:"https://blog.example.com" validate:"required"`
	Parent string `json:"parent,omitempty"`
}

// SessionListResponse wraps live sessions.
type SessionListResponse struct {
	Sessions []*pane.Session `json:"sessions" validate:"required"`
}

// SessionState is a session with its open views and preview.
type SessionState struct {
	Session *pane.Session `json:"session" validate:"required"`
	Views   []pane.View   `json:"views" validate:"required"`
	Preview *pane.Preview `json:"preview,omitempty"`
}

// ActivateRequest is an activated reference or navigation request.
type ActivateRequest struct {
	Content string `json:"content" example:"abc123" validate:"required"`
	Trigger string `json:"trigger" example:"this demo"`
	// Focus identifies the element focused before activation.
	Focus string `json:"focus,omitempty"`
}

// NavigateResponse reports a navigation outcome.
type NavigateResponse struct {
	pane.Result
	Error string `json:"error,omitempty"`
}

// CloseRequest closes views from Index on.
type CloseRequest struct {
	Index int `json:"index"`
}

// KeyRequest delivers a key press.
type KeyRequest struct {
	Key string `json:"key" example:"Escape" validate:"required"`
}

// Hover event names.
const (
	HoverEnter        = "enter"
	HoverLeave        = "leave"
	HoverPreviewEnter = "preview-enter"
	HoverPreviewLeave = "preview-leave"
)

// HoverRequest is a pointer event over a reference or its preview.
type HoverRequest struct {
	Event   string  `json:"event" example:"enter" enums:"enter,leave,preview-enter,preview-leave" validate:"required"`
	Content string  `json:"content,omitempty"`
	Trigger string  `json:"trigger,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// MessageRequest is a cross-context message and its sender origin.
type MessageRequest struct {
	Origin  string       `json:"origin" example:"https://embed.example.com" validate:"required"`
	Message pane.Message `json:"message" validate:"required"`
}

// EmbedRefusedRequest names the view whose destination refused framing.
type EmbedRefusedRequest struct {
	ViewID string `json:"view_id" validate:"required"`
}

// AssetUploadResponse is returned after a successful asset upload.
type AssetUploadResponse struct {
	Filename string `json:"filename" example:"diagram.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/assets/diagram.png" validate:"required"`
	Markdown string `json:"markdown" example:"![diagram.png](/assets/diagram.png)" validate:"required"`
}
