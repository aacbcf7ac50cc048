package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/panes/internal/pane"
)

// SessionHandler drives pane sessions over HTTP.
type SessionHandler struct {
	sessions *pane.Sessions
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s *pane.Sessions) *SessionHandler {
	return &SessionHandler{sessions: s}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// session loads the session named by the {id} URL parameter, writing the
// error response itself when it cannot.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*pane.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) writeState(w http.ResponseWriter, s *pane.Session) {
	views, err := s.Manager.Views()
	if err != nil {
		writeError(w, "session views", err, slog.String("session", s.ID))
		return
	}
	preview, err := s.Manager.Preview()
	if err != nil {
		writeError(w, "session preview", err, slog.String("session", s.ID))
		return
	}
	writeJSON(w, http.StatusOK, SessionState{Session: s, Views: views, Preview: preview})
}

// writeResult writes the outcome of a navigation request. A rejected
// reference is reported as 422 together with the outcome.
func writeResult(w http.ResponseWriter, res pane.Result, err error) {
	if err != nil {
		if res.Outcome == pane.OutcomeRejected {
			writeJSON(w, http.StatusUnprocessableEntity, NavigateResponse{Result: res, Error: err.Error()})
			return
		}
		writeError(w, "navigate", err)
		return
	}
	writeJSON(w, http.StatusOK, NavigateResponse{Result: res})
}

// Create handles POST /api/sessions.
//
//	@Summary		Start a pane session
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	true	"Session origin and optional parent"
//	@Success		201		{object}	pane.Session
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Origin == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("origin is required"))
		return
	}
	s, err := h.sessions.Create(req.Origin, req.Parent)
	if err != nil {
		writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// List handles GET /api/sessions.
//
//	@Summary		List live pane sessions
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{object}	SessionListResponse
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: h.sessions.List()})
}

// Get handles GET /api/sessions/{id}.
//
//	@Summary		Session state: open views and hover preview
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeState(w, s)
}

// Delete handles DELETE /api/sessions/{id}.
//
//	@Summary		End a pane session
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session ended"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/sessions/{id}/activate.
//
//	@Summary		Activate a reference (click or keyboard)
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		ActivateRequest	true	"Activated reference"
//	@Success		200		{object}	NavigateResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	NavigateResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/activate [post]
func (h *SessionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.Manager.Activate(req.Content, req.Trigger, req.Focus)
	writeResult(w, res, err)
}

// Navigate handles POST /api/sessions/{id}/navigate.
//
//	@Summary		Navigate to a destination by content
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		ActivateRequest	true	"Navigation request"
//	@Success		200		{object}	NavigateResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	NavigateResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/navigate [post]
func (h *SessionHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.Manager.Navigate(req.Content, req.Trigger, req.Focus)
	writeResult(w, res, err)
}

// Close handles POST /api/sessions/{id}/close.
//
//	@Summary		Close the view at index and every view after it
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		CloseRequest	true	"Index to close from"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/close [post]
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CloseRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.Manager.Close(req.Index); err != nil {
		writeError(w, "close views", err, slog.String("session", s.ID))
		return
	}
	h.writeState(w, s)
}

// CloseAll handles POST /api/sessions/{id}/close-all.
//
//	@Summary		Close every view
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/close-all [post]
func (h *SessionHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Manager.CloseAll(); err != nil {
		writeError(w, "close all views", err, slog.String("session", s.ID))
		return
	}
	h.writeState(w, s)
}

// Key handles POST /api/sessions/{id}/key.
//
//	@Summary		Deliver a key press (Escape closes the top view)
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		KeyRequest	true	"Key name"
//	@Success		200		{object}	SessionState
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/key [post]
func (h *SessionHandler) Key(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req KeyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.Manager.Key(req.Key); err != nil {
		writeError(w, "key", err, slog.String("session", s.ID))
		return
	}
	h.writeState(w, s)
}

// Hover handles POST /api/sessions/{id}/hover.
//
//	@Summary		Pointer events driving the hover preview
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		HoverRequest	true	"Pointer event"
//	@Success		202		"Accepted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/hover [post]
func (h *SessionHandler) Hover(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req HoverRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	switch req.Event {
	case HoverEnter:
		err = s.Manager.PointerEnter(req.Content, req.Trigger, pane.Point{X: req.X, Y: req.Y})
	case HoverLeave:
		err = s.Manager.PointerLeave()
	case HoverPreviewEnter:
		err = s.Manager.PreviewEnter()
	case HoverPreviewLeave:
		err = s.Manager.PreviewLeave()
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown hover event"))
		return
	}
	if err != nil {
		writeError(w, "hover", err, slog.String("session", s.ID))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Message handles POST /api/sessions/{id}/messages.
//
//	@Summary		Deliver a cross-context navigation message
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		MessageRequest	true	"Sender origin and message"
//	@Success		200		{object}	NavigateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/messages [post]
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.Manager.Receive(req.Origin, req.Message)
	writeResult(w, res, err)
}

// EmbedRefused handles POST /api/sessions/{id}/embed-refused.
//
//	@Summary		Report that a view's destination refused to be framed
//	@Tags			sessions
//	@Accept			json
//	@Param			id		path	string				true	"Session id"
//	@Param			body	body	EmbedRefusedRequest	true	"View id"
//	@Success		202		"Fallback emitted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/embed-refused [post]
func (h *SessionHandler) EmbedRefused(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req EmbedRefusedRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.Manager.EmbedRefused(req.ViewID); err != nil {
		writeError(w, "embed refused", err, slog.String("session", s.ID))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
