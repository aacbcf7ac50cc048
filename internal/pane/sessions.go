package pane

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownSession = errors.New("pane: unknown session")
	ErrOriginMismatch = errors.New("pane: target origin does not match parent")
)

// Session is one live Manager plus its identity.
type Session struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Manager *Manager `json:"-"`

	seq uint64
}

// Sessions is the registry of live managers keyed by session id.
type Sessions struct {
	resolver Resolver
	hostFor  func(id string) Host
	opts     []Option

	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
}

// NewSessions returns an empty registry. hostFor builds the Host of each new
// session; opts are applied to every Manager it creates.
func NewSessions(r Resolver, hostFor func(id string) Host, opts ...Option) *Sessions {
	return &Sessions{
		resolver: r,
		hostFor:  hostFor,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session running under origin. A non-empty parentID makes
// it a nested session that forwards navigation to that parent.
func (s *Sessions) Create(origin, parentID string) (*Session, error) {
	id := uuid.NewString()

	opts := append([]Option{}, s.opts...)
	opts = append(opts, WithID(id), WithOrigin(origin))
	if parentID != "" {
		if _, err := s.Get(parentID); err != nil {
			return nil, err
		}
		opts = append(opts, WithParent(&sessionParent{sessions: s, parentID: parentID, childOrigin: origin}))
	}

	var host Host
	if s.hostFor != nil {
		host = s.hostFor(id)
	}
	sess := &Session{
		ID:        id,
		Origin:    origin,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
		Manager:   New(s.resolver, host, opts...),
	}

	s.mu.Lock()
	s.seq++
	sess.seq = s.seq
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns the session with id.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess, nil
}

// List returns all sessions in creation order.
func (s *Sessions) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Delete shuts a session down and removes it.
func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sess.Manager.Shutdown()
	return nil
}

// Close shuts every session down.
func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Manager.Shutdown()
	}
}

// sessionParent delivers a nested session's messages to its parent session,
// the way a browser delivers postMessage: only when the parent's origin
// matches the target origin, and tagged with the sender's origin.
type sessionParent struct {
	sessions    *Sessions
	parentID    string
	childOrigin string
}

func (p *sessionParent) PostMessage(targetOrigin string, msg Message) error {
	parent, err := p.sessions.Get(p.parentID)
	if err != nil {
		return err
	}
	if parent.Origin != targetOrigin {
		parent.Manager.logger.Debug("pane: message dropped",
			slog.String("target_origin", targetOrigin),
			slog.String("parent_origin", parent.Origin))
		return fmt.Errorf("%w: %q", ErrOriginMismatch, targetOrigin)
	}
	_, err = parent.Manager.Receive(p.childOrigin, msg)
	return err
}
