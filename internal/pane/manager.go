// Package pane manages the stack of opened reference views for one browsing
// session, the hover preview and cross-context navigation forwarding.
package pane

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/panes/internal/resolve"
)

var (
	ErrClosed          = errors.New("pane: session closed")
	ErrNested          = errors.New("pane: nested session does not manage views")
	ErrUnknownView     = errors.New("pane: unknown view")
	ErrInvalidIndex    = errors.New("pane: invalid index")
	ErrUntrustedOrigin = errors.New("pane: untrusted origin")
	ErrUnknownMessage  = errors.New("pane: unknown message type")
)

// Default timings for the hover preview.
const (
	DefaultHoverDelay = 400 * time.Millisecond
	DefaultHideGrace  = 100 * time.Millisecond
)

// Resolver maps reference content to a destination.
type Resolver interface {
	Resolve(content string) (resolve.Target, error)
}

// Outcome describes what a navigation request did.
type Outcome string

// Navigation outcomes.
const (
	OutcomeOpened    Outcome = "opened"
	OutcomeFocused   Outcome = "focused"
	OutcomeExternal  Outcome = "external"
	OutcomeRejected  Outcome = "rejected"
	OutcomeForwarded Outcome = "forwarded"
)

// Result is returned by navigation requests.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Index   int     `json:"index"`
	View    *View   `json:"view,omitempty"`
	URL     string  `json:"url,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithID sets the session id used in logs.
func WithID(id string) Option {
	return func(m *Manager) { m.id = id }
}

// WithOrigin sets the origin this instance runs under.
func WithOrigin(origin string) Option {
	return func(m *Manager) { m.origin = origin }
}

// WithParent makes the Manager a nested instance that forwards every
// navigation request to p instead of managing views.
func WithParent(p Parent) Option {
	return func(m *Manager) { m.parent = p }
}

// WithTrustedOrigins sets the origins whose forwarded messages are accepted.
func WithTrustedOrigins(origins ...string) Option {
	return func(m *Manager) {
		for _, o := range origins {
			m.trusted[o] = struct{}{}
		}
	}
}

// WithHoverDelay sets the debounce before a preview is shown.
func WithHoverDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.hoverDelay = d
		}
	}
}

// WithHideGrace sets the delay before a preview is hidden after pointer exit.
func WithHideGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.hideGrace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns the views of one session.
//
// Concurrency model: a single goroutine owns the stack, the preview, the
// captured focus and the hover timers. Public methods hand a command to that
// loop and wait for it, so every event is applied completely and in arrival
// order. Timers post their expiry back into the loop and carry a sequence
// number so a cancelled timer that already fired is ignored.
type Manager struct {
	id         string
	origin     string
	resolver   Resolver
	host       Host
	parent     Parent
	trusted    map[string]struct{}
	hoverDelay time.Duration
	hideGrace  time.Duration
	logger     *slog.Logger

	cmdCh   chan func()
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	// Loop-owned state.
	stack         Stack
	preview       *Preview
	onPreview     bool
	focus         string
	focusCaptured bool
	hoverSeq      uint64
	hoverTimer    *time.Timer
	hideSeq       uint64
	hideTimer     *time.Timer
}

// New starts a Manager. host receives every state change; it may be nil.
func New(r Resolver, host Host, opts ...Option) *Manager {
	m := &Manager{
		resolver:   r,
		host:       host,
		trusted:    make(map[string]struct{}),
		hoverDelay: DefaultHoverDelay,
		hideGrace:  DefaultHideGrace,
		logger:     slog.Default(),
		cmdCh:      make(chan func()),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.host == nil {
		m.host = HostFunc(func(Event) {})
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	m.logger = m.logger.With(slog.String("session", m.id))

	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stopCh:
			m.stopTimers()
			return
		case fn := <-m.cmdCh:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (m *Manager) do(fn func()) error {
	if m.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case m.cmdCh <- func() { fn(); close(done) }:
	case <-m.stopped:
		return ErrClosed
	}
	<-done
	return nil
}

// post hands fn to the loop without waiting; used by timers.
func (m *Manager) post(fn func()) {
	select {
	case m.cmdCh <- fn:
	case <-m.stopped:
	}
}

// Shutdown stops the loop and all pending timers.
func (m *Manager) Shutdown() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
	<-m.stopped
}

// ID returns the session id.
func (m *Manager) ID() string { return m.id }

// Nested reports whether the Manager forwards to a parent context.
func (m *Manager) Nested() bool { return m.parent != nil }

// Activate is the entry point for a user activating a reference element
// (click, Enter or Space). focus identifies the element focused at the time.
func (m *Manager) Activate(content, trigger, focus string) (Result, error) {
	return m.Navigate(content, trigger, focus)
}

// Navigate opens, focuses or externally opens the destination of content.
// In a nested instance the request is forwarded to the parent context,
// addressed to this instance's own origin.
func (m *Manager) Navigate(content, trigger, focus string) (Result, error) {
	if trigger == "" {
		trigger = content
	}
	if m.parent != nil {
		if m.closed.Load() {
			return Result{}, ErrClosed
		}
		msg := Message{Type: MessageNavigate, Content: content, Trigger: trigger}
		if err := m.parent.PostMessage(m.origin, msg); err != nil {
			m.logger.Warn("pane: forward failed", slog.String("content", content), slog.String("error", err.Error()))
			return Result{}, fmt.Errorf("pane: forward: %w", err)
		}
		return Result{Outcome: OutcomeForwarded}, nil
	}

	var (
		res    Result
		navErr error
	)
	if err := m.do(func() { res, navErr = m.navigate(content, trigger, focus) }); err != nil {
		return Result{}, err
	}
	return res, navErr
}

func (m *Manager) navigate(content, trigger, focus string) (Result, error) {
	m.cancelHover()
	m.hidePreview()

	target, err := m.resolver.Resolve(content)
	if err != nil {
		m.logger.Warn("pane: reference rejected", slog.String("content", content), slog.String("error", err.Error()))
		m.host.Emit(Event{Type: EventReferenceRejected, Content: content, Reason: err.Error()})
		return Result{Outcome: OutcomeRejected}, err
	}

	if target.External {
		m.logger.Debug("pane: opening externally", slog.String("url", target.URL))
		m.host.Emit(Event{Type: EventExternalOpened, Content: content, URL: target.URL})
		return Result{Outcome: OutcomeExternal, URL: target.URL}, nil
	}

	if i := m.stack.IndexOf(content); i >= 0 {
		v, _ := m.stack.At(i)
		m.host.Emit(Event{Type: EventViewFocused, Index: i, View: &v})
		return Result{Outcome: OutcomeFocused, Index: i, View: &v, URL: v.URL}, nil
	}

	if m.stack.Len() == 0 {
		m.focus = focus
		m.focusCaptured = true
	}
	v := View{
		ID:            uuid.NewString(),
		Kind:          target.Kind,
		SourceContent: content,
		Trigger:       trigger,
		URL:           target.URL,
	}
	i, _ := m.stack.Open(v)
	m.logger.Debug("pane: view opened", slog.Int("index", i), slog.String("url", v.URL))
	m.host.Emit(Event{Type: EventViewOpened, Index: i, View: &v})
	return Result{Outcome: OutcomeOpened, Index: i, View: &v, URL: v.URL}, nil
}

// Close discards the view at index i and every view opened after it,
// leaving exactly i views. Indexes at or past the end are a no-op.
func (m *Manager) Close(i int) error {
	if m.parent != nil {
		return ErrNested
	}
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	return m.do(func() { m.close(i) })
}

// CloseAll discards every view.
func (m *Manager) CloseAll() error {
	return m.Close(0)
}

func (m *Manager) close(i int) {
	removed := m.stack.Truncate(i)
	if len(removed) > 0 {
		m.logger.Debug("pane: views closed", slog.Int("from", i), slog.Int("count", len(removed)))
		m.host.Emit(Event{Type: EventViewsClosed, Index: i, Views: removed})
	}
	if m.stack.Len() == 0 && m.focusCaptured {
		m.host.Emit(Event{Type: EventFocusRestored, Focus: m.focus})
		m.focus = ""
		m.focusCaptured = false
	}
}

// Key handles a keyboard event not targeted at a reference: Escape closes
// the top view.
func (m *Manager) Key(key string) error {
	if m.parent != nil {
		return ErrNested
	}
	if key != "Escape" {
		return nil
	}
	return m.do(func() {
		if n := m.stack.Len(); n > 0 {
			m.close(n - 1)
		}
	})
}

// Receive handles a message forwarded by a nested context. Messages from
// origins outside the allow-list are logged and dropped.
func (m *Manager) Receive(origin string, msg Message) (Result, error) {
	if m.parent != nil {
		return Result{}, ErrNested
	}
	if _, ok := m.trusted[origin]; !ok {
		m.logger.Warn("pane: rejected message from untrusted origin", slog.String("origin", origin))
		_ = m.do(func() {
			m.host.Emit(Event{Type: EventMessageRejected, Origin: origin, Reason: "untrusted origin"})
		})
		return Result{}, fmt.Errorf("%w: %q", ErrUntrustedOrigin, origin)
	}
	if msg.Type != MessageNavigate {
		m.logger.Debug("pane: ignoring message", slog.String("type", msg.Type))
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return m.Navigate(msg.Content, msg.Trigger, "")
}

// EmbedRefused reports that the view with id could not be rendered in a
// frame; the host is told to offer opening it as a top-level view.
func (m *Manager) EmbedRefused(id string) error {
	if m.parent != nil {
		return ErrNested
	}
	var found bool
	err := m.do(func() {
		i := m.stack.Find(id)
		if i < 0 {
			return
		}
		found = true
		v, _ := m.stack.At(i)
		direct := resolve.DirectURL(resolve.Target{URL: v.URL, Kind: v.Kind})
		m.logger.Info("pane: embed refused", slog.String("url", v.URL))
		m.host.Emit(Event{Type: EventEmbedFallback, Index: i, View: &v, URL: direct})
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	return nil
}

// Views returns a snapshot of the open views.
func (m *Manager) Views() ([]View, error) {
	var out []View
	err := m.do(func() { out = m.stack.Views() })
	return out, err
}

// Preview returns the live hover preview, if any.
func (m *Manager) Preview() (*Preview, error) {
	var out *Preview
	err := m.do(func() {
		if m.preview != nil {
			p := *m.preview
			out = &p
		}
	})
	return out, err
}
