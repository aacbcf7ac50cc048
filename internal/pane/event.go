package pane

// EventType names a change the host UI must reflect.
type EventType string

// Event types emitted to the Host.
const (
	EventViewOpened        EventType = "view.opened"
	EventViewFocused       EventType = "view.focused"
	EventViewsClosed       EventType = "views.closed"
	EventExternalOpened    EventType = "external.opened"
	EventPreviewShown      EventType = "preview.shown"
	EventPreviewHidden     EventType = "preview.hidden"
	EventFocusRestored     EventType = "focus.restored"
	EventEmbedFallback     EventType = "embed.fallback"
	EventReferenceRejected EventType = "reference.rejected"
	EventMessageRejected   EventType = "message.rejected"
)

// Point is a viewport position used to anchor the hover preview.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Preview is the hover preview; at most one is live per session.
type Preview struct {
	Trigger string `json:"trigger"`
	URL     string `json:"url"`
	Anchor  Point  `json:"anchor"`
}

// Event describes one state change. Only the fields relevant to Type are set.
type Event struct {
	Type    EventType `json:"type"`
	Index   int       `json:"index"`
	View    *View     `json:"view,omitempty"`
	Views   []View    `json:"views,omitempty"`
	Preview *Preview  `json:"preview,omitempty"`
	URL     string    `json:"url,omitempty"`
	Content string    `json:"content,omitempty"`
	Focus   string    `json:"focus,omitempty"`
	Origin  string    `json:"origin,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Host is the UI layer driven by a Manager. Emit is called from the
// manager's loop and must not call back into the same Manager synchronously.
type Host interface {
	Emit(ev Event)
}

// HostFunc adapts a function to Host.
type HostFunc func(ev Event)

// Emit calls f(ev).
func (f HostFunc) Emit(ev Event) { f(ev) }

// MessageNavigate is the type tag of forwarded navigation requests.
const MessageNavigate = "panes:navigate"

// Message is the cross-context navigation request a nested instance posts
// to its embedding parent.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Trigger string `json:"trigger"`
}

// Parent is the embedding context of a nested Manager.
type Parent interface {
	// PostMessage delivers msg to the parent, which only accepts it when
	// its own origin equals targetOrigin.
	PostMessage(targetOrigin string, msg Message) error
}
