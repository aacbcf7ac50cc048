package pane

import "github.com/starford/panes/internal/bracket"

// View is one open pane.
type View struct {
	ID            string       `json:"id"`
	Kind          bracket.Kind `json:"kind"`
	SourceContent string       `json:"source_content"`
	Trigger       string       `json:"trigger"`
	URL           string       `json:"url"`
}

// Stack is the ordered collection of open views. At most one view exists per
// SourceContent, and views are only ever removed together with everything
// opened after them.
type Stack struct {
	views []View
}

// Len returns the number of open views.
func (s *Stack) Len() int {
	return len(s.views)
}

// IndexOf returns the index of the view opened for content, or -1.
func (s *Stack) IndexOf(content string) int {
	for i, v := range s.views {
		if v.SourceContent == content {
			return i
		}
	}
	return -1
}

// Find returns the index of the view with the given id, or -1.
func (s *Stack) Find(id string) int {
	for i, v := range s.views {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// At returns the view at index i.
func (s *Stack) At(i int) (View, bool) {
	if i < 0 || i >= len(s.views) {
		return View{}, false
	}
	return s.views[i], true
}

// Open appends v unless a view for the same SourceContent is already open.
// It returns the index of the (new or existing) view and whether v was added.
func (s *Stack) Open(v View) (int, bool) {
	if i := s.IndexOf(v.SourceContent); i >= 0 {
		return i, false
	}
	s.views = append(s.views, v)
	return len(s.views) - 1, true
}

// Truncate keeps the first i views and returns the discarded ones in stack
// order. i is clamped to [0, Len()].
func (s *Stack) Truncate(i int) []View {
	if i < 0 {
		i = 0
	}
	if i >= len(s.views) {
		return nil
	}
	removed := make([]View, len(s.views)-i)
	copy(removed, s.views[i:])
	clear(s.views[i:])
	s.views = s.views[:i]
	return removed
}

// Views returns a copy of the open views.
func (s *Stack) Views() []View {
	out := make([]View, len(s.views))
	copy(out, s.views)
	return out
}
