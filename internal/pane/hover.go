package pane

import (
	"log/slog"
	"time"
)

// PointerEnter starts the preview debounce for the reference under the
// pointer. A later enter or leave cancels a pending debounce.
func (m *Manager) PointerEnter(content, trigger string, anchor Point) error {
	if m.parent != nil {
		return nil
	}
	if trigger == "" {
		trigger = content
	}
	return m.do(func() {
		m.cancelHover()
		seq := m.hoverSeq
		m.hoverTimer = time.AfterFunc(m.hoverDelay, func() {
			m.post(func() {
				if seq != m.hoverSeq {
					return
				}
				m.hoverTimer = nil
				m.showPreview(content, trigger, anchor)
			})
		})
	})
}

// PointerLeave cancels a pending debounce and hides the preview after the
// grace delay unless the pointer has moved onto the preview by then.
func (m *Manager) PointerLeave() error {
	if m.parent != nil {
		return nil
	}
	return m.do(func() {
		m.cancelHover()
		if m.preview == nil {
			return
		}
		m.cancelHide()
		seq := m.hideSeq
		m.hideTimer = time.AfterFunc(m.hideGrace, func() {
			m.post(func() {
				if seq != m.hideSeq {
					return
				}
				m.hideTimer = nil
				if !m.onPreview {
					m.hidePreview()
				}
			})
		})
	})
}

// PreviewEnter marks the pointer as resting on the preview.
func (m *Manager) PreviewEnter() error {
	if m.parent != nil {
		return nil
	}
	return m.do(func() {
		if m.preview == nil {
			return
		}
		m.onPreview = true
		m.cancelHide()
	})
}

// PreviewLeave hides the preview immediately.
func (m *Manager) PreviewLeave() error {
	if m.parent != nil {
		return nil
	}
	return m.do(func() {
		m.onPreview = false
		m.hidePreview()
	})
}

func (m *Manager) showPreview(content, trigger string, anchor Point) {
	target, err := m.resolver.Resolve(content)
	if err != nil {
		m.logger.Debug("pane: no preview", slog.String("content", content), slog.String("error", err.Error()))
		return
	}
	if target.External {
		return
	}
	m.cancelHide()
	m.onPreview = false
	m.preview = &Preview{Trigger: trigger, URL: target.URL, Anchor: anchor}
	p := *m.preview
	m.host.Emit(Event{Type: EventPreviewShown, Preview: &p})
}

func (m *Manager) hidePreview() {
	m.cancelHide()
	m.onPreview = false
	if m.preview == nil {
		return
	}
	m.preview = nil
	m.host.Emit(Event{Type: EventPreviewHidden})
}

func (m *Manager) cancelHover() {
	m.hoverSeq++
	if m.hoverTimer != nil {
		m.hoverTimer.Stop()
		m.hoverTimer = nil
	}
}

func (m *Manager) cancelHide() {
	m.hideSeq++
	if m.hideTimer != nil {
		m.hideTimer.Stop()
		m.hideTimer = nil
	}
}

func (m *Manager) stopTimers() {
	m.cancelHover()
	m.cancelHide()
}
