package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "post.created", Data: map[string]string{"path": "essay.md"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: post.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"essay.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishPostEvent_GraphThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// First event should trigger references.updated.
	b.PublishPostEvent("created", "essay.md")
	// Second event immediately should NOT trigger another references.updated.
	b.PublishPostEvent("updated", "b.md")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	refsCount := 0
	postCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "references.updated") {
				refsCount++
			} else {
				postCount++
			}
		default:
			break loop
		}
	}

	if postCount != 2 {
		t.Errorf("post events = %d, want 2", postCount)
	}
	if refsCount != 1 {
		t.Errorf("references events = %d, want 1 (throttled)", refsCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "post.updated", Data: map[string]string{"path": "draft.md"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: post.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "post.updated", Data: map[string]string{"path": "draft.md"}})
	b.PublishPostEvent("updated", "draft.md")
}

func TestTopicsAreIsolated(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	site := b.Subscribe("")
	defer b.Unsubscribe(site)
	s1 := b.Subscribe("session-1")
	defer b.Unsubscribe(s1)
	s2 := b.Subscribe("session-2")
	defer b.Unsubscribe(s2)

	b.Publish(Event{Type: "view.opened", Topic: "session-1", Data: map[string]int{"index": 0}})

	select {
	case msg := <-s1:
		if !strings.Contains(string(msg), "event: view.opened") || !strings.Contains(string(msg), `"index":0`) {
			t.Errorf("session-1 got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session event")
	}

	time.Sleep(50 * time.Millisecond)
	select {
	case msg := <-s2:
		t.Errorf("session-2 received foreign event %q", msg)
	case msg := <-site:
		t.Errorf("site feed received session event %q", msg)
	default:
	}
}

func TestSSEHandler_Topic(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?topic=abc", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	b.Publish(Event{Type: "post.updated", Data: map[string]string{"path": "essay.md"}})
	b.Publish(Event{Type: "focus.restored", Topic: "abc", Data: map[string]string{"focus": "btn"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: focus.restored") {
		t.Errorf("missing topic event: %q", body)
	}
	if strings.Contains(body, "post.updated") {
		t.Errorf("topic stream received site event: %q", body)
	}
}
