package memory

import (
	"fmt"
	"testing"
	"time"
)

func TestWindow_RetainsRecentExchanges(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	msgs := w.Messages()
	if len(msgs) != 6 {
		t.Fatalf("retained %d messages, want 6", len(msgs))
	}
	if msgs[0].Content != "q3" || msgs[5].Content != "a5" {
		t.Errorf("wrong retention window: first=%q last=%q", msgs[0].Content, msgs[5].Content)
	}
}

func TestWindow_ChronologicalOrder(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	w.AppendExchange("what is a heap?", "a tree-shaped priority structure")
	w.AppendExchange("and a stack?", "last-in first-out storage")

	msgs := w.Messages()
	want := []struct{ role, content string }{
		{RoleUser, "what is a heap?"},
		{RoleAssistant, "a tree-shaped priority structure"},
		{RoleUser, "and a stack?"},
		{RoleAssistant, "last-in first-out storage"},
	}
	for i, m := range msgs {
		if m.Role != want[i].role || m.Content != want[i].content {
			t.Errorf("message %d = {%s, %q}, want {%s, %q}", i, m.Role, m.Content, want[i].role, want[i].content)
		}
	}
}

func TestWindow_EvictsWholePairs(t *testing.T) {
	t.Parallel()

	w := NewWindow(2)
	w.AppendExchange("q1", "a1")
	w.AppendExchange("q2", "a2")
	w.AppendExchange("q3", "a3")

	msgs := w.Messages()
	if len(msgs) != 4 {
		t.Fatalf("retained %d messages, want 4", len(msgs))
	}
	// The window must never open on an assistant message.
	if msgs[0].Role != RoleUser {
		t.Errorf("window starts with role %q, want %q", msgs[0].Role, RoleUser)
	}
	if msgs[0].Content != "q2" {
		t.Errorf("oldest retained message = %q, want q2", msgs[0].Content)
	}
}

func TestWindow_Length(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	if got := w.Length(); got != 0 {
		t.Fatalf("empty window Length = %d, want 0", got)
	}
	w.AppendExchange("q1", "a1")
	w.AppendExchange("q2", "a2")
	if got := w.Length(); got != 2 {
		t.Fatalf("Length = %d, want 2", got)
	}
	// Capacity bounds the count even after many exchanges.
	for i := 0; i < 10; i++ {
		w.AppendExchange("q", "a")
	}
	if got := w.Length(); got != 3 {
		t.Fatalf("Length = %d, want the capacity 3", got)
	}
}

func TestWindow_Clear(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	w.AppendExchange("q", "a")
	w.Clear()
	if got := w.Length(); got != 0 {
		t.Fatalf("Length after Clear = %d, want 0", got)
	}
}

func TestWindow_MessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	w.AppendExchange("q", "a")
	msgs := w.Messages()
	msgs[0].Content = "mutated"
	if w.Messages()[0].Content != "q" {
		t.Error("caller mutation leaked into the window")
	}
}

func TestRegistry_CreatesOnFirstUse(t *testing.T) {
	t.Parallel()

	r := NewRegistry(3, time.Minute)
	w1 := r.Get("alpha")
	w2 := r.Get("alpha")
	if w1 != w2 {
		t.Error("same session returned different windows")
	}
	if r.Get("beta") == w1 {
		t.Error("distinct sessions share a window")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_DefaultSessionIsIsolated(t *testing.T) {
	t.Parallel()

	r := NewRegistry(3, time.Minute)
	r.Get("").AppendExchange("q", "a")
	if got := r.Get("named").Length(); got != 0 {
		t.Errorf("named session sees %d exchanges from the default session", got)
	}
	if got := r.Get("").Length(); got != 1 {
		t.Errorf("default session Length = %d, want 1", got)
	}
}

func TestRegistry_SweepReclaimsIdleSessions(t *testing.T) {
	t.Parallel()

	r := NewRegistry(3, 10*time.Minute)
	r.Get("stale")
	r.Get("fresh")

	// Only sessions idle beyond the TTL go away.
	if dropped := r.Sweep(time.Now()); dropped != 0 {
		t.Fatalf("Sweep dropped %d sessions immediately, want 0", dropped)
	}
	if dropped := r.Sweep(time.Now().Add(11 * time.Minute)); dropped != 2 {
		t.Fatalf("Sweep dropped %d sessions, want 2", dropped)
	}
	if r.Len() != 0 {
		t.Errorf("Len after sweep = %d, want 0", r.Len())
	}
}

func TestRegistry_GetRefreshesIdleTimer(t *testing.T) {
	t.Parallel()

	r := NewRegistry(3, 10*time.Minute)
	r.Get("busy")

	// Touch again; a sweep dated from before the touch must keep it.
	r.Get("busy")
	if dropped := r.Sweep(time.Now().Add(5 * time.Minute)); dropped != 0 {
		t.Fatalf("Sweep dropped %d sessions, want 0", dropped)
	}
}
