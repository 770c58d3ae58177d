// Package memory holds short-term conversation state for the answering
// layer. History is kept in memory only — nothing here is persisted, so a
// restart always begins with a clean slate.
package memory

import (
	"sync"
)

// Message roles as they appear in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one utterance in a conversation.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string
	// Content is the message text.
	Content string
}

// DefaultExchanges is how many question/answer pairs a window retains.
const DefaultExchanges = 3

// Window is a sliding conversation buffer that retains the most recent N
// question/answer exchanges. When a new exchange would exceed the capacity
// the oldest exchange is dropped whole, so the buffer never holds a
// question without its answer. Safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	capacity int // max exchanges
	msgs     []Message
}

// NewWindow constructs a Window retaining the given number of exchanges.
// Non-positive values fall back to DefaultExchanges.
func NewWindow(exchanges int) *Window {
	if exchanges <= 0 {
		exchanges = DefaultExchanges
	}
	return &Window{capacity: exchanges}
}

// AppendExchange records one completed question/answer pair, evicting the
// oldest pair if the window is full.
func (w *Window) AppendExchange(question, answer string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.msgs = append(w.msgs,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
	if max := w.capacity * 2; len(w.msgs) > max {
		w.msgs = append(w.msgs[:0:0], w.msgs[len(w.msgs)-max:]...)
	}
}

// Messages returns the retained history in chronological order. The
// returned slice is a copy.
func (w *Window) Messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// Length reports the number of completed exchanges currently retained,
// counting a question/answer pair as one.
func (w *Window) Length() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs) / 2
}

// Clear discards all retained history.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = nil
}
