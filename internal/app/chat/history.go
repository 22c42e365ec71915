package chat

import "linechat/internal/app/message"

// History is the bounded FIFO of the most recent public messages, oldest first.
// It is not synchronized; the owning Broadcaster serializes every access.
type History struct {
	capacity int
	entries  []message.Message
}

// NewHistory creates a cache holding at most capacity messages.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		capacity: capacity,
		entries:  make([]message.Message, 0, capacity),
	}
}

// Append adds m, evicting the oldest entry when full.
func (h *History) Append(m message.Message) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, m)
}

// Snapshot returns a copy of the cached messages, oldest first.
func (h *History) Snapshot() []message.Message {
	out := make([]message.Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of cached messages.
func (h *History) Len() int {
	return len(h.entries)
}
