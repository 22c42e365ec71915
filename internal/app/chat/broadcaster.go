package chat

import (
	"sync"

	"linechat/internal/app/message"
)

// Broadcaster fans messages out to joined sessions and owns the public history cache.
//
// mu serializes history mutation, delivery and registry admission, so a session admitted while a
// public message is in flight either receives it live or finds it in its cache snapshot, never both
// and never neither. Lock order is mu, then Registry.mu or a session's outbound lock.
type Broadcaster struct {
	mu       sync.Mutex
	registry *Registry
	history  *History
}

// NewBroadcaster returns a broadcaster delivering to the sessions in registry.
func NewBroadcaster(registry *Registry, history *History) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		history:  history,
	}
}

// Broadcast delivers msg to every joined session except exclude, which may be nil.
// Public messages are appended to the history cache in the same critical section.
// Delivery is best effort: a session whose queue is full misses the message.
func (b *Broadcaster) Broadcast(msg message.Message, exclude *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Kind == message.KindPublic {
		b.history.Append(msg)
	}

	for _, s := range b.registry.Snapshot() {
		if s == exclude {
			continue
		}
		s.deliver(msg)
	}
}

// BroadcastUserList sends every joined session the accounts in all with their online flags.
// Flags are computed under mu so lists are never delivered out of order with joins and leaves.
func (b *Broadcaster) BroadcastUserList(all []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := message.NewUserList(b.registry.Presence(all))
	for _, s := range b.registry.Snapshot() {
		s.deliver(list)
	}
}

// History returns the cached public messages, oldest first.
func (b *Broadcaster) History() []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.history.Snapshot()
}

// admit registers s and returns the name it joined under together with the cache contents at
// that instant. With reserved set the name is resolved with a numeric suffix, skipping held and
// reserved names; with reserved nil a collision fails the admission.
func (b *Broadcaster) admit(s *Session, desired string, reserved func(string) bool) (string, []message.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := desired
	if reserved != nil {
		name = b.registry.RegisterUnique(s, desired, reserved)
	} else if !b.registry.TryRegister(s, desired) {
		return "", nil, false
	}

	s.assignName(name)
	return name, b.history.Snapshot(), true
}

// remove deregisters s and reports whether it was joined.
func (b *Broadcaster) remove(s *Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.registry.Remove(s)
}
