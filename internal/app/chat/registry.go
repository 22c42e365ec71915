package chat

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"linechat/internal/app/user"
)

// UsernameLister is the part of the store the registry needs to build user lists.
type UsernameLister interface {
	ListAllUsernames(ctx context.Context) ([]string, error)
}

type registryEntry struct {
	session *Session
	name    string
}

// Registry is the concurrency-safe set of joined sessions.
// No two entries hold names that are equal under case folding.
type Registry struct {
	// mu protects both maps.
	mu sync.RWMutex

	// byID maps session IDs to their entry.
	byID map[string]registryEntry

	// byName maps lower-cased names to session IDs.
	byName map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]registryEntry),
		byName: make(map[string]string),
	}
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

// ResolveUniqueName returns desired if no joined session uses it, otherwise desired followed by
// the smallest positive integer that makes it unique. The answer is only a hint; use
// RegisterUnique to claim a name.
func (r *Registry) ResolveUniqueName(desired string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.resolveLocked(desired, nil)
}

// resolveLocked skips names held by a session and names for which reserved, if non-nil, reports true.
func (r *Registry) resolveLocked(desired string, reserved func(string) bool) string {
	free := func(name string) bool {
		if _, held := r.byName[nameKey(name)]; held {
			return false
		}
		return reserved == nil || !reserved(name)
	}

	if free(desired) {
		return desired
	}

	for suffix := 1; ; suffix++ {
		candidate := desired + strconv.Itoa(suffix)
		if free(candidate) {
			return candidate
		}
	}
}

// TryRegister inserts s under exactly name, failing if the name is already held.
func (r *Registry) TryRegister(s *Session, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[nameKey(name)]; taken {
		return false
	}
	if _, exists := r.byID[s.id]; exists {
		return false
	}

	r.insertLocked(s, name)
	return true
}

// RegisterUnique resolves desired against the current entries and inserts s in one step.
// Names matched by reserved are never handed out; reserved may be nil.
// It returns the name s was registered under.
func (r *Registry) RegisterUnique(s *Session, desired string, reserved func(string) bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.byID[s.id]; exists {
		return entry.name
	}

	name := r.resolveLocked(desired, reserved)
	r.insertLocked(s, name)
	return name
}

func (r *Registry) insertLocked(s *Session, name string) {
	r.byID[s.id] = registryEntry{session: s, name: name}
	r.byName[nameKey(name)] = s.id
}

// Remove deletes s and reports whether it was registered.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[s.id]
	if !ok {
		return false
	}

	delete(r.byID, s.id)
	if r.byName[nameKey(entry.name)] == s.id {
		delete(r.byName, nameKey(entry.name))
	}
	return true
}

// FindByName returns the session joined under name, compared case-insensitively.
func (r *Registry) FindByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[nameKey(name)]
	if !ok {
		return nil, false
	}
	return r.byID[id].session, true
}

// Snapshot returns the joined sessions at the time of the call.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.byID, func(_ string, entry registryEntry) *Session {
		return entry.session
	})
}

// Len returns the number of joined sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// Presence pairs every name in all with its online flag.
func (r *Registry) Presence(all []string) []user.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(all, func(name string, _ int) user.Presence {
		_, online := r.byName[nameKey(name)]
		return user.Presence{Username: name, Online: online}
	})
}

// BuildUserListSnapshot lists every stored username with its online flag.
func (r *Registry) BuildUserListSnapshot(ctx context.Context, lister UsernameLister) ([]user.Presence, error) {
	all, err := lister.ListAllUsernames(ctx)
	if err != nil {
		return nil, err
	}
	return r.Presence(all), nil
}
