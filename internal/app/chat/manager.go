/*
Package chat contains the core logic of the line chat service: session state machines, the registry
of joined identities, broadcasting with history replay, and the connection listener.

This file defines the Manager struct, which serves as the central coordinator of the chat system.
It owns the registry and broadcaster, tracks every open session, and shuts them down gracefully.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"linechat/internal/app/store"
	"linechat/internal/app/user"
	"linechat/internal/configs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/metrics"
)

// storeTimeout bounds a single store call made on behalf of a session.
const storeTimeout = 5 * time.Second

// CodeDispatcher hands one-time codes to the out-of-band notifier without blocking.
type CodeDispatcher interface {
	Dispatch(flow, email, code string) bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for one-time code expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics sets the collectors updated by the manager and its sessions.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// Manager struct is responsible for coordinating all chat sessions.
type Manager struct {
	// config holds the application's read-only configuration settings.
	config *configs.AppConfig

	store store.Store
	codes CodeDispatcher

	registry    *Registry
	broadcaster *Broadcaster
	metrics     *metrics.Metrics
	validate    *validator.Validate
	now         func() time.Time

	// ctx is the parent of every store call; cancelled once shutdown completes.
	ctx    context.Context
	cancel context.CancelFunc

	// mu protects sessions and closed.
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	// wg tracks running sessions.
	wg sync.WaitGroup

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs and returns a new Manager instance.
func NewManager(cfg *configs.AppConfig, st store.Store, codes CodeDispatcher, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()

	m := &Manager{
		config:      cfg,
		store:       st,
		codes:       codes,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, NewHistory(cfg.HistoryCacheSize)),
		validate:    newValidator(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
		logger:      logx.Component("Manager"),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNop()
	}

	return m
}

// Registry exposes the registry of joined sessions.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Broadcaster exposes the broadcaster.
func (m *Manager) Broadcaster() *Broadcaster {
	return m.broadcaster
}

// Serve runs a session on t and blocks until it ends.
func (m *Manager) Serve(t Transport) {
	s, ok := m.open(t)
	if !ok {
		_ = t.Close()
		return
	}
	defer m.wg.Done()

	s.run()
}

// Go runs a session on t in its own goroutine.
func (m *Manager) Go(t Transport) {
	go m.Serve(t)
}

// SessionCount returns the number of open sessions in any state.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// Presence lists every registered account with its online flag.
func (m *Manager) Presence(ctx context.Context) ([]user.Presence, error) {
	return m.registry.BuildUserListSnapshot(ctx, m.store)
}

func (m *Manager) open(t Transport) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Warn().Str("remote_addr", t.RemoteAddr()).Msg("Rejecting connection during shutdown.")
		return nil, false
	}

	s := newSession(m, t)
	m.sessions[s.id] = s
	m.wg.Add(1)
	m.metrics.ActiveSessions.Inc()

	return s, true
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.id]; ok {
		delete(m.sessions, s.id)
		m.metrics.ActiveSessions.Dec()
	}
}

// storeContext derives the context for one store call.
func (m *Manager) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, storeTimeout)
}

// refreshUserLists broadcasts the current user list to every joined session.
func (m *Manager) refreshUserLists() {
	ctx, cancel := m.storeContext()
	defer cancel()

	names, err := m.store.ListAllUsernames(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list usernames for user list broadcast.")
		return
	}

	m.broadcaster.BroadcastUserList(names)
}

// Shutdown gracefully shuts down the Manager and every open session.
// It closes all transports and waits up to timeout for the sessions to finish.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.logger.Info().Msg("Shutting down Manager sessions...")

	m.mu.Lock()
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		_ = s.transport.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("Manager shutdown complete.")
	case <-time.After(timeout):
		m.logger.Warn().Dur("timeout", timeout).Int("sessions", len(open)).Msg("Manager shutdown timed out.")
	}

	m.cancel()
}
