package chat

import (
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/message"
	"linechat/internal/app/protocol"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/randx"
)

const (
	// capacity of a session's outbound frame queue.
	sendQueueSize = 512

	// how long close waits for the write pump to flush queued frames.
	writerDrainTimeout = 2 * time.Second
)

// State is a session's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection through authentication into the chat.
//
// The read loop owns state, pending and username writes. Other goroutines only reach a session
// through deliver, which is guarded by outMu.
type Session struct {
	id        string
	transport Transport
	mgr       *Manager

	state atomic.Int32

	// pending is the in-progress authentication flow, nil when none.
	pending pendingAuth

	// outMu guards username, logger, the replay buffer and the send channel's open flag.
	outMu     sync.Mutex
	username  string
	replaying bool
	held      []message.Message
	outClosed bool

	// a buffered channel used to queue frames waiting to be written to the transport.
	send       chan string
	writerDone chan struct{}

	closeOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

func newSession(m *Manager, t Transport) *Session {
	id := randx.SessionID()

	return &Session{
		id:         id,
		transport:  t,
		mgr:        m,
		send:       make(chan string, sendQueueSize),
		writerDone: make(chan struct{}),
		logger: logx.Logger().With().
			Str("session_id", id).
			Str("remote_addr", logx.AnonymizeIP(t.RemoteAddr())).
			Logger(),
	}
}

// ID returns the connection identity.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Username returns the name the session joined under, or "" before joining.
func (s *Session) Username() string {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	return s.username
}

// run is the read loop. It returns once the transport fails or the client quits.
func (s *Session) run() {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Recovered from panic in session.")
		}
	}()

	go s.writePump(s.logger)

	s.setState(StateAuthenticating)
	s.extendIdleDeadline()
	s.logger.Debug().Msg("Session started.")

	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.handleLine(line) {
			return
		}

		if s.State() == StateAuthenticating {
			s.extendIdleDeadline()
		}
	}
}

func (s *Session) logReadError(err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, ErrLineTooLong):
		s.logger.Warn().Msg("Client sent an oversized line, closing.")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info().Msg("Authentication idle timeout reached, closing.")
	case errors.Is(err, net.ErrClosed):
		s.logger.Debug().Msg("Connection closed.")
	default:
		s.logger.Debug().Err(err).Msg("Read failed, closing.")
	}
}

func (s *Session) extendIdleDeadline() {
	if err := s.transport.SetReadDeadline(time.Now().Add(s.mgr.config.AuthIdleTimeout)); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to set read deadline.")
	}
}

// handleLine routes one inbound line and reports whether the session should keep reading.
func (s *Session) handleLine(line string) bool {
	cmd, perr := protocol.Parse(line)
	if perr != nil {
		s.sendError(perr)
		return true
	}

	if cmd.Verb == protocol.VerbQuit {
		s.logger.Info().Msg("Client quit.")
		return false
	}

	if s.State() == StateJoined {
		s.dispatchChatLine(cmd)
		return true
	}

	s.handleAuthCommand(cmd)
	return true
}

// dispatchChatLine handles commands of a joined session.
func (s *Session) dispatchChatLine(cmd protocol.Command) {
	switch cmd.Verb {
	case protocol.VerbChat:
		if strings.TrimSpace(cmd.Text) == "" {
			return
		}
		s.handlePublicMessage(cmd.Text)

	case protocol.VerbPM:
		s.handlePrivateMessage(cmd.Arg(0), cmd.Text)

	case protocol.VerbUsers:
		s.sendUserList()

	default:
		s.sendError(errs.NewError(errs.ErrAlreadyLoggedIn))
	}
}

func (s *Session) handlePublicMessage(body string) {
	msg := message.NewPublic(s.username, body)

	ctx, cancel := s.mgr.storeContext()
	err := s.mgr.store.AppendMessage(ctx, msg)
	cancel()
	if err != nil {
		s.sendStoreError(err, "Failed to persist public message.")
	}

	s.mgr.broadcaster.Broadcast(msg, s)
	s.mgr.metrics.MessagesTotal.WithLabelValues("public").Inc()
}

// handlePrivateMessage persists the message, then delivers it to the target and echoes it to the
// sender, or tells the sender the target is offline.
func (s *Session) handlePrivateMessage(target, body string) {
	if !isValidName(target) {
		s.sendError(errs.NewError(errs.ErrBadPrivateMessage))
		return
	}

	msg := message.NewPrivate(s.username, target, body)

	ctx, cancel := s.mgr.storeContext()
	err := s.mgr.store.AppendMessage(ctx, msg)
	cancel()
	if err != nil {
		s.sendStoreError(err, "Failed to persist private message.")
	}
	s.mgr.metrics.MessagesTotal.WithLabelValues("private").Inc()

	recipient, online := s.mgr.registry.FindByName(target)
	if !online {
		s.deliver(message.NewSystem(target + " is offline. Message saved."))
		return
	}

	if recipient != s {
		recipient.deliver(msg)
	}
	s.deliver(msg)
}

func (s *Session) sendUserList() {
	ctx, cancel := s.mgr.storeContext()
	defer cancel()

	names, err := s.mgr.store.ListAllUsernames(ctx)
	if err != nil {
		s.sendStoreError(err, "Failed to list usernames.")
		return
	}

	s.deliver(message.NewUserList(s.mgr.registry.Presence(names)))
}

// join admits the session under desired, replays history, then announces it.
// A non-nil reserved marks a guest join: the name gets a numeric suffix instead of colliding,
// never lands on a name reserved reports, and only public history is replayed.
// It reports false when the name is held by another joined session.
func (s *Session) join(desired string, greeting message.Kind, reserved func(string) bool) bool {
	s.holdLive()

	name, cached, ok := s.mgr.broadcaster.admit(s, desired, reserved)
	if !ok {
		s.releaseHeld()
		s.mgr.metrics.AuthFailures.WithLabelValues("already_online").Inc()
		s.sendError(errs.NewError(errs.ErrAlreadyOnline))
		return false
	}

	s.setState(StateJoined)
	s.pending = nil

	ctx, cancel := s.mgr.storeContext()
	stored, err := s.mgr.store.FetchRecentHistory(ctx, name, s.mgr.config.HistoryReplayLimit)
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch history, replaying cache only.")
	}
	if reserved != nil {
		stored = publicMessages(stored)
	}

	s.finishReplay(message.NewEvent(greeting, name), stored, cached)

	if err := s.transport.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to clear read deadline.")
	}

	s.mgr.metrics.JoinedSessions.Inc()
	s.logger.Info().Int("online", s.mgr.registry.Len()).Msg("Session joined.")

	s.mgr.broadcaster.Broadcast(message.NewEvent(message.KindUserJoined, name), s)
	s.mgr.refreshUserLists()
	return true
}

func publicMessages(msgs []message.Message) []message.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Kind == message.KindPublic {
			out = append(out, m)
		}
	}
	return out
}

// leave deregisters a joined session and announces its departure.
func (s *Session) leave() {
	if !s.mgr.broadcaster.remove(s) {
		return
	}

	s.mgr.metrics.JoinedSessions.Dec()
	s.logger.Info().Int("online", s.mgr.registry.Len()).Msg("Session left.")

	s.mgr.broadcaster.Broadcast(message.NewEvent(message.KindUserLeft, s.username), nil)
	s.mgr.refreshUserLists()
}

// close tears the session down exactly once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		wasJoined := s.State() == StateJoined
		s.setState(StateClosed)

		if wasJoined {
			s.leave()
		}

		s.outMu.Lock()
		s.outClosed = true
		s.held = nil
		close(s.send)
		s.outMu.Unlock()

		select {
		case <-s.writerDone:
		case <-time.After(writerDrainTimeout):
			s.logger.Warn().Msg("Write pump did not drain in time.")
		}

		if err := s.transport.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Transport close error.")
		}

		s.mgr.forget(s)
		s.logger.Debug().Msg("Session closed.")
	})
}
