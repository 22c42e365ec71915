package chat

import (
	"github.com/rs/zerolog"

	"linechat/internal/app/message"
	"linechat/internal/app/protocol"
	"linechat/internal/pkg/errs"
)

// writePump drains the send channel to the transport until the channel is closed.
func (s *Session) writePump(logger zerolog.Logger) {
	defer close(s.writerDone)

	for line := range s.send {
		if err := s.transport.WriteLine(line); err != nil {
			logger.Debug().Err(err).Msg("Error writing frame, closing transport.")
			_ = s.transport.Close()

			// keep draining so deliver never observes a stalled queue
			for range s.send {
			}
			return
		}
	}
}

// assignName records the joined name. Called by the broadcaster during admission.
func (s *Session) assignName(name string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	s.username = name
	s.logger = s.logger.With().Str("username", name).Logger()
}

// deliver queues m for this session without blocking.
// While the session is replaying history, live messages are held back and released afterwards.
func (s *Session) deliver(m message.Message) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	if s.outClosed {
		return
	}

	if s.replaying {
		if len(s.held) >= sendQueueSize {
			s.dropLocked(m.Kind)
			return
		}
		s.held = append(s.held, m)
		return
	}

	s.enqueueLocked(m)
}

func (s *Session) enqueueLocked(m message.Message) {
	select {
	case s.send <- protocol.Encode(m, s.username):
	default:
		s.dropLocked(m.Kind)
	}
}

func (s *Session) dropLocked(kind message.Kind) {
	s.mgr.metrics.DroppedFrames.Inc()
	s.logger.Warn().
		Str("msg_kind", string(kind)).
		Int("queue_len", len(s.send)).
		Msg("Session send queue full, dropping frame.")
}

// holdLive starts buffering live deliveries until finishReplay or releaseHeld.
func (s *Session) holdLive() {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	s.replaying = true
	s.held = nil
}

// releaseHeld abandons a replay that never started and flushes anything held.
func (s *Session) releaseHeld() {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	held := s.held
	s.replaying = false
	s.held = nil

	for _, m := range held {
		s.enqueueLocked(m)
	}
}

// finishReplay queues the greeting, the stored history, cache entries the store did not return,
// and finally the live messages held during the replay. Messages already queued are skipped by ID.
func (s *Session) finishReplay(greeting message.Message, stored, cached []message.Message) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	seen := make(map[string]struct{}, len(stored)+len(cached)+len(s.held))
	queue := func(m message.Message) {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				return
			}
			seen[m.ID] = struct{}{}
		}
		s.enqueueLocked(m)
	}

	queue(greeting)
	for _, m := range stored {
		queue(m)
	}
	for _, m := range cached {
		queue(m)
	}
	for _, m := range s.held {
		queue(m)
	}

	s.replaying = false
	s.held = nil
}

// sendError queues an ERROR frame carrying the error's reason token.
func (s *Session) sendError(err *errs.CustomError) {
	s.deliver(message.NewError(err.Reason))
}

// sendStoreError logs a store failure and reports it to the client.
func (s *Session) sendStoreError(err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	s.sendError(errs.NewError(errs.ErrStoreFailed))
}
