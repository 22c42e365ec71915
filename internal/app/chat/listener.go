package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/message"
	"linechat/internal/app/protocol"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/limiter"
	"linechat/internal/pkg/logx"
)

const maxAcceptBackoff = time.Second

// Listener accepts stream connections and runs one session per connection.
type Listener struct {
	addr    string
	manager *Manager
	maxLine int

	// limiter throttles new connections per client IP; nil disables it.
	limiter *limiter.IPRateLimiter

	// structured logger with Listener context.
	logger zerolog.Logger
}

// NewListener creates a listener for addr (host:port). lim may be nil.
func NewListener(addr string, m *Manager, maxLine int, lim *limiter.IPRateLimiter) *Listener {
	return &Listener{
		addr:    addr,
		manager: m,
		maxLine: maxLine,
		limiter: lim,
		logger:  logx.Component("Listener"),
	}
}

// ListenAndServe binds the address and serves until ctx is cancelled.
// A bind failure is returned immediately; failures of single connections never stop the loop.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to bind chat listener on %s: %w", l.addr, err)
	}

	return l.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then closes ln.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat listener started.")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info().Msg("Chat listener stopped.")
				return nil
			}

			backoff = min(max(2*backoff, 5*time.Millisecond), maxAcceptBackoff)
			l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Accept failed.")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		t := NewConnTransport(conn, l.maxLine)
		if !l.limiter.Allow(t.RemoteAddr()) {
			go l.reject(t)
			continue
		}

		l.manager.Go(t)
	}
}

// reject tells a throttled client why it is being dropped, then closes the connection.
func (l *Listener) reject(t Transport) {
	l.logger.Warn().Str("remote_addr", logx.AnonymizeIP(t.RemoteAddr())).Msg("Connection rejected: rate limit exceeded.")

	reason := errs.NewError(errs.ErrRateLimited).Reason
	_ = t.WriteLine(protocol.Encode(message.NewError(reason), ""))
	_ = t.Close()
}
