package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"linechat/internal/pkg/logx"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 15 * time.Second
	drainTimeout       = 5 * time.Second
)

// DispatcherConfig tunes queueing and pacing of code deliveries.
type DispatcherConfig struct {
	// Rate is the sustained number of sends per second.
	Rate float64

	// Burst is the token bucket size.
	Burst int

	// QueueSize caps pending deliveries; further codes are dropped.
	QueueSize int

	// SendTimeout bounds a single Notifier call.
	SendTimeout time.Duration

	// OnResult, when set, is called from the worker after every delivery attempt.
	OnResult func(flow string, err error)
}

type job struct {
	flow  string
	email string
	code  string
}

// Dispatcher runs Notifier calls on a detached worker.
type Dispatcher struct {
	notifier    Notifier
	limiter     *rate.Limiter
	sendTimeout time.Duration

	jobs     chan job
	onResult func(flow string, err error)

	// mu guards closed against concurrent Dispatch and Close.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(n Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		notifier:    n,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		sendTimeout: cfg.SendTimeout,
		jobs:        make(chan job, cfg.QueueSize),
		onResult:    cfg.OnResult,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logx.Component("Notifier"),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Dispatch queues a code for delivery without blocking.
// It returns false when the dispatcher is closed or the queue is full.
func (d *Dispatcher) Dispatch(flow, email, code string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.jobs <- job{flow: flow, email: email, code: code}:
		return true
	default:
		d.logger.Warn().Str("flow", flow).Int("queue_len", len(d.jobs)).Msg("Notifier queue full, dropping code.")
		return false
	}
}

// Close stops accepting codes, gives queued deliveries a short grace period, then abandons the rest.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		d.logger.Warn().Msg("Notifier drain timed out, abandoning queued codes.")
	}

	d.cancel()
	<-done
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("flow", j.flow).Msg("Recovered from panic in notifier.")
		}
	}()

	if err := d.limiter.Wait(d.ctx); err != nil {
		d.report(j.flow, err)
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
	defer cancel()

	err := d.notifier.SendCode(ctx, j.email, j.code)
	if err != nil {
		d.logger.Error().Err(err).Str("flow", j.flow).Msg("Failed to deliver one-time code.")
	} else {
		d.logger.Debug().Str("flow", j.flow).Msg("One-time code delivered.")
	}
	d.report(j.flow, err)
}

func (d *Dispatcher) report(flow string, err error) {
	if d.onResult != nil {
		d.onResult(flow, err)
	}
}
