package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "idle"
}

// Connector opens the durable backend. ctx carries the connect deadline.
type Connector func(ctx context.Context) (Backend, error)

type ReconcilerConfig struct {
	ConnectTimeout time.Duration
	Interval       time.Duration
	// Attempts bounds connection attempts; 0 retries until the context ends.
	Attempts uint64
}

// Reconciler connects the durable backend in the background and promotes
// the queue once it is reachable.
type Reconciler struct {
	queue   *Queue
	connect Connector
	cfg     ReconcilerConfig
	log     *slog.Logger

	state atomic.Int32
	done  chan struct{}
}

func NewReconciler(q *Queue, connect Connector, cfg ReconcilerConfig, log *slog.Logger) *Reconciler {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		queue:   q,
		connect: connect,
		cfg:     cfg,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// Start launches the connect loop and returns immediately.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Done is closed when the loop has stopped.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	b := retry.NewConstant(r.cfg.Interval)
	if r.cfg.Attempts > 0 {
		b = retry.WithMaxRetries(r.cfg.Attempts-1, b)
	}

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.attempt(ctx); err != nil {
			r.setState(StateFailed)
			r.log.Warn("Durable queue unavailable, staying on fallback",
				"next_attempt_in", r.cfg.Interval,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.log.Info("Queue reconciler stopped", "state", r.State().String())
	default:
		r.log.Error("Queue reconciler gave up", "attempts", r.cfg.Attempts, "error", err)
	}
}

func (r *Reconciler) attempt(ctx context.Context) error {
	r.setState(StateConnecting)

	cctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	backend, err := r.connect(cctx)
	if err != nil {
		return err
	}
	if err := r.queue.Promote(ctx, backend); err != nil {
		if c, ok := backend.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return err
	}

	r.setState(StateConnected)
	r.log.Info("Durable queue connected", "backend", backend.Name())
	return nil
}

func (r *Reconciler) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		r.log.Debug("Queue reconciler state", "from", prev.String(), "to", s.String())
	}
}
