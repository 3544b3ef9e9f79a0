package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/metrics"
)

type selector struct {
	backend Backend
}

// Queue fronts the in-memory fallback and, once promoted, a durable backend.
// Enqueue always succeeds while the fallback has room.
type Queue struct {
	// mu is held for reading by Enqueue/Dequeue and for writing by Promote,
	// so the fallback drain cannot interleave with new pushes.
	mu       sync.RWMutex
	fallback *MemoryBackend
	durable  atomic.Pointer[selector]

	ready chan struct{}
	log   *slog.Logger
}

func New(fallback *MemoryBackend, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	metrics.SetActiveBackend(BackendMemory, BackendMemory, BackendRedis)

	return &Queue{
		fallback: fallback,
		ready:    make(chan struct{}, 1),
		log:      log,
	}
}

// Ready is signalled after every successful enqueue.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) ActiveName() string {
	if s := q.durable.Load(); s != nil {
		return s.backend.Name()
	}
	return q.fallback.Name()
}

func (q *Queue) Enqueue(ctx context.Context, job domain.DeliveryJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if s := q.durable.Load(); s != nil {
		err := s.backend.Push(ctx, job)
		if err == nil {
			metrics.QueueEnqueued.WithLabelValues(s.backend.Name()).Inc()
			q.signal()
			return nil
		}
		q.log.Warn("Durable enqueue failed, using fallback",
			"backend", s.backend.Name(),
			"chatId", job.ChatID,
			"error", err,
		)
		metrics.QueueRedirected.Inc()
	}

	if err := q.fallback.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue to fallback: %w", err)
	}
	metrics.QueueEnqueued.WithLabelValues(q.fallback.Name()).Inc()
	q.signal()
	return nil
}

// Dequeue takes the next job without blocking. The durable backend is read
// first; redirected or pre-promotion jobs in the fallback are served after it.
func (q *Queue) Dequeue(ctx context.Context) (domain.DeliveryJob, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if s := q.durable.Load(); s != nil {
		for {
			job, ok, err := s.backend.Pop(ctx)
			if err != nil && ok {
				q.log.Warn("Discarding malformed job", "backend", s.backend.Name(), "error", err)
				metrics.DeliveryJobs.WithLabelValues(metrics.OutcomeDiscarded).Inc()
				continue
			}
			if err != nil {
				q.log.Warn("Durable dequeue failed", "backend", s.backend.Name(), "error", err)
				break
			}
			if !ok {
				break
			}
			metrics.QueueDequeued.WithLabelValues(s.backend.Name()).Inc()
			return job, true, nil
		}
	}

	job, ok, err := q.fallback.Pop(ctx)
	if err != nil || !ok {
		return domain.DeliveryJob{}, false, err
	}
	metrics.QueueDequeued.WithLabelValues(q.fallback.Name()).Inc()
	return job, true, nil
}

// Promote moves every pending fallback job into b in one batch, then makes
// b the active backend. If the batch fails nothing has moved: the jobs go
// back to the head of the fallback and the selector is left unchanged.
func (q *Queue) Promote(ctx context.Context, b Backend) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := q.fallback.takeAll()
	if len(jobs) > 0 {
		if err := b.PushBatch(ctx, jobs); err != nil {
			q.fallback.pushFront(jobs...)
			return fmt.Errorf("drain %d fallback jobs into %s: %w", len(jobs), b.Name(), err)
		}
	}
	moved := len(jobs)

	q.durable.Store(&selector{backend: b})
	metrics.SetActiveBackend(b.Name(), BackendMemory, BackendRedis)
	q.log.Info("Queue promoted", "backend", b.Name(), "drained", moved)

	if moved > 0 {
		q.signal()
	}
	return nil
}

// Pending is the number of jobs waiting across both backends.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	total, _ := q.fallback.Len(ctx)
	if s := q.durable.Load(); s != nil {
		n, err := s.backend.Len(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Close releases the durable backend if it holds a connection.
func (q *Queue) Close() error {
	s := q.durable.Load()
	if s == nil {
		return nil
	}
	if c, ok := s.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// IsFull reports whether err came from a full fallback.
func IsFull(err error) bool {
	return errors.Is(err, domain.ErrQueueFull)
}
