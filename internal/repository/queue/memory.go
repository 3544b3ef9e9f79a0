package queue

import (
	"context"
	"sync"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

// MemoryBackend is the in-process fallback. Its contents are lost on exit.
type MemoryBackend struct {
	mu       sync.Mutex
	items    []domain.DeliveryJob
	capacity int
}

// NewMemoryBackend returns a FIFO holding at most capacity jobs; 0 means
// unbounded.
func NewMemoryBackend(capacity int) *MemoryBackend {
	return &MemoryBackend{capacity: capacity}
}

func (m *MemoryBackend) Name() string { return BackendMemory }

func (m *MemoryBackend) Push(_ context.Context, job domain.DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capacity > 0 && len(m.items) >= m.capacity {
		return domain.ErrQueueFull
	}
	m.items = append(m.items, job)
	return nil
}

func (m *MemoryBackend) PushBatch(_ context.Context, jobs []domain.DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capacity > 0 && len(m.items)+len(jobs) > m.capacity {
		return domain.ErrQueueFull
	}
	m.items = append(m.items, jobs...)
	return nil
}

// pushFront puts jobs back at the head in the given order, ignoring capacity.
func (m *MemoryBackend) pushFront(jobs ...domain.DeliveryJob) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(append([]domain.DeliveryJob(nil), jobs...), m.items...)
}

// takeAll empties the backend and returns its jobs in FIFO order.
func (m *MemoryBackend) takeAll() []domain.DeliveryJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := m.items
	m.items = nil
	return jobs
}

func (m *MemoryBackend) Pop(_ context.Context) (domain.DeliveryJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return domain.DeliveryJob{}, false, nil
	}
	job := m.items[0]
	m.items[0] = domain.DeliveryJob{}
	m.items = m.items[1:]
	return job, true, nil
}

func (m *MemoryBackend) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}
