package queue

import (
	"context"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Backend is a FIFO store of delivery jobs. Pop never blocks: ok is false
// when the backend is empty.
type Backend interface {
	Name() string
	Push(ctx context.Context, job domain.DeliveryJob) error
	// PushBatch appends jobs in order. Either every job is stored or none is.
	PushBatch(ctx context.Context, jobs []domain.DeliveryJob) error
	Pop(ctx context.Context) (job domain.DeliveryJob, ok bool, err error)
	Len(ctx context.Context) (int64, error)
}
