package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "message_queue"

// RedisBackend keeps jobs as JSON in a Redis list: RPUSH to enqueue, LPOP
// to dequeue.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultKey
	}
	return &RedisBackend{
		client: client,
		key:    key,
	}
}

func (r *RedisBackend) Name() string { return BackendRedis }

func (r *RedisBackend) Push(ctx context.Context, job domain.DeliveryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", r.key, err)
	}
	return nil
}

// PushBatch sends every job in a single RPUSH, so a failure stores none.
func (r *RedisBackend) PushBatch(ctx context.Context, jobs []domain.DeliveryJob) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]any, 0, len(jobs))
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		values = append(values, data)
	}
	if err := r.client.RPush(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", r.key, err)
	}
	return nil
}

// Pop returns ok=true with an ErrInvalidJob error when the head payload was
// removed but could not be decoded.
func (r *RedisBackend) Pop(ctx context.Context) (domain.DeliveryJob, bool, error) {
	data, err := r.client.LPop(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DeliveryJob{}, false, nil
	}
	if err != nil {
		return domain.DeliveryJob{}, false, fmt.Errorf("lpop %s: %w", r.key, err)
	}

	job, err := domain.DecodeJob(data)
	if err != nil {
		return domain.DeliveryJob{}, true, err
	}
	return job, true, nil
}

func (r *RedisBackend) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
