package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = time.Hour

// MessageCache keeps recently delivered messages per chat in the Redis set
// chat:<id>:messages. It does nothing until a client is attached.
type MessageCache struct {
	client atomic.Pointer[redis.Client]
	ttl    time.Duration
}

func NewMessageCache(ttl time.Duration) *MessageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MessageCache{ttl: ttl}
}

// Attach sets the client used for subsequent writes. It is called once the
// durable Redis connection is up.
func (mc *MessageCache) Attach(client *redis.Client) {
	mc.client.Store(client)
}

func (mc *MessageCache) Attached() bool {
	return mc.client.Load() != nil
}

func key(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

func (mc *MessageCache) Add(ctx context.Context, msg *domain.Message) error {
	client := mc.client.Load()
	if client == nil {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	k := key(msg.ChatID)
	pipe := client.TxPipeline()
	pipe.SAdd(ctx, k, data)
	pipe.Expire(ctx, k, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache message %s: %w", msg.ID, err)
	}
	return nil
}
