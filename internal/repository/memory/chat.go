// Package memory is a process-local chat and message store used for local
// runs (STORE_DRIVER=memory) and tests. Returned values are copies.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/google/uuid"
)

type ChatRepo struct {
	mu    sync.RWMutex
	chats map[string]*domain.Chat
	now   func() time.Time
}

func NewChatRepo() *ChatRepo {
	return &ChatRepo{
		chats: make(map[string]*domain.Chat),
		now:   time.Now,
	}
}

func copyChat(c *domain.Chat) *domain.Chat {
	out := *c
	out.Users = append([]string(nil), c.Users...)
	if c.LatestMessage != nil {
		lm := *c.LatestMessage
		out.LatestMessage = &lm
	}
	return &out
}

func (r *ChatRepo) FindByID(_ context.Context, chatID string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.chats[chatID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	return copyChat(c), nil
}

func (r *ChatRepo) FindByParticipants(_ context.Context, userA, userB string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.chats {
		if len(c.Users) == 2 && c.HasParticipant(userA) && c.HasParticipant(userB) {
			return copyChat(c), nil
		}
	}
	return nil, domain.ErrChatNotFound
}

// Create returns the existing chat for the pair or inserts a new one. The
// lookup and insert share the write lock, so racing first contacts agree.
func (r *ChatRepo) Create(_ context.Context, users []string) (*domain.Chat, error) {
	if len(users) != 2 || users[0] == "" || users[1] == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("A chat needs exactly two users")
	}
	if users[0] == users[1] {
		return nil, domain.ErrInvalidRequest.WithMessage("Cannot start a chat with yourself")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.chats {
		if len(c.Users) == 2 && c.HasParticipant(users[0]) && c.HasParticipant(users[1]) {
			return copyChat(c), nil
		}
	}

	pair := []string{users[0], users[1]}
	sort.Strings(pair)

	now := r.now()
	c := &domain.Chat{
		ID:        uuid.NewString(),
		Users:     pair,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.chats[c.ID] = c
	return copyChat(c), nil
}

func (r *ChatRepo) ListByUser(_ context.Context, userID string) ([]domain.Chat, error) {
	r.mu.RLock()
	out := make([]domain.Chat, 0)
	for _, c := range r.chats {
		if c.HasParticipant(userID) {
			out = append(out, *copyChat(c))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *ChatRepo) UpdateLatest(_ context.Context, chatID string, latest domain.LatestMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	c.LatestMessage = &latest
	c.UpdatedAt = r.now()
	return nil
}
