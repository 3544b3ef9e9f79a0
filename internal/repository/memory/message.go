package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/google/uuid"
)

type MessageRepo struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Message
	order []string
	now   func() time.Time
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		byID: make(map[string]*domain.Message),
		now:  time.Now,
	}
}

func copyMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.File != nil {
		f := *m.File
		out.File = &f
	}
	if m.SeenAt != nil {
		t := *m.SeenAt
		out.SeenAt = &t
	}
	return &out
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	r.byID[msg.ID] = copyMessage(msg)
	r.order = append(r.order, msg.ID)
	return nil
}

func (r *MessageRepo) FindByID(_ context.Context, messageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(m), nil
}

func (r *MessageRepo) FindByClientID(_ context.Context, chatID, clientMessageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		m := r.byID[id]
		if m.ChatID == chatID && m.ClientMessageID == clientMessageID {
			return copyMessage(m), nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (r *MessageRepo) ListByChat(_ context.Context, chatID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, id := range r.order {
		if m := r.byID[id]; m.ChatID == chatID {
			out = append(out, *copyMessage(m))
		}
	}
	return out, nil
}

func (r *MessageRepo) CountUnseen(_ context.Context, chatID, readerID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, m := range r.byID {
		if m.ChatID == chatID && m.Sender != readerID && !m.Seen {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) MarkSeen(_ context.Context, messageIDs []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		m, ok := r.byID[id]
		if !ok || m.Seen {
			continue
		}
		seenAt := at
		m.Seen = true
		m.SeenAt = &seenAt
		m.UpdatedAt = at
	}
	return nil
}

func (r *MessageRepo) MarkChatSeen(_ context.Context, chatID, readerID string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0)
	for _, id := range r.order {
		m := r.byID[id]
		if m.ChatID != chatID || m.Sender == readerID || m.Seen {
			continue
		}
		seenAt := at
		m.Seen = true
		m.SeenAt = &seenAt
		m.UpdatedAt = at
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MessageRepo) UpdateMedia(_ context.Context, messageID, sender, key string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageID]
	if !ok || m.Sender != sender {
		return nil, domain.ErrMessageNotFound
	}

	switch {
	case m.Kind == domain.KindImage:
		m.Image = &domain.ImageRef{Key: key}
	case m.File != nil:
		m.File.Key = key
	}
	m.UploadStatus = domain.UploadCompleted
	m.UpdatedAt = r.now()
	return copyMessage(m), nil
}

// Len is the number of stored messages.
func (r *MessageRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
