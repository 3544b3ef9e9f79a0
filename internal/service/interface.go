package service

import (
	"context"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

type ChatRepoIn interface {
	// FindByID returns domain.ErrChatNotFound when no chat has that id.
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	FindByParticipants(ctx context.Context, userA, userB string) (*domain.Chat, error)
	Create(ctx context.Context, users []string) (*domain.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Chat, error)
	UpdateLatest(ctx context.Context, chatID string, latest domain.LatestMessage) error
}

type MessageRepoIn interface {
	Create(ctx context.Context, msg *domain.Message) error
	// FindByID and FindByClientID return domain.ErrMessageNotFound on a miss.
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	FindByClientID(ctx context.Context, chatID, clientMessageID string) (*domain.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]domain.Message, error)
	CountUnseen(ctx context.Context, chatID, readerID string) (int64, error)
	MarkSeen(ctx context.Context, messageIDs []string, at time.Time) error
	// MarkChatSeen marks every unseen message in the chat not sent by readerID
	// and returns their ids.
	MarkChatSeen(ctx context.Context, chatID, readerID string, at time.Time) ([]string, error)
	// UpdateMedia sets the media key of a message owned by sender.
	UpdateMedia(ctx context.Context, messageID, sender, key string) (*domain.Message, error)
}

type MessageCacheIn interface {
	Add(ctx context.Context, msg *domain.Message) error
}

// Emitter pushes events to rooms and single connections.
type Emitter interface {
	EmitToRoom(room, event string, payload any)
	EmitToConnection(connID, event string, payload any)
	InRoom(connID, room string) bool
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.DeliveryJob) error
}

type JobSource interface {
	Dequeue(ctx context.Context) (domain.DeliveryJob, bool, error)
	Ready() <-chan struct{}
}
