package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

// ChatService implements the HTTP-facing chat operations. Sends either go
// through the delivery queue or are delivered inline by the Deliverer.
type ChatService struct {
	chats     ChatRepoIn
	messages  MessageRepoIn
	queue     Enqueuer
	deliverer *Deliverer
	emitter   Emitter
	presence  *Presence
	log       *slog.Logger
	now       func() time.Time
}

func NewChatService(
	chats ChatRepoIn,
	messages MessageRepoIn,
	queue Enqueuer,
	deliverer *Deliverer,
	emitter Emitter,
	presence *Presence,
	log *slog.Logger,
) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{
		chats:     chats,
		messages:  messages,
		queue:     queue,
		deliverer: deliverer,
		emitter:   emitter,
		presence:  presence,
		log:       log,
		now:       time.Now,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrChatNotFound) ||
		errors.Is(err, domain.ErrMessageNotFound)
}

// CreateChat returns the chat between userID and otherUserID, creating it on
// first contact.
func (cs *ChatService) CreateChat(ctx context.Context, userID, otherUserID string) (*CreateChatResult, error) {
	otherUserID = strings.TrimSpace(otherUserID)
	if userID == "" || otherUserID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("Please provide both user ids")
	}
	if userID == otherUserID {
		return nil, domain.ErrInvalidRequest.WithMessage("Cannot start a chat with yourself")
	}

	chat, err := cs.chats.FindByParticipants(ctx, userID, otherUserID)
	if err == nil {
		return &CreateChatResult{Chat: chat}, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("find chat: %w", err)
	}

	chat, err = cs.chats.Create(ctx, []string{userID, otherUserID})
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	cs.log.Info("Chat created", "chat_id", chat.ID, "users", chat.Users)
	return &CreateChatResult{Chat: chat, Created: true}, nil
}

func (cs *ChatService) ListChats(ctx context.Context, userID string) ([]domain.ChatWithUnseen, error) {
	chats, err := cs.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	out := make([]domain.ChatWithUnseen, 0, len(chats))
	for _, chat := range chats {
		other, _ := chat.Counterpart(userID)
		unseen, err := cs.messages.CountUnseen(ctx, chat.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("count unseen in %s: %w", chat.ID, err)
		}
		out = append(out, domain.ChatWithUnseen{
			Chat:        chat,
			OtherUserID: other,
			UnseenCount: unseen,
		})
	}
	return out, nil
}

// authorize loads the chat and checks that userID takes part in it.
func (cs *ChatService) authorize(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := cs.chats.FindByID(ctx, chatID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrChatNotFound
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return chat, nil
}

func validateSend(in *SendMessageDTO) error {
	if in.MediaType == domain.KindText {
		in.MediaType = ""
	}
	if in.ChatID == "" {
		return domain.ErrInvalidRequest.WithMessage("chatId is required")
	}
	if in.Text == "" && in.MediaType == "" && in.MediaKey == "" {
		return domain.ErrInvalidRequest.WithMessage("Please provide text or media")
	}
	if in.MediaType != "" && !in.MediaType.Valid() {
		return domain.ErrInvalidRequest.WithMessage("Unknown mediaType")
	}
	return nil
}

// SendMessage persists and delivers a message inline.
func (cs *ChatService) SendMessage(ctx context.Context, in *SendMessageDTO) (*domain.Message, error) {
	if err := validateSend(in); err != nil {
		return nil, err
	}
	chat, err := cs.authorize(ctx, in.ChatID, in.Sender)
	if err != nil {
		return nil, err
	}
	recipient, _ := chat.Counterpart(in.Sender)

	msg := domain.NewMessage(in.ChatID, in.Sender, in.Text, in.MediaType, in.MediaKey, in.MediaInfo)
	if err := cs.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	cs.deliverer.Publish(ctx, chat, msg, recipient, "")
	return msg, nil
}

// QueueMessage persists the message and hands delivery to the consumer. The
// job references the stored id, so a redelivered job never stores twice.
func (cs *ChatService) QueueMessage(ctx context.Context, in *SendMessageDTO) (*domain.Message, error) {
	if err := validateSend(in); err != nil {
		return nil, err
	}
	chat, err := cs.authorize(ctx, in.ChatID, in.Sender)
	if err != nil {
		return nil, err
	}

	msg := domain.NewMessage(in.ChatID, in.Sender, in.Text, in.MediaType, "", in.MediaInfo)
	if err := cs.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	msg.ClientMessageID = msg.ID

	latest := domain.LatestMessage{Text: domain.SummaryText(msg.Kind, msg.Text), Sender: msg.Sender}
	if err := cs.chats.UpdateLatest(ctx, chat.ID, latest); err != nil {
		cs.log.Warn("Failed to update chat summary", "chat_id", chat.ID, "error", err)
	}

	job := domain.DeliveryJob{
		ClientMessageID: msg.ID,
		ChatID:          chat.ID,
		Sender:          in.Sender,
		Text:            in.Text,
		MediaType:       in.MediaType,
		MediaInfo:       in.MediaInfo,
		TempMessageID:   msg.ID,
	}
	if err := cs.queue.Enqueue(ctx, job); err != nil {
		cs.log.Error("Failed to queue message, delivering inline",
			"message_id", msg.ID,
			"error", err,
		)
		recipient, _ := chat.Counterpart(in.Sender)
		cs.deliverer.Publish(ctx, chat, msg, recipient, msg.ID)
	}
	return msg, nil
}

// UpdateMessageMedia records the storage key of an uploaded attachment and
// tells the chat room about it.
func (cs *ChatService) UpdateMessageMedia(ctx context.Context, userID, messageID, key string) (*domain.Message, error) {
	if messageID == "" || key == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("messageId and mediaKey are required")
	}

	msg, err := cs.messages.UpdateMedia(ctx, messageID, userID, key)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("update media: %w", err)
	}

	cs.emitter.EmitToRoom(msg.ChatID, EventMessageUpdated, MessageUpdatedEvent{
		MessageID: msg.ID,
		Message:   msg,
	})
	return msg, nil
}

// GetMessages marks the counterpart's unseen messages as seen by userID,
// notifies one live connection of the counterpart and returns the chat
// history oldest first.
func (cs *ChatService) GetMessages(ctx context.Context, userID, chatID string) ([]domain.Message, error) {
	if chatID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("ChatId Required")
	}
	chat, err := cs.authorize(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	seenIDs, err := cs.messages.MarkChatSeen(ctx, chatID, userID, cs.now())
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}

	messages, err := cs.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if len(seenIDs) == 0 {
		return messages, nil
	}
	other, _ := chat.Counterpart(userID)
	if conn, ok := cs.presence.OneLiveConnection(other); ok {
		cs.emitter.EmitToConnection(conn, EventMessagesSeen, MessagesSeenEvent{
			ChatID:     chatID,
			SeenBy:     userID,
			MessageIDs: seenIDs,
		})
	}
	return messages, nil
}
