package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

// ErrDiscarded marks jobs that were dropped without side effects because
// they reference a missing chat or message or a non-participant sender.
var ErrDiscarded = errors.New("delivery job discarded")

// Deliverer applies one delivery: idempotent persistence, chat summary,
// cache write, fan-out and seen tracking.
type Deliverer struct {
	chats    ChatRepoIn
	messages MessageRepoIn
	cache    MessageCacheIn
	emitter  Emitter
	presence *Presence
	log      *slog.Logger
	now      func() time.Time
}

func NewDeliverer(
	chats ChatRepoIn,
	messages MessageRepoIn,
	cache MessageCacheIn,
	emitter Emitter,
	presence *Presence,
	log *slog.Logger,
) *Deliverer {
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{
		chats:    chats,
		messages: messages,
		cache:    cache,
		emitter:  emitter,
		presence: presence,
		log:      log,
		now:      time.Now,
	}
}

func discard(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDiscarded, fmt.Sprintf(format, args...))
}

func (d *Deliverer) Deliver(ctx context.Context, job domain.DeliveryJob) (*domain.Message, error) {
	chat, err := d.chats.FindByID(ctx, job.ChatID)
	if err != nil {
		if errors.Is(err, domain.ErrChatNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, discard("chat %s not found", job.ChatID)
		}
		return nil, fmt.Errorf("load chat %s: %w", job.ChatID, err)
	}

	recipient, ok := chat.Counterpart(job.Sender)
	if !ok {
		return nil, discard("sender %s is not a participant of chat %s", job.Sender, job.ChatID)
	}

	msg, err := d.resolveMessage(ctx, &job)
	if err != nil {
		return nil, err
	}

	d.Publish(ctx, chat, msg, recipient, job.ClientMessageID)
	return msg, nil
}

// resolveMessage returns the persisted message a job refers to, creating it
// only when neither the temp id nor the client id match a stored one.
func (d *Deliverer) resolveMessage(ctx context.Context, job *domain.DeliveryJob) (*domain.Message, error) {
	if job.TempMessageID != "" {
		msg, err := d.messages.FindByID(ctx, job.TempMessageID)
		if err != nil {
			if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrNotFound) {
				return nil, discard("temp message %s not found", job.TempMessageID)
			}
			return nil, fmt.Errorf("load message %s: %w", job.TempMessageID, err)
		}
		if msg.ChatID != job.ChatID {
			return nil, discard("temp message %s belongs to chat %s", msg.ID, msg.ChatID)
		}
		return msg, nil
	}

	if job.ClientMessageID != "" {
		msg, err := d.messages.FindByClientID(ctx, job.ChatID, job.ClientMessageID)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, domain.ErrMessageNotFound) && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup client message %s: %w", job.ClientMessageID, err)
		}
	}

	msg := domain.MessageFromJob(job)
	if err := d.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// Publish runs the post-persistence steps for msg. Failures are logged and
// do not undo the stored message.
func (d *Deliverer) Publish(ctx context.Context, chat *domain.Chat, msg *domain.Message, recipient, clientMessageID string) {
	latest := domain.LatestMessage{
		Text:   domain.SummaryText(msg.Kind, msg.Text),
		Sender: msg.Sender,
	}
	if err := d.chats.UpdateLatest(ctx, chat.ID, latest); err != nil {
		d.log.Warn("Failed to update chat summary", "chat_id", chat.ID, "error", err)
	}

	if d.cache != nil {
		if err := d.cache.Add(ctx, msg); err != nil {
			d.log.Warn("Failed to cache message", "chat_id", chat.ID, "message_id", msg.ID, "error", err)
		}
	}

	if clientMessageID == "" {
		clientMessageID = msg.ClientMessageID
	}
	ev := NewMessageEvent{Message: msg, ClientMessageID: clientMessageID}

	d.emitter.EmitToRoom(chat.ID, EventNewMessage, ev)
	for _, user := range chat.Users {
		if !d.presence.IsOnline(user) {
			continue
		}
		d.emitter.EmitToRoom(user, EventNewMessage, ev)
	}

	if msg.Seen || !d.recipientViewing(recipient, chat.ID) {
		return
	}

	at := d.now()
	if err := d.messages.MarkSeen(ctx, []string{msg.ID}, at); err != nil {
		d.log.Warn("Failed to mark message seen", "message_id", msg.ID, "error", err)
		return
	}
	msg.Seen = true
	msg.SeenAt = &at

	d.emitter.EmitToRoom(msg.Sender, EventMessagesSeen, MessagesSeenEvent{
		ChatID:     chat.ID,
		SeenBy:     recipient,
		MessageIDs: []string{msg.ID},
	})
}

func (d *Deliverer) recipientViewing(recipient, chatID string) bool {
	for _, conn := range d.presence.Connections(recipient) {
		if d.emitter.InRoom(conn, chatID) {
			return true
		}
	}
	return false
}
