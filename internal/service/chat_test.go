package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/repository/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.DeliveryJob) error {
	return domain.ErrQueueFull
}

func newChatService(f *fixture, q Enqueuer) *ChatService {
	return NewChatService(f.chats, f.messages, q, f.deliv, f.emitter, f.presence, discardLogger())
}

func TestChatService_CreateChat(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)

	first, err := svc.CreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, first.Created)

	again, err := svc.CreateChat(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Chat.ID, again.Chat.ID)

	_, err = svc.CreateChat(ctx, "alice", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = svc.CreateChat(ctx, "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestChatService_QueueMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := queue.New(queue.NewMemoryBackend(0), discardLogger())
	svc := newChatService(f, q)

	res, _ := svc.CreateChat(ctx, "alice", "bob")

	msg, err := svc.QueueMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "queued"})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, msg.ClientMessageID)

	job, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msg.ID, job.TempMessageID)
	assert.Equal(t, msg.ID, job.ClientMessageID)

	// Delivering the job reuses the stored message.
	delivered, err := f.deliv.Deliver(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, delivered.ID)
	assert.Equal(t, 1, f.messages.Len())
}

func TestChatService_QueueMessageFallsBackToInlineDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, failingQueue{})
	res, _ := svc.CreateChat(ctx, "alice", "bob")

	msg, err := svc.QueueMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.emitter.count(res.Chat.ID, EventNewMessage))
	assert.NotEmpty(t, msg.ID)
}

func TestChatService_SendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)
	res, _ := svc.CreateChat(ctx, "alice", "bob")

	tests := []struct {
		name string
		in   SendMessageDTO
		want error
	}{
		{"no body", SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice"}, domain.ErrInvalidRequest},
		{"no chat id", SendMessageDTO{Sender: "alice", Text: "x"}, domain.ErrInvalidRequest},
		{"bad media", SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", MediaType: "gif"}, domain.ErrInvalidRequest},
		{"unknown chat", SendMessageDTO{ChatID: "nope", Sender: "alice", Text: "x"}, domain.ErrChatNotFound},
		{"not participant", SendMessageDTO{ChatID: res.Chat.ID, Sender: "eve", Text: "x"}, domain.ErrNotParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			_, err := svc.SendMessage(ctx, &in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestChatService_SendMessageImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)
	res, _ := svc.CreateChat(ctx, "alice", "bob")

	msg, err := svc.SendMessage(ctx, &SendMessageDTO{
		ChatID:    res.Chat.ID,
		Sender:    "alice",
		MediaType: domain.KindImage,
		MediaKey:  "uploads/cat.png",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, msg.UploadStatus)

	chat, _ := f.chats.FindByID(ctx, res.Chat.ID)
	assert.Equal(t, "📷 Image", chat.LatestMessage.Text)
	assert.Equal(t, 1, f.emitter.count(res.Chat.ID, EventNewMessage))
}

func TestChatService_UpdateMessageMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)
	res, _ := svc.CreateChat(ctx, "alice", "bob")

	msg, err := svc.SendMessage(ctx, &SendMessageDTO{
		ChatID:    res.Chat.ID,
		Sender:    "alice",
		MediaType: domain.KindVideo,
		MediaInfo: &domain.MediaInfo{Filename: "v.mp4", FileType: "video/mp4", FileSize: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadUploading, msg.UploadStatus)

	_, err = svc.UpdateMessageMedia(ctx, "bob", msg.ID, "k")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	updated, err := svc.UpdateMessageMedia(ctx, "alice", msg.ID, "uploads/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, "uploads/v.mp4", updated.File.Key)

	events := f.emitter.find(res.Chat.ID, EventMessageUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, msg.ID, events[0].payload.(MessageUpdatedEvent).MessageID)
}

func TestChatService_GetMessagesMarksSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)
	res, _ := svc.CreateChat(ctx, "alice", "bob")
	f.presence.OnConnect("alice", "a1")
	f.presence.OnConnect("alice", "a2")

	m1, _ := svc.SendMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "one"})
	m2, _ := svc.SendMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "two"})
	_, _ = svc.SendMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "bob", Text: "three"})

	chats, err := svc.ListChats(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(2), chats[0].UnseenCount)
	assert.Equal(t, "alice", chats[0].OtherUserID)

	msgs, err := svc.GetMessages(ctx, "bob", res.Chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Seen)
	assert.True(t, msgs[1].Seen)
	assert.False(t, msgs[2].Seen)

	events := f.emitter.findConn("a1", EventMessagesSeen)
	require.Len(t, events, 1)
	assert.Equal(t, []string{m1.ID, m2.ID}, events[0].payload.(MessagesSeenEvent).MessageIDs)
	assert.Empty(t, f.emitter.findConn("a2", EventMessagesSeen))

	chats, _ = svc.ListChats(ctx, "bob")
	assert.Zero(t, chats[0].UnseenCount)

	_, err = svc.GetMessages(ctx, "eve", res.Chat.ID)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestChatService_GetMessagesSeenFollowsLiveConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newChatService(f, nil)
	res, _ := svc.CreateChat(ctx, "alice", "bob")

	_, _ = svc.SendMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "offline"})
	_, err := svc.GetMessages(ctx, "bob", res.Chat.ID)
	require.NoError(t, err)
	assert.Empty(t, f.emitter.findConn("a1", EventMessagesSeen))

	f.presence.OnConnect("alice", "a1")
	f.presence.OnConnect("alice", "a2")
	f.presence.OnDisconnect("a1")

	_, _ = svc.SendMessage(ctx, &SendMessageDTO{ChatID: res.Chat.ID, Sender: "alice", Text: "online"})
	_, err = svc.GetMessages(ctx, "bob", res.Chat.ID)
	require.NoError(t, err)
	assert.Empty(t, f.emitter.findConn("a1", EventMessagesSeen))
	assert.Len(t, f.emitter.findConn("a2", EventMessagesSeen), 1)
}
