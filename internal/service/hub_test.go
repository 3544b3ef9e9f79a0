package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func drainFrames(t *testing.T, c *Client) []decodedFrame {
	t.Helper()
	var out []decodedFrame
	for {
		select {
		case raw := <-c.send:
			var f decodedFrame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func events(frames []decodedFrame, name string) []decodedFrame {
	var out []decodedFrame
	for _, f := range frames {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func TestHub_RegisterBroadcastsOnlineUsers(t *testing.T) {
	p := NewPresence()
	h := NewHub(p, discardLogger())

	a := NewClient("alice", nil)
	b := NewClient("bob", nil)
	h.Register(a)
	h.Register(b)

	frames := events(drainFrames(t, a), EventOnlineUsers)
	require.Len(t, frames, 2)
	var users []string
	require.NoError(t, json.Unmarshal(frames[1].Data, &users))
	assert.Equal(t, []string{"alice", "bob"}, users)

	assert.True(t, h.InRoom(a.ID(), "alice"))
	assert.True(t, p.IsOnline("bob"))

	h.Unregister(b)
	assert.False(t, p.IsOnline("bob"))
	frames = events(drainFrames(t, a), EventOnlineUsers)
	require.Len(t, frames, 1)
	require.NoError(t, json.Unmarshal(frames[0].Data, &users))
	assert.Equal(t, []string{"alice"}, users)

	select {
	case <-b.Done():
	default:
		t.Fatal("unregistered client should be closed")
	}
}

func TestHub_RoomsAndTargets(t *testing.T) {
	h := NewHub(NewPresence(), discardLogger())
	a := NewClient("alice", nil)
	b := NewClient("bob", nil)
	h.Register(a)
	h.Register(b)
	drainFrames(t, a)
	drainFrames(t, b)

	h.Join(a.ID(), "chat-1")
	h.Join(b.ID(), "chat-1")
	h.Join("ghost", "chat-1")

	h.EmitToRoom("chat-1", EventNewMessage, map[string]string{"text": "hi"})
	assert.Len(t, events(drainFrames(t, a), EventNewMessage), 1)
	assert.Len(t, events(drainFrames(t, b), EventNewMessage), 1)

	h.EmitToRoomExcept("chat-1", a.ID(), EventUserTyping, TypingEvent{ChatID: "chat-1", UserID: "alice"})
	assert.Empty(t, drainFrames(t, a))
	assert.Len(t, events(drainFrames(t, b), EventUserTyping), 1)

	h.EmitToConnection(b.ID(), EventMessagesSeen, MessagesSeenEvent{ChatID: "chat-1"})
	assert.Empty(t, drainFrames(t, a))
	assert.Len(t, drainFrames(t, b), 1)

	h.Leave(b.ID(), "chat-1")
	assert.False(t, h.InRoom(b.ID(), "chat-1"))
	h.EmitToRoom("chat-1", EventNewMessage, nil)
	assert.Empty(t, drainFrames(t, b))
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	h := NewHub(NewPresence(), discardLogger())
	slow := NewClient("slow", nil)
	h.Register(slow)

	for i := 0; i < sendBufSize+1; i++ {
		h.EmitToRoom("slow", EventNewMessage, i)
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("client with a full buffer should be closed")
	}
}
