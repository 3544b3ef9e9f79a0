package service

import (
	"encoding/json"

	"github.com/ReilBleem13/HelloChat/internal/domain"
)

// Client -> server events.
const (
	EventJoinChat   = "joinChat"
	EventLeaveChat  = "leaveChat"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

// Server -> client events.
const (
	EventOnlineUsers       = "getOnlineUser"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventNewMessage        = "newMessage"
	EventMessagesSeen      = "messagesSeen"
	EventMessageUpdated    = "messageUpdated"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type NewMessageEvent struct {
	*domain.Message
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type MessagesSeenEvent struct {
	ChatID     string   `json:"chatId"`
	SeenBy     string   `json:"seenBy"`
	MessageIDs []string `json:"messageIds"`
}

type MessageUpdatedEvent struct {
	MessageID string          `json:"messageId"`
	Message   *domain.Message `json:"message"`
}

// DTOs
type SendMessageDTO struct {
	ChatID    string
	Sender    string
	Text      string
	MediaType domain.MessageKind
	MediaKey  string
	MediaInfo *domain.MediaInfo
}

type CreateChatResult struct {
	Chat    *domain.Chat
	Created bool
}
