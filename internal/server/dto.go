package server

import "github.com/ReilBleem13/HelloChat/internal/domain"

type CreateChatJSON struct {
	OtherUserID string `json:"otherUserId"`
}

type SendMessageJSON struct {
	ChatID    string             `json:"chatId"`
	Text      string             `json:"text"`
	MediaType domain.MessageKind `json:"mediaType,omitempty"`
	MediaKey  string             `json:"mediaKey,omitempty"`
	MediaInfo *domain.MediaInfo  `json:"mediaInfo,omitempty"`
}

type UpdateMediaJSON struct {
	MessageID string `json:"messageId"`
	MediaKey  string `json:"mediaKey"`
}

// response
type CreatedChat struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type ChatsResponse struct {
	Chats []domain.ChatWithUnseen `json:"chats"`
}

type SentMessage struct {
	Message         *domain.Message `json:"message"`
	ClientMessageID string          `json:"clientMessageId,omitempty"`
	Sender          string          `json:"sender"`
}

type MessagesResponse struct {
	ChatID   string           `json:"chatId"`
	Messages []domain.Message `json:"messages"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

type ReadinessResponse struct {
	Status  string `json:"status"`
	Queue   string `json:"queue"`
	Backend string `json:"backend"`
	Cache   bool   `json:"cache"`
}
