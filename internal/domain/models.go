package domain

import "time"

type Chat struct {
	ID            string         `json:"_id"`
	Users         []string       `json:"users"`
	LatestMessage *LatestMessage `json:"latestMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type LatestMessage struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// HasParticipant reports whether userID is one of the chat's two users.
func (c *Chat) HasParticipant(userID string) bool {
	for _, u := range c.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the participant that is not userID.
func (c *Chat) Counterpart(userID string) (string, bool) {
	if !c.HasParticipant(userID) {
		return "", false
	}
	for _, u := range c.Users {
		if u != userID {
			return u, true
		}
	}
	return "", false
}

type Message struct {
	ID              string       `json:"_id"`
	ChatID          string       `json:"chatId"`
	Sender          string       `json:"sender"`
	ClientMessageID string       `json:"clientMessageId,omitempty"`
	Kind            MessageKind  `json:"messageType"`
	Text            string       `json:"text"`
	Image           *ImageRef    `json:"image,omitempty"`
	File            *FileRef     `json:"file,omitempty"`
	UploadStatus    UploadStatus `json:"uploadStatus,omitempty"`
	Seen            bool         `json:"seen"`
	SeenAt          *time.Time   `json:"seenAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type ImageRef struct {
	Key string `json:"key"`
}

type FileRef struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

type (
	MessageKind string

	UploadStatus string
)

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindFile  MessageKind = "file"

	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindFile:
		return true
	}
	return false
}

// SummaryText is the preview stored as the chat's latest message.
func SummaryText(kind MessageKind, text string) string {
	switch kind {
	case KindImage:
		return "📷 Image"
	case KindVideo:
		return "🎥 Video"
	case KindFile:
		return "📄 File"
	}
	return text
}

// ChatWithUnseen is a chat listing row for one reader.
type ChatWithUnseen struct {
	Chat        Chat   `json:"chat"`
	OtherUserID string `json:"otherUserId"`
	UnseenCount int64  `json:"unseenCount"`
}
