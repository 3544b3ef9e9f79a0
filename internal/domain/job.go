package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidJob = errors.New("invalid delivery job")

type MediaInfo struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// DeliveryJob is the queued unit of work describing one pending chat message
// delivery. The variant is selected by MediaType: empty means text.
type DeliveryJob struct {
	ClientMessageID string      `json:"clientMessageId"`
	ChatID          string      `json:"chatId"`
	Sender          string      `json:"sender"`
	Text            string      `json:"text,omitempty"`
	MediaType       MessageKind `json:"mediaType,omitempty"`
	MediaInfo       *MediaInfo  `json:"mediaInfo,omitempty"`

	// TempMessageID references a message the producer already persisted.
	TempMessageID string `json:"tempMessageId,omitempty"`
}

func (j *DeliveryJob) Kind() MessageKind {
	if j.MediaType == "" {
		return KindText
	}
	return j.MediaType
}

func (j *DeliveryJob) Validate() error {
	if strings.TrimSpace(j.ChatID) == "" {
		return fmt.Errorf("%w: chatId is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Sender) == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidJob)
	}

	switch j.MediaType {
	case "", KindImage, KindVideo, KindFile:
	default:
		return fmt.Errorf("%w: unknown mediaType %q", ErrInvalidJob, j.MediaType)
	}

	// A persisted message carries its own body.
	if j.TempMessageID != "" {
		return nil
	}

	switch j.Kind() {
	case KindText:
		if j.Text == "" {
			return fmt.Errorf("%w: text message without text", ErrInvalidJob)
		}
	case KindVideo, KindFile:
		if j.MediaInfo == nil {
			return fmt.Errorf("%w: %s message without mediaInfo", ErrInvalidJob, j.MediaType)
		}
	}
	return nil
}

// DecodeJob parses and validates a queued payload.
func DecodeJob(data []byte) (DeliveryJob, error) {
	var job DeliveryJob
	if err := json.Unmarshal(data, &job); err != nil {
		return DeliveryJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := job.Validate(); err != nil {
		return DeliveryJob{}, err
	}
	return job, nil
}

// NewMessage builds an unsaved message. mediaKey is set when the upload already
// finished; without it media messages stay in the uploading state.
func NewMessage(chatID, sender, text string, mediaType MessageKind, mediaKey string, info *MediaInfo) *Message {
	msg := &Message{
		ChatID: chatID,
		Sender: sender,
		Text:   text,
		Kind:   KindText,
	}
	if mediaType == "" || mediaType == KindText {
		return msg
	}

	msg.Kind = mediaType
	msg.UploadStatus = UploadUploading

	if mediaType == KindImage {
		msg.Image = &ImageRef{Key: mediaKey}
		if mediaKey != "" {
			msg.UploadStatus = UploadCompleted
		}
		return msg
	}

	if info != nil {
		msg.File = &FileRef{
			Key:      mediaKey,
			Filename: info.Filename,
			FileType: info.FileType,
			FileSize: info.FileSize,
		}
		if mediaKey != "" {
			msg.UploadStatus = UploadCompleted
		}
	}
	return msg
}

// MessageFromJob builds the message a legacy job (one without TempMessageID)
// describes.
func MessageFromJob(job *DeliveryJob) *Message {
	msg := NewMessage(job.ChatID, job.Sender, job.Text, job.MediaType, "", job.MediaInfo)
	msg.ClientMessageID = job.ClientMessageID
	return msg
}
