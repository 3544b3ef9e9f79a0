package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageDoc struct {
	ID              string     `bson:"_id"`
	ChatID          string     `bson:"chatId"`
	Sender          string     `bson:"sender"`
	ClientMessageID string     `bson:"clientMessageId,omitempty"`
	MessageType     string     `bson:"messageType"`
	Text            string     `bson:"text"`
	Image           *imageDoc  `bson:"image,omitempty"`
	File            *fileDoc   `bson:"file,omitempty"`
	UploadStatus    string     `bson:"uploadStatus,omitempty"`
	Seen            bool       `bson:"seen"`
	SeenAt          *time.Time `bson:"seenAt,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt"`
}

type imageDoc struct {
	Key string `bson:"key"`
}

type fileDoc struct {
	Key      string `bson:"key"`
	Filename string `bson:"filename"`
	FileType string `bson:"fileType"`
	FileSize int64  `bson:"fileSize"`
}

func fromDomain(m *domain.Message) messageDoc {
	d := messageDoc{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Sender:          m.Sender,
		ClientMessageID: m.ClientMessageID,
		MessageType:     string(m.Kind),
		Text:            m.Text,
		UploadStatus:    string(m.UploadStatus),
		Seen:            m.Seen,
		SeenAt:          m.SeenAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Image != nil {
		d.Image = &imageDoc{Key: m.Image.Key}
	}
	if m.File != nil {
		d.File = &fileDoc{Key: m.File.Key, Filename: m.File.Filename, FileType: m.File.FileType, FileSize: m.File.FileSize}
	}
	return d
}

func (d *messageDoc) toDomain() domain.Message {
	m := domain.Message{
		ID:              d.ID,
		ChatID:          d.ChatID,
		Sender:          d.Sender,
		ClientMessageID: d.ClientMessageID,
		Kind:            domain.MessageKind(d.MessageType),
		Text:            d.Text,
		UploadStatus:    domain.UploadStatus(d.UploadStatus),
		Seen:            d.Seen,
		SeenAt:          d.SeenAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.Image != nil {
		m.Image = &domain.ImageRef{Key: d.Image.Key}
	}
	if d.File != nil {
		m.File = &domain.FileRef{Key: d.File.Key, Filename: d.File.Filename, FileType: d.File.FileType, FileSize: d.File.FileSize}
	}
	return m
}

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(c *Client) *MessageRepo {
	return &MessageRepo{coll: c.Database.Collection(messagesCollection)}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	now := time.Now().UTC()
	msg.ID = primitive.NewObjectID().Hex()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, fromDomain(msg))
	return err
}

func (r *MessageRepo) findOne(ctx context.Context, filter bson.M) (*domain.Message, error) {
	var doc messageDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m := doc.toDomain()
	return &m, nil
}

func (r *MessageRepo) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	return r.findOne(ctx, bson.M{"_id": messageID})
}

func (r *MessageRepo) FindByClientID(ctx context.Context, chatID, clientMessageID string) (*domain.Message, error) {
	return r.findOne(ctx, bson.M{"chatId": chatID, "clientMessageId": clientMessageID})
}

func (r *MessageRepo) find(ctx context.Context, filter bson.M) ([]messageDoc, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *MessageRepo) ListByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	docs, err := r.find(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(docs))
	for i := range docs {
		out[i] = docs[i].toDomain()
	}
	return out, nil
}

func unseenFilter(chatID, readerID string) bson.M {
	return bson.M{
		"chatId": chatID,
		"sender": bson.M{"$ne": readerID},
		"seen":   false,
	}
}

func (r *MessageRepo) CountUnseen(ctx context.Context, chatID, readerID string) (int64, error) {
	return r.coll.CountDocuments(ctx, unseenFilter(chatID, readerID))
}

func (r *MessageRepo) MarkSeen(ctx context.Context, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": messageIDs}, "seen": false},
		bson.M{"$set": bson.M{"seen": true, "seenAt": at, "updatedAt": at}},
	)
	return err
}

func (r *MessageRepo) MarkChatSeen(ctx context.Context, chatID, readerID string, at time.Time) ([]string, error) {
	docs, err := r.find(ctx, unseenFilter(chatID, readerID))
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	if err := r.MarkSeen(ctx, ids, at); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MessageRepo) UpdateMedia(ctx context.Context, messageID, sender, key string) (*domain.Message, error) {
	msg, err := r.findOne(ctx, bson.M{"_id": messageID, "sender": sender})
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"uploadStatus": string(domain.UploadCompleted),
		"updatedAt":    time.Now().UTC(),
	}
	switch {
	case msg.Kind == domain.KindImage:
		set["image"] = imageDoc{Key: key}
		msg.Image = &domain.ImageRef{Key: key}
	case msg.File != nil:
		set["file.key"] = key
		msg.File.Key = key
	}

	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	msg.UploadStatus = domain.UploadCompleted
	return msg, nil
}
