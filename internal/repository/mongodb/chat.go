package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatDoc struct {
	ID            string            `bson:"_id"`
	PairKey       string            `bson:"pairKey"`
	Users         []string          `bson:"users"`
	LatestMessage *latestMessageDoc `bson:"latestMessage,omitempty"`
	CreatedAt     time.Time         `bson:"createdAt"`
	UpdatedAt     time.Time         `bson:"updatedAt"`
}

type latestMessageDoc struct {
	Text   string `bson:"text"`
	Sender string `bson:"sender"`
}

func (d *chatDoc) toDomain() domain.Chat {
	c := domain.Chat{
		ID:        d.ID,
		Users:     d.Users,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.LatestMessage != nil {
		c.LatestMessage = &domain.LatestMessage{Text: d.LatestMessage.Text, Sender: d.LatestMessage.Sender}
	}
	return c
}

type ChatRepo struct {
	coll *mongo.Collection
}

func NewChatRepo(c *Client) *ChatRepo {
	return &ChatRepo{coll: c.Database.Collection(chatsCollection)}
}

func (r *ChatRepo) findOne(ctx context.Context, filter bson.M) (*domain.Chat, error) {
	var doc chatDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}
	c := doc.toDomain()
	return &c, nil
}

func (r *ChatRepo) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": chatID})
}

func pair(a, b string) []string {
	p := []string{a, b}
	sort.Strings(p)
	return p
}

// pairKey is the order-independent identity of a direct chat. It carries the
// unique index that serialises concurrent upserts.
func pairKey(a, b string) string {
	p := pair(a, b)
	return p[0] + ":" + p[1]
}

func (r *ChatRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"pairKey": pairKey(userA, userB)})
}

// Create upserts on the pair key. Two upserts racing on a missing chat can
// both try to insert; the loser gets a duplicate key error and reads the
// winner's document instead.
func (r *ChatRepo) Create(ctx context.Context, users []string) (*domain.Chat, error) {
	if len(users) != 2 || users[0] == "" || users[1] == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("A chat needs exactly two users")
	}
	if users[0] == users[1] {
		return nil, domain.ErrInvalidRequest.WithMessage("Cannot start a chat with yourself")
	}

	key := pairKey(users[0], users[1])
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"_id":       primitive.NewObjectID().Hex(),
		"users":     pair(users[0], users[1]),
		"createdAt": now,
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc chatDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"pairKey": key}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		return r.findOne(ctx, bson.M{"pairKey": key})
	}
	if err != nil {
		return nil, fmt.Errorf("upsert chat %s: %w", key, err)
	}
	c := doc.toDomain()
	return &c, nil
}

func (r *ChatRepo) ListByUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"users": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]domain.Chat, len(docs))
	for i := range docs {
		out[i] = docs[i].toDomain()
	}
	return out, nil
}

func (r *ChatRepo) UpdateLatest(ctx context.Context, chatID string, latest domain.LatestMessage) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": bson.M{
		"latestMessage": latestMessageDoc{Text: latest.Text, Sender: latest.Sender},
		"updatedAt":     time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}
