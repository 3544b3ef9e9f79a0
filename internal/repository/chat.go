package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type ChatRepo struct {
	db *sqlx.DB
}

func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{
		db: db,
	}
}

type chatRow struct {
	ID           string         `db:"id"`
	Users        pq.StringArray `db:"users"`
	LatestText   sql.NullString `db:"latest_text"`
	LatestSender sql.NullString `db:"latest_sender"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *chatRow) toDomain() domain.Chat {
	c := domain.Chat{
		ID:        r.ID,
		Users:     []string(r.Users),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LatestSender.Valid {
		c.LatestMessage = &domain.LatestMessage{
			Text:   r.LatestText.String,
			Sender: r.LatestSender.String,
		}
	}
	return c
}

const chatColumns = `id, users, latest_text, latest_sender, created_at, updated_at`

func sortedPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

func (cr *ChatRepo) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	var row chatRow
	if err := cr.db.GetContext(ctx, &row, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

func (cr *ChatRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE users = $1`

	var row chatRow
	if err := cr.db.GetContext(ctx, &row, query, pq.Array(sortedPair(userA, userB))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

// Create inserts the chat or returns the existing one for the same pair.
func (cr *ChatRepo) Create(ctx context.Context, users []string) (*domain.Chat, error) {
	if len(users) != 2 {
		return nil, fmt.Errorf("chat needs exactly 2 users, got %d", len(users))
	}

	query := `
		INSERT INTO chats (id, users, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (users) DO UPDATE SET users = EXCLUDED.users
		RETURNING ` + chatColumns

	var row chatRow
	err := cr.db.QueryRowxContext(ctx, query, uuid.NewString(), pq.Array(sortedPair(users[0], users[1]))).StructScan(&row)
	if err != nil {
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

func (cr *ChatRepo) ListByUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE $1 = ANY(users)
		ORDER BY updated_at DESC
	`

	var rows []chatRow
	if err := cr.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	chats := make([]domain.Chat, len(rows))
	for i := range rows {
		chats[i] = rows[i].toDomain()
	}
	return chats, nil
}

func (cr *ChatRepo) UpdateLatest(ctx context.Context, chatID string, latest domain.LatestMessage) error {
	query := `
		UPDATE chats
		SET latest_text = $1, latest_sender = $2, updated_at = NOW()
		WHERE id = $3;
	`

	res, err := cr.db.ExecContext(ctx, query, latest.Text, latest.Sender, chatID)
	if err != nil {
		return err
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAff == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}
