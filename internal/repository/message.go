package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type MessageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

type messageRow struct {
	ID              string         `db:"id"`
	ChatID          string         `db:"chat_id"`
	Sender          string         `db:"sender"`
	ClientMessageID string         `db:"client_message_id"`
	MessageType     string         `db:"message_type"`
	Text            string         `db:"text"`
	ImageKey        sql.NullString `db:"image_key"`
	FileKey         sql.NullString `db:"file_key"`
	FileName        sql.NullString `db:"file_name"`
	FileType        sql.NullString `db:"file_type"`
	FileSize        sql.NullInt64  `db:"file_size"`
	UploadStatus    string         `db:"upload_status"`
	Seen            bool           `db:"seen"`
	SeenAt          sql.NullTime   `db:"seen_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const messageColumns = `id, chat_id, sender, client_message_id, message_type, text,
	image_key, file_key, file_name, file_type, file_size,
	upload_status, seen, seen_at, created_at, updated_at`

func (r *messageRow) toDomain() domain.Message {
	m := domain.Message{
		ID:              r.ID,
		ChatID:          r.ChatID,
		Sender:          r.Sender,
		ClientMessageID: r.ClientMessageID,
		Kind:            domain.MessageKind(r.MessageType),
		Text:            r.Text,
		UploadStatus:    domain.UploadStatus(r.UploadStatus),
		Seen:            r.Seen,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ImageKey.Valid {
		m.Image = &domain.ImageRef{Key: r.ImageKey.String}
	}
	if r.FileName.Valid {
		m.File = &domain.FileRef{
			Key:      r.FileKey.String,
			Filename: r.FileName.String,
			FileType: r.FileType.String,
			FileSize: r.FileSize.Int64,
		}
	}
	if r.SeenAt.Valid {
		t := r.SeenAt.Time
		m.SeenAt = &t
	}
	return m
}

func nullString(s string, valid bool) sql.NullString {
	return sql.NullString{String: s, Valid: valid}
}

func (mr *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (
			id,
			chat_id,
			sender,
			client_message_id,
			message_type,
			text,
			image_key,
			file_key,
			file_name,
			file_type,
			file_size,
			upload_status,
			seen,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING created_at, updated_at;
	`

	id := uuid.NewString()

	var imageKey, fileKey, fileName, fileType sql.NullString
	var fileSize sql.NullInt64
	if msg.Image != nil {
		imageKey = nullString(msg.Image.Key, true)
	}
	if msg.File != nil {
		fileKey = nullString(msg.File.Key, true)
		fileName = nullString(msg.File.Filename, true)
		fileType = nullString(msg.File.FileType, true)
		fileSize = sql.NullInt64{Int64: msg.File.FileSize, Valid: true}
	}

	err := mr.db.QueryRowContext(ctx, query,
		id,
		msg.ChatID,
		msg.Sender,
		msg.ClientMessageID,
		string(msg.Kind),
		msg.Text,
		imageKey,
		fileKey,
		fileName,
		fileType,
		fileSize,
		string(msg.UploadStatus),
		msg.Seen,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (mr *MessageRepo) get(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	var row messageRow
	if err := mr.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}

func (mr *MessageRepo) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	return mr.get(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
}

func (mr *MessageRepo) FindByClientID(ctx context.Context, chatID, clientMessageID string) (*domain.Message, error) {
	return mr.get(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = $1 AND client_message_id = $2`,
		chatID, clientMessageID,
	)
}

func (mr *MessageRepo) ListByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var rows []messageRow
	if err := mr.db.SelectContext(ctx, &rows, query, chatID); err != nil {
		return nil, err
	}

	out := make([]domain.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (mr *MessageRepo) CountUnseen(ctx context.Context, chatID, readerID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE chat_id = $1 AND sender <> $2 AND NOT seen
	`

	var n int64
	err := mr.db.GetContext(ctx, &n, query, chatID, readerID)
	return n, err
}

func (mr *MessageRepo) MarkSeen(ctx context.Context, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}

	query := `
		UPDATE messages
		SET seen = TRUE, seen_at = $1, updated_at = $1
		WHERE id = ANY($2) AND NOT seen;
	`

	_, err := mr.db.ExecContext(ctx, query, at, pq.Array(messageIDs))
	return err
}

func (mr *MessageRepo) MarkChatSeen(ctx context.Context, chatID, readerID string, at time.Time) ([]string, error) {
	query := `
		WITH updated AS (
			UPDATE messages
			SET seen = TRUE, seen_at = $1, updated_at = $1
			WHERE chat_id = $2 AND sender <> $3 AND NOT seen
			RETURNING id, created_at
		)
		SELECT id FROM updated ORDER BY created_at ASC, id ASC
	`

	ids := []string{}
	if err := mr.db.SelectContext(ctx, &ids, query, at, chatID, readerID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (mr *MessageRepo) UpdateMedia(ctx context.Context, messageID, sender, key string) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET image_key = CASE WHEN message_type = 'image' THEN $1 ELSE image_key END,
			file_key = CASE WHEN message_type <> 'image' AND file_name IS NOT NULL THEN $1 ELSE file_key END,
			upload_status = 'completed',
			updated_at = NOW()
		WHERE id = $2 AND sender = $3
		RETURNING ` + messageColumns

	var row messageRow
	if err := mr.db.QueryRowxContext(ctx, query, key, messageID, sender).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}
