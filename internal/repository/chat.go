package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type ChatRepository interface {
	FindByHash(ctx context.Context, userID, hash string) (*model.ChatHistory, error)
	FindLatest(ctx context.Context, userID string) (*model.ChatHistory, error)
	ListByUser(ctx context.Context, userID string) ([]model.ChatSummary, error)
	Create(ctx context.Context, userID, hash, title string) (*model.ChatHistory, error)
	// Append adds entries to the stored history in one statement and retitles
	// the chat after its first entry. It reports false when the chat is gone.
	Append(ctx context.Context, userID, hash string, entries model.ChatEntries, titleRunes int) (bool, error)
	Delete(ctx context.Context, userID, hash string) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type chatDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type chatRepo struct {
	db chatDB
}

func NewChatRepository(db *sqlx.DB) ChatRepository {
	return &chatRepo{db: db}
}

func (r *chatRepo) FindByHash(ctx context.Context, userID, hash string) (*model.ChatHistory, error) {
	var c model.ChatHistory
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM chat_histories WHERE hashchat = $1 AND user_id = $2
	`, hash, userID)
	return HandleNotFound(&c, err)
}

func (r *chatRepo) FindLatest(ctx context.Context, userID string) (*model.ChatHistory, error) {
	var c model.ChatHistory
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM chat_histories WHERE user_id = $1
		ORDER BY updated_at DESC LIMIT 1
	`, userID)
	return HandleNotFound(&c, err)
}

func (r *chatRepo) ListByUser(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	var chats []model.ChatSummary
	err := r.db.SelectContext(ctx, &chats, `
		SELECT hashchat, title, updated_at FROM chat_histories
		WHERE user_id = $1 ORDER BY updated_at DESC
	`, userID)
	return chats, err
}

func (r *chatRepo) Create(ctx context.Context, userID, hash, title string) (*model.ChatHistory, error) {
	var c model.ChatHistory
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO chat_histories (user_id, hashchat, title, history)
		VALUES ($1, $2, $3, '[]')
		RETURNING *
	`, userID, hash, title)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *chatRepo) Append(ctx context.Context, userID, hash string, entries model.ChatEntries, titleRunes int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_histories SET
			history = history || $3::jsonb,
			title = left((history || $3::jsonb) -> 0 ->> 'message', $4),
			updated_at = NOW()
		WHERE hashchat = $1 AND user_id = $2
	`, hash, userID, entries, titleRunes)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *chatRepo) Delete(ctx context.Context, userID, hash string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_histories WHERE hashchat = $1 AND user_id = $2`, hash, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *chatRepo) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_histories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
