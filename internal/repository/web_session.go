package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type WebSessionRepository interface {
	FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.WebSession, error)
	Create(ctx context.Context, params model.CreateWebSessionParams) (*model.WebSession, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type webSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type webSessionRepo struct {
	db webSessionDB
}

func NewWebSessionRepository(db *sqlx.DB) WebSessionRepository {
	return &webSessionRepo{db: db}
}

func (r *webSessionRepo) FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.WebSession, error) {
	var s model.WebSession
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM web_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash)
	return HandleNotFound(&s, err)
}

func (r *webSessionRepo) Create(ctx context.Context, params model.CreateWebSessionParams) (*model.WebSession, error) {
	var s model.WebSession
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO web_sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.UserID, params.TokenHash, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *webSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *webSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
