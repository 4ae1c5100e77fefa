package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type WebsiteRepository interface {
	FindByFileName(ctx context.Context, userID, fileName string) (*model.Website, error)
	FindByName(ctx context.Context, userID, name string) (*model.Website, error)
	ListByUser(ctx context.Context, userID string) ([]model.Website, error)
	// Save inserts or, on a (user_id, name) clash, refreshes file_name and url.
	Save(ctx context.Context, params model.SaveWebsiteParams) (*model.Website, error)
	// UpdateByFileName reports false when no row matched.
	UpdateByFileName(ctx context.Context, params model.SaveWebsiteParams) (bool, error)
	DeleteByName(ctx context.Context, userID, name string) (int64, error)
	WithTx(tx *sqlx.Tx) WebsiteRepository
}

type websiteDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type websiteRepo struct {
	db websiteDB
}

func NewWebsiteRepository(db *sqlx.DB) WebsiteRepository {
	return &websiteRepo{db: db}
}

func (r *websiteRepo) WithTx(tx *sqlx.Tx) WebsiteRepository {
	return &websiteRepo{db: tx}
}

func (r *websiteRepo) FindByFileName(ctx context.Context, userID, fileName string) (*model.Website, error) {
	var w model.Website
	err := r.db.GetContext(ctx, &w, `
		SELECT * FROM websites WHERE user_id = $1 AND file_name = $2
		ORDER BY updated_at DESC LIMIT 1
	`, userID, fileName)
	return HandleNotFound(&w, err)
}

func (r *websiteRepo) FindByName(ctx context.Context, userID, name string) (*model.Website, error) {
	var w model.Website
	err := r.db.GetContext(ctx, &w, `
		SELECT * FROM websites WHERE user_id = $1 AND name = $2
	`, userID, name)
	return HandleNotFound(&w, err)
}

func (r *websiteRepo) ListByUser(ctx context.Context, userID string) ([]model.Website, error) {
	var sites []model.Website
	err := r.db.SelectContext(ctx, &sites, `
		SELECT * FROM websites WHERE user_id = $1 ORDER BY updated_at DESC
	`, userID)
	return sites, err
}

func (r *websiteRepo) Save(ctx context.Context, params model.SaveWebsiteParams) (*model.Website, error) {
	var w model.Website
	err := r.db.GetContext(ctx, &w, `
		INSERT INTO websites (user_id, name, file_name, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, name) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			url = EXCLUDED.url,
			updated_at = NOW()
		RETURNING *
	`, params.UserID, params.Name, params.FileName, params.URL)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *websiteRepo) UpdateByFileName(ctx context.Context, params model.SaveWebsiteParams) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE websites SET url = $3, updated_at = $4
		WHERE user_id = $1 AND file_name = $2
	`, params.UserID, params.FileName, params.URL, time.Now())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *websiteRepo) DeleteByName(ctx context.Context, userID, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM websites WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
