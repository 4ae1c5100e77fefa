package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	// GetBalance reports found=false when the user does not exist.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
	WithTx(tx *sqlx.Tx) UserRepository
}

type userDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type userRepo struct {
	db userDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE LOWER(username) = LOWER($1)`, username)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (username, password_hash, balance_usd)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.Username, params.PasswordHash, params.BalanceUSD)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, `SELECT balance_usd FROM users WHERE id = $1`, userID)
	found, err := HandleNotFound(&balance, err)
	if err != nil || found == nil {
		return decimal.Zero, false, err
	}
	return *found, true, nil
}

func (r *userRepo) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance_usd = $2, updated_at = $3 WHERE id = $1
	`, userID, balance, time.Now())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
