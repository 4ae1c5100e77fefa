package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type WalletRepository interface {
	FindByAddress(ctx context.Context, address string) (*model.Wallet, error)
	// Link binds address to userID; an address already bound to the same user is a no-op.
	Link(ctx context.Context, userID, address string) (*model.Wallet, error)
	WithTx(tx *sqlx.Tx) WalletRepository
}

type DepositRepository interface {
	FindBySignature(ctx context.Context, signature string) (*model.Deposit, error)
	Create(ctx context.Context, params model.CreateDepositParams) (*model.Deposit, error)
	WithTx(tx *sqlx.Tx) DepositRepository
}

type walletDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type walletRepo struct {
	db walletDB
}

func NewWalletRepository(db *sqlx.DB) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) WithTx(tx *sqlx.Tx) WalletRepository {
	return &walletRepo{db: tx}
}

func (r *walletRepo) FindByAddress(ctx context.Context, address string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM user_wallets WHERE wallet_address = $1`, address)
	return HandleNotFound(&w, err)
}

func (r *walletRepo) Link(ctx context.Context, userID, address string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.GetContext(ctx, &w, `
		INSERT INTO user_wallets (user_id, wallet_address)
		VALUES ($1, $2)
		ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
		RETURNING *
	`, userID, address)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

type depositRepo struct {
	db walletDB
}

func NewDepositRepository(db *sqlx.DB) DepositRepository {
	return &depositRepo{db: db}
}

func (r *depositRepo) WithTx(tx *sqlx.Tx) DepositRepository {
	return &depositRepo{db: tx}
}

func (r *depositRepo) FindBySignature(ctx context.Context, signature string) (*model.Deposit, error) {
	var d model.Deposit
	err := r.db.GetContext(ctx, &d, `SELECT * FROM token_deposits WHERE signature_tx = $1`, signature)
	return HandleNotFound(&d, err)
}

// Create returns nil, nil when the signature was already recorded.
func (r *depositRepo) Create(ctx context.Context, params model.CreateDepositParams) (*model.Deposit, error) {
	var d model.Deposit
	err := r.db.GetContext(ctx, &d, `
		INSERT INTO token_deposits (user_id, wallet_address, amount_tokens, amount_usd, signature_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signature_tx) DO NOTHING
		RETURNING *
	`, params.UserID, params.WalletAddress, params.AmountTokens, params.AmountUSD, params.SignatureTx)
	return HandleNotFound(&d, err)
}
