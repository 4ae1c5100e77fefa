package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string          `db:"id" json:"id"`
	Username     string          `db:"username" json:"username"`
	PasswordHash string          `db:"password_hash" json:"-"`
	BalanceUSD   decimal.Decimal `db:"balance_usd" json:"balanceUsd"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
	BalanceUSD   decimal.Decimal
}
