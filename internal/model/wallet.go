package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type Deposit struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"userId"`
	WalletAddress string          `db:"wallet_address" json:"walletAddress"`
	AmountTokens  decimal.Decimal `db:"amount_tokens" json:"amountTokens"`
	AmountUSD     decimal.Decimal `db:"amount_usd" json:"amountUsd"`
	SignatureTx   string          `db:"signature_tx" json:"signatureTx"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

type CreateDepositParams struct {
	UserID        string
	WalletAddress string
	AmountTokens  decimal.Decimal
	AmountUSD     decimal.Decimal
	SignatureTx   string
}

type TokenMetrics struct {
	TokenAddress string          `db:"token_address" json:"tokenAddress"`
	PriceUSD     decimal.Decimal `db:"price_usd" json:"priceUsd"`
	MarketCapUSD decimal.Decimal `db:"market_cap_usd" json:"marketCapUsd"`
	FDVUSD       decimal.Decimal `db:"fdv_usd" json:"fdvUsd"`
	LiquidityUSD decimal.Decimal `db:"liquidity_usd" json:"liquidityUsd"`
	Volume24USD  decimal.Decimal `db:"volume24_usd" json:"volume24Usd"`
	LastUpdate   time.Time       `db:"last_update" json:"lastUpdate"`
}
