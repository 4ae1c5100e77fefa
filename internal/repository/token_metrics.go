package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/strawberry/sitebuilder-go/internal/model"
)

type TokenMetricsRepository interface {
	Find(ctx context.Context, tokenAddress string) (*model.TokenMetrics, error)
	Upsert(ctx context.Context, m model.TokenMetrics) error
}

type tokenMetricsDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type tokenMetricsRepo struct {
	db tokenMetricsDB
}

func NewTokenMetricsRepository(db *sqlx.DB) TokenMetricsRepository {
	return &tokenMetricsRepo{db: db}
}

func (r *tokenMetricsRepo) Find(ctx context.Context, tokenAddress string) (*model.TokenMetrics, error) {
	var m model.TokenMetrics
	err := r.db.GetContext(ctx, &m, `SELECT * FROM token_metrics WHERE token_address = $1`, tokenAddress)
	return HandleNotFound(&m, err)
}

func (r *tokenMetricsRepo) Upsert(ctx context.Context, m model.TokenMetrics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_metrics (token_address, price_usd, market_cap_usd, fdv_usd, liquidity_usd, volume24_usd, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (token_address) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			market_cap_usd = EXCLUDED.market_cap_usd,
			fdv_usd = EXCLUDED.fdv_usd,
			liquidity_usd = EXCLUDED.liquidity_usd,
			volume24_usd = EXCLUDED.volume24_usd,
			last_update = NOW()
	`, m.TokenAddress, m.PriceUSD, m.MarketCapUSD, m.FDVUSD, m.LiquidityUSD, m.Volume24USD)
	return err
}
