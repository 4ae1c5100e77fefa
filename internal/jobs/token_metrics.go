package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/pricing"
)

type MetricsSource interface {
	Metrics(ctx context.Context, mint string) (pricing.Metrics, error)
}

type MetricsStore interface {
	Upsert(ctx context.Context, m model.TokenMetrics) error
}

// TokenMetricsJob refreshes the stored market figures of the platform token.
type TokenMetricsJob struct {
	mint     string
	source   MetricsSource
	store    MetricsStore
	interval time.Duration
	done     chan struct{}
}

func NewTokenMetricsJob(mint string, source MetricsSource, store MetricsStore, interval time.Duration) *TokenMetricsJob {
	return &TokenMetricsJob{
		mint:     mint,
		source:   source,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *TokenMetricsJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Str("mint", j.mint).Msg("token metrics job started")
}

func (j *TokenMetricsJob) Stop() {
	close(j.done)
	log.Info().Msg("token metrics job stopped")
}

func (j *TokenMetricsJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.refresh()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *TokenMetricsJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.Refresh(ctx)
}

// Refresh reports whether new metrics were stored.
func (j *TokenMetricsJob) Refresh(ctx context.Context) bool {
	m, err := j.source.Metrics(ctx, j.mint)
	if err != nil || !m.PriceUSD.IsPositive() {
		log.Warn().Err(err).Str("mint", j.mint).Msg("token metrics unavailable this cycle")
		return false
	}
	if pricing.IsStable(j.mint) && !pricing.InStableRange(m.PriceUSD) {
		log.Warn().Str("mint", j.mint).Str("price", m.PriceUSD.String()).Msg("ignoring anomalous stable coin price")
		return false
	}

	err = j.store.Upsert(ctx, model.TokenMetrics{
		TokenAddress: j.mint,
		PriceUSD:     m.PriceUSD,
		MarketCapUSD: m.MarketCapUSD,
		FDVUSD:       m.FDVUSD,
		LiquidityUSD: m.LiquidityUSD,
		Volume24USD:  m.Volume24USD,
	})
	if err != nil {
		log.Error().Err(err).Str("mint", j.mint).Msg("failed to store token metrics")
		return false
	}
	log.Info().Str("mint", j.mint).Str("price", m.PriceUSD.String()).Msg("token metrics updated")
	return true
}
