package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

const (
	defaultBaseURL = "https://api.dexscreener.com/latest/dex/tokens/"
	chainSolana    = "solana"

	// USDCMint is the Solana USDC mint; its price is expected near 1.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var ErrNoPrice = errors.New("no price available")

var (
	stableLow     = decimal.RequireFromString("0.8")
	stableHigh    = decimal.RequireFromString("1.2")
	outlierFactor = decimal.NewFromInt(10)
)

// IsStable reports whether mint is priced by the stable-coin rule.
func IsStable(mint string) bool {
	return mint == USDCMint
}

// InStableRange reports whether p is a believable stable-coin price.
func InStableRange(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(stableLow) && p.LessThanOrEqual(stableHigh)
}

type Metrics struct {
	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	FDVUSD       decimal.Decimal
	LiquidityUSD decimal.Decimal
	Volume24USD  decimal.Decimal
}

type pair struct {
	price     decimal.Decimal
	hasPrice  bool
	liquidity decimal.Decimal
	raw       gjson.Result
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: config.DexscreenerTimeout},
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// Price picks a robust USD price across the token's Solana pairs.
func (c *Client) Price(ctx context.Context, mint string) (decimal.Decimal, error) {
	pairs, err := c.pairs(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}
	return robustPrice(mint, pairs)
}

// Metrics returns the robust price plus the market figures of the most
// liquid pair.
func (c *Client) Metrics(ctx context.Context, mint string) (Metrics, error) {
	pairs, err := c.pairs(ctx, mint)
	if err != nil {
		return Metrics{}, err
	}
	price, err := robustPrice(mint, pairs)
	if err != nil {
		return Metrics{}, err
	}
	best := mostLiquid(pairs)
	return Metrics{
		PriceUSD:     price,
		MarketCapUSD: decimalOf(best.raw.Get("marketCap")),
		FDVUSD:       decimalOf(best.raw.Get("fdv")),
		LiquidityUSD: best.liquidity,
		Volume24USD:  decimalOf(best.raw.Get("volume.h24")),
	}, nil
}

func (c *Client) pairs(ctx context.Context, mint string) ([]pair, error) {
	if mint == "" {
		return nil, errors.New("token mint is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+mint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read dexscreener response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("dexscreener: invalid JSON")
	}

	var pairs []pair
	for _, p := range gjson.GetBytes(body, "pairs").Array() {
		if !p.IsObject() || p.Get("chainId").String() != chainSolana {
			continue
		}
		entry := pair{raw: p, liquidity: decimalOf(p.Get("liquidity.usd"))}
		if v := p.Get("priceUsd"); v.Exists() && v.Type != gjson.Null {
			if d, err := decimal.NewFromString(v.String()); err == nil {
				entry.price, entry.hasPrice = d, true
			}
		}
		pairs = append(pairs, entry)
	}
	if len(pairs) == 0 {
		return nil, ErrNoPrice
	}
	return pairs, nil
}

func robustPrice(mint string, pairs []pair) (decimal.Decimal, error) {
	var prices []decimal.Decimal
	for _, p := range pairs {
		if p.hasPrice {
			prices = append(prices, p.price)
		}
	}
	if len(prices) == 0 {
		return decimal.Zero, ErrNoPrice
	}

	if IsStable(mint) {
		var inRange []decimal.Decimal
		for _, p := range prices {
			if InStableRange(p) {
				inRange = append(inRange, p)
			}
		}
		if len(inRange) == 0 {
			inRange = prices
		}
		med := median(inRange)
		if !InStableRange(med) {
			log.Warn().Str("mint", mint).Str("median", med.String()).Msg("stable coin median out of expected range")
		}
		return med, nil
	}

	best := mostLiquid(pairs)
	if !best.hasPrice {
		return prices[0], nil
	}
	med := median(prices)
	if med.IsPositive() && best.price.IsPositive() &&
		(best.price.Div(med).GreaterThan(outlierFactor) || med.Div(best.price).GreaterThan(outlierFactor)) {
		log.Warn().
			Str("mint", mint).
			Str("best", best.price.String()).
			Str("median", med.String()).
			Msg("outlier price on most liquid pair, using median")
		return med, nil
	}
	return best.price, nil
}

func mostLiquid(pairs []pair) pair {
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.liquidity.GreaterThan(best.liquidity) {
			best = p
		}
	}
	return best
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func decimalOf(v gjson.Result) decimal.Decimal {
	if !v.Exists() || v.Type == gjson.Null {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
