package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

type PriceSource interface {
	Price(ctx context.Context, mint string) (decimal.Decimal, error)
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Cache keeps recent prices per mint. Fetches happen outside the lock so a
// slow upstream does not block readers of other mints.
type Cache struct {
	source PriceSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedPrice
}

func NewCache(source PriceSource) *Cache {
	return &Cache{
		source:  source,
		ttl:     config.PriceCacheTTL,
		now:     time.Now,
		entries: make(map[string]cachedPrice),
	}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Price(ctx context.Context, mint string) (decimal.Decimal, error) {
	now := c.now()
	c.mu.Lock()
	entry, ok := c.entries[mint]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	price, err := c.source.Price(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[mint] = cachedPrice{price: price, fetchedAt: now}
	c.mu.Unlock()
	return price, nil
}
