package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

const siteLimitKeyPrefix = "site:"

// The key expires a minute after its window so late INCRs never revive it.
var siteLimitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisSiteLimiter shares per-site windows between instances.
type RedisSiteLimiter struct {
	client *redis.Client
	limit  int
	window int64
	now    func() time.Time
}

func NewRedisSiteLimiter(client *redis.Client, limit int) *RedisSiteLimiter {
	if limit <= 0 {
		limit = config.DefaultSiteHourlyLimit
	}
	return &RedisSiteLimiter{
		client: client,
		limit:  limit,
		window: int64(config.SiteWindow.Seconds()),
		now:    time.Now,
	}
}

func (l *RedisSiteLimiter) WithClock(now func() time.Time) *RedisSiteLimiter {
	l.now = now
	return l
}

// Allow fails open: a Redis error lets the request through.
func (l *RedisSiteLimiter) Allow(ctx context.Context, site string) bool {
	now := l.now().Unix()
	key := fmt.Sprintf("%s%s:%d", siteLimitKeyPrefix, site, now-now%l.window)

	count, err := siteLimitScript.Run(ctx, l.client, []string{key}, l.window+60).Int64()
	if err != nil {
		log.Warn().Err(err).Str("site", site).Msg("redis site limit check failed, allowing request")
		return true
	}
	return count <= int64(l.limit)
}
