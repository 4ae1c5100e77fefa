package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	"github.com/strawberry/sitebuilder-go/internal/config"
)

// SiteLimitText is the body of a rejected published-site request.
const SiteLimitText = "Rate limit exceeded for this website. Try again later."

// SiteLimiter counts requests per published site in fixed windows aligned
// to the epoch (window start = now - now % window).
type SiteLimiter interface {
	Allow(ctx context.Context, site string) bool
}

type siteWindow struct {
	start int64
	count int
}

type MemorySiteLimiter struct {
	mu     sync.Mutex
	limit  int
	window int64
	now    func() time.Time
	sites  map[string]*siteWindow
	swept  int64
}

func NewMemorySiteLimiter(limit int) *MemorySiteLimiter {
	if limit <= 0 {
		limit = config.DefaultSiteHourlyLimit
	}
	return &MemorySiteLimiter{
		limit:  limit,
		window: int64(config.SiteWindow.Seconds()),
		now:    time.Now,
		sites:  make(map[string]*siteWindow),
	}
}

func (l *MemorySiteLimiter) WithClock(now func() time.Time) *MemorySiteLimiter {
	l.now = now
	return l
}

func (l *MemorySiteLimiter) Allow(_ context.Context, site string) bool {
	now := l.now().Unix()
	start := now - now%l.window

	l.mu.Lock()
	defer l.mu.Unlock()

	if start != l.swept {
		for name, w := range l.sites {
			if w.start < start {
				delete(l.sites, name)
			}
		}
		l.swept = start
	}

	w, ok := l.sites[site]
	if !ok || w.start != start {
		w = &siteWindow{start: start}
		l.sites[site] = w
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

type SiteRateLimitMiddleware struct {
	limiter SiteLimiter
	window  int64
}

func NewSiteRateLimitMiddleware(limiter SiteLimiter) *SiteRateLimitMiddleware {
	return &SiteRateLimitMiddleware{limiter: limiter, window: int64(config.SiteWindow.Seconds())}
}

// Handler expects the site name in the "site" route parameter.
func (m *SiteRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site := chi.URLParam(r, "site")
		if site == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !m.limiter.Allow(r.Context(), site) {
			log.Warn().Str("site", site).Msg("site rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"site": site},
			})
			now := time.Now().Unix()
			w.Header().Set("Retry-After", strconv.FormatInt(m.window-now%m.window, 10))
			http.Error(w, SiteLimitText, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
