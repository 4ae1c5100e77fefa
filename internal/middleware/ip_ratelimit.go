package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
)

// WindowLimiter is a sliding-window counter shared between instances;
// service.RateLimiter implements it over Redis.
type WindowLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// IPRateLimitMiddleware throttles expensive endpoints such as uploads and
// deposits per client IP.
type IPRateLimitMiddleware struct {
	limiter WindowLimiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter WindowLimiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{limiter: limiter, limit: limit, window: window, prefix: prefix}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ip:%s:%s", m.prefix, audit.ClientIP(r))
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)
		if !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			httputil.WriteError(w, apperrors.New(apperrors.ErrCodeRateLimitExceeded, "Too many requests. Please try again later."))
			return
		}
		next.ServeHTTP(w, r)
	})
}
