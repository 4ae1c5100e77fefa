package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
)

const (
	loginWindow        = time.Minute
	loginCleanupPeriod = 5 * time.Minute
)

type loginAttempt struct {
	count       int
	windowStart time.Time
}

// LoginRateLimiter caps signup and login attempts per client IP.
type LoginRateLimiter struct {
	mu          sync.Mutex
	max         int
	attempts    map[string]*loginAttempt
	lastCleanup time.Time
	now         func() time.Time
}

func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{
		max:         config.LoginAttemptsPerMinute,
		attempts:    make(map[string]*loginAttempt),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *LoginRateLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < loginCleanupPeriod {
		return
	}
	l.lastCleanup = now
	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > loginWindow {
			delete(l.attempts, ip)
		}
	}
}

// allow returns how long to wait when the attempt is refused.
func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, ok := l.attempts[ip]
	if !ok || now.Sub(attempt.windowStart) > loginWindow {
		l.attempts[ip] = &loginAttempt{count: 1, windowStart: now}
		return true, 0
	}
	if attempt.count >= l.max {
		return false, loginWindow - now.Sub(attempt.windowStart)
	}
	attempt.count++
	return true, 0
}

func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(audit.ClientIP(r))
		if !ok {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			httputil.WriteError(w, apperrors.New(apperrors.ErrCodeRateLimitExceeded, "Too many login attempts. Please try again later."))
			return
		}
		next.ServeHTTP(w, r)
	})
}
