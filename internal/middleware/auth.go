package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/httputil"
)

type contextKey string

const WebhookClaimsContextKey contextKey = "webhookClaims"

// WebhookClaims is what the payment backend signs when it reports a recharge.
type WebhookClaims struct {
	UserID      string          `json:"user_id,omitempty"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Wallet      string          `json:"wallet,omitempty"`
	SignatureTx string          `json:"signature_tx,omitempty"`
	jwt.RegisteredClaims
}

func GetWebhookClaims(ctx context.Context) *WebhookClaims {
	if claims, ok := ctx.Value(WebhookClaimsContextKey).(*WebhookClaims); ok {
		return claims
	}
	return nil
}

var errWebhooksDisabled = errors.New("webhook secret not configured")

// WebhookAuth verifies HS256 tokens signed with the shared JWT secret.
type WebhookAuth struct {
	secret []byte
}

func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{secret: []byte(secret)}
}

func (a *WebhookAuth) Parse(token string) (*WebhookClaims, error) {
	if len(a.secret) == 0 {
		return nil, errWebhooksDisabled
	}
	claims := &WebhookClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify webhook token: %w", err)
	}
	return claims, nil
}

// Sign produces a token the payment backend can verify with the same secret.
func (a *WebhookAuth) Sign(claims jwt.Claims) (string, error) {
	if len(a.secret) == 0 {
		return "", errWebhooksDisabled
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *WebhookAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		claims, err := a.Parse(token)
		if err != nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventWebhookRejected,
				Details: map[string]interface{}{"reason": err.Error()},
			})
			if errors.Is(err, errWebhooksDisabled) {
				httputil.WriteError(w, apperrors.Unavailable("Webhooks are not configured"))
				return
			}
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), WebhookClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
