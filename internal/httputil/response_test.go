package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"insufficient balance is 402", apperrors.InsufficientBalance(decimal.NewFromInt(50), decimal.Zero, ""), http.StatusPaymentRequired, apperrors.ErrCodeInsufficientBalance},
		{"ownership is 403", apperrors.Forbidden("not yours"), http.StatusForbidden, apperrors.ErrCodeForbidden},
		{"busy session is 409", apperrors.SessionBusy(), http.StatusConflict, apperrors.ErrCodeSessionBusy},
		{"rate limit is 429", apperrors.RateLimitExceeded(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded},
		{"provider failure is 502", apperrors.External("assistant", errors.New("boom")), http.StatusBadGateway, apperrors.ErrCodeExternal},
		{"plain error is 500", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}
