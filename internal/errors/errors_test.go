package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Website not found")
		assert.Equal(t, "NOT_FOUND: Website not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "website_name"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"NotFound", func() *AppError { return NotFound("Chat") }, ErrCodeNotFound},
		{"AlreadyExists", func() *AppError { return AlreadyExists("Website") }, ErrCodeAlreadyExists},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("amount", "negative") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("hashchat") }, ErrCodeMissingRequired},
		{"SessionBusy", func() *AppError { return SessionBusy() }, ErrCodeSessionBusy},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
		{"Unavailable", func() *AppError { return Unavailable("price") }, ErrCodeUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestInsufficientBalance(t *testing.T) {
	t.Run("carries required total and recharge pointer", func(t *testing.T) {
		err := InsufficientBalance(decimal.RequireFromString("50.08"), decimal.NewFromInt(3), "https://pay.example/recharge")
		assert.Equal(t, ErrCodeInsufficientBalance, err.Code)

		details, ok := err.Details.(BalanceDetails)
		assert.True(t, ok)
		assert.Equal(t, "50.08", details.Required.String())
		assert.Equal(t, "3", details.Balance.String())
		assert.Equal(t, "https://pay.example/recharge", details.RechargeURL)
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("payment backend", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "payment backend")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := New(ErrCodeForbidden, "not yours")
		extracted, ok := AsAppError(fmt.Errorf("publish: %w", original))
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
		assert.False(t, IsAppError(errors.New("standard error")))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeSessionBusy, GetCode(SessionBusy()))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}
