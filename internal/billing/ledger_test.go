package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	setErr   error
}

func newMemStore(balances map[string]decimal.Decimal) *memStore {
	return &memStore{balances: balances}
}

func (s *memStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	return b, ok, nil
}

func (s *memStore) SetBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.balances[userID] = balance
	return nil
}

type recordingNotifier struct {
	got []decimal.Decimal
}

func (n *recordingNotifier) BalanceChanged(_ string, balance decimal.Decimal) {
	n.got = append(n.got, balance)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("charge deducts and notifies", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.NewFromInt(10)})
		notifier := &recordingNotifier{}
		l := NewLedger(store, notifier)

		next, err := l.Charge(ctx, "u1", decimal.RequireFromString("0.02"), "generate_music")
		require.NoError(t, err)
		assert.Equal(t, "9.98", next.String())
		require.Len(t, notifier.got, 1)
		assert.True(t, notifier.got[0].Equal(next))
	})

	t.Run("charge tokens multiplies by rate", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.NewFromInt(1)})
		l := NewLedger(store, nil)

		next, err := l.ChargeTokens(ctx, "u1", 1000, decimal.RequireFromString("0.000002"), "input tokens")
		require.NoError(t, err)
		assert.Equal(t, "0.998", next.String())
	})

	t.Run("charge may overdraw", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.RequireFromString("0.01")})
		l := NewLedger(store, nil)

		next, err := l.Charge(ctx, "u1", decimal.RequireFromString("0.02"), "generate_music")
		require.NoError(t, err)
		assert.True(t, next.IsNegative())
	})

	t.Run("credit adds", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.NewFromInt(1)})
		l := NewLedger(store, nil)

		next, err := l.Credit(ctx, "u1", decimal.NewFromInt(5), "recharge")
		require.NoError(t, err)
		assert.Equal(t, "6", next.String())
	})

	t.Run("negative credit rejected", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.NewFromInt(1)})
		l := NewLedger(store, nil)

		_, err := l.Credit(ctx, "u1", decimal.NewFromInt(-5), "recharge")
		assert.Error(t, err)
		assert.Equal(t, "1", store.balances["u1"].String())
	})

	t.Run("unknown user fails", func(t *testing.T) {
		l := NewLedger(newMemStore(map[string]decimal.Decimal{}), nil)

		_, err := l.Charge(ctx, "ghost", decimal.NewFromInt(1), "x")
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("store failure leaves balance and skips notify", func(t *testing.T) {
		store := newMemStore(map[string]decimal.Decimal{"u1": decimal.NewFromInt(3)})
		store.setErr = errors.New("db down")
		notifier := &recordingNotifier{}
		l := NewLedger(store, notifier)

		_, err := l.Charge(ctx, "u1", decimal.NewFromInt(1), "x")
		assert.Error(t, err)
		assert.Empty(t, notifier.got)
		assert.Equal(t, "3", store.balances["u1"].String())
	})
}

func TestApproxCounter(t *testing.T) {
	c := ApproxCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 2, c.Count("abcde"))
	assert.Equal(t, c.Count("same input"), c.Count("same input"))
}
