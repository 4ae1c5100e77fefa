package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/audit"
)

// BalanceStore is the persisted USD balance per user.
type BalanceStore interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
}

// BalanceNotifier is told about every balance change after it is stored.
type BalanceNotifier interface {
	BalanceChanged(userID string, balance decimal.Decimal)
}

var ErrUnknownUser = fmt.Errorf("unknown user")

// Ledger charges and credits user balances. Writes are read-modify-write and
// are not serialized across flows; callers that need exclusion provide it.
type Ledger struct {
	store    BalanceStore
	notifier BalanceNotifier
}

func NewLedger(store BalanceStore, notifier BalanceNotifier) *Ledger {
	return &Ledger{store: store, notifier: notifier}
}

// WithStore returns a ledger over a different store, e.g. a transaction-scoped repository.
func (l *Ledger) WithStore(store BalanceStore) *Ledger {
	return &Ledger{store: store, notifier: l.notifier}
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	balance, found, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	if !found {
		return decimal.Zero, ErrUnknownUser
	}
	return balance, nil
}

// Charge subtracts cost and returns the new balance. The result may go negative.
func (l *Ledger) Charge(ctx context.Context, userID string, cost decimal.Decimal, reason string) (decimal.Decimal, error) {
	next, err := l.apply(ctx, userID, cost.Neg())
	if err != nil {
		return decimal.Zero, fmt.Errorf("charge %s: %w", reason, err)
	}
	audit.Log(ctx, audit.Event{
		Type:   audit.EventBalanceCharge,
		UserID: userID,
		Details: map[string]interface{}{
			"reason":  reason,
			"cost":    cost,
			"balance": next,
		},
	})
	return next, nil
}

// ChargeTokens charges tokens*rate.
func (l *Ledger) ChargeTokens(ctx context.Context, userID string, tokens int, rate decimal.Decimal, reason string) (decimal.Decimal, error) {
	return l.Charge(ctx, userID, rate.Mul(decimal.NewFromInt(int64(tokens))), reason)
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("credit %s: negative amount %s", reason, amount)
	}
	next, err := l.apply(ctx, userID, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit %s: %w", reason, err)
	}
	audit.Log(ctx, audit.Event{
		Type:   audit.EventBalanceCredit,
		UserID: userID,
		Details: map[string]interface{}{
			"reason":  reason,
			"amount":  amount,
			"balance": next,
		},
	})
	return next, nil
}

func (l *Ledger) apply(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := l.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	next := current.Add(delta)
	if err := l.store.SetBalance(ctx, userID, next); err != nil {
		return decimal.Zero, fmt.Errorf("set balance: %w", err)
	}
	if l.notifier != nil {
		l.notifier.BalanceChanged(userID, next)
	}
	log.Debug().Str("userId", userID).Str("delta", delta.String()).Str("balance", next.String()).Msg("Balance updated")
	return next, nil
}
