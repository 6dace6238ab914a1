package gateway

import (
	"context"
	"errors"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// DefaultCallCost is the credit price of one proxied upstream call.
const DefaultCallCost = 2

// CreditStore is the persistence surface the meter debits against.
type CreditStore interface {
	DebitCredits(ctx context.Context, accountID string, amount int64) error
}

// CreditMeter gates proxied calls on the account's credit balance.
// Check runs before the upstream call; Debit runs only after the
// upstream call succeeds, so failed calls never cost credits.
type CreditMeter struct {
	store CreditStore
	cost  int64
}

// NewCreditMeter creates a meter with the given per-call cost.
// A non-positive cost falls back to DefaultCallCost.
func NewCreditMeter(cs CreditStore, cost int64) *CreditMeter {
	if cost <= 0 {
		cost = DefaultCallCost
	}
	return &CreditMeter{store: cs, cost: cost}
}

// Cost returns the per-call cost.
func (m *CreditMeter) Cost() int64 {
	return m.cost
}

// Check verifies the account balance covers one call. Read-only.
func (m *CreditMeter) Check(account store.Account) error {
	if account.RPCCredits < m.cost {
		return apierror.Forbidden("not enough credits")
	}
	return nil
}

// Debit subtracts one call's cost from the account. The underlying
// decrement is conditional on the balance, closing the race between
// concurrent calls that both passed Check.
func (m *CreditMeter) Debit(ctx context.Context, accountID string) error {
	err := m.store.DebitCredits(ctx, accountID, m.cost)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			return apierror.Forbidden("not enough credits")
		}
		return err
	}
	return nil
}
