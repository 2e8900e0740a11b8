package ledger

import (
	"context"
	"math/big"

	"github.com/token-ledger/internal/models"
)

var one = big.NewInt(1)

// HolderDelta is computed from balances before a transfer is applied
type HolderDelta struct {
	FromGoesToZero int64
	IsNewHolder    int64
	DestWasEmpty   int64
}

// Current is the change to the current holder count
func (d HolderDelta) Current() int64 {
	return d.IsNewHolder + d.DestWasEmpty - d.FromGoesToZero
}

// HolderCounter maintains current and cumulative holder counts for genuine transfers
type HolderCounter struct{}

// Observe reads pre-transfer state. It must run before any balance of this transfer changes.
func (HolderCounter) Observe(ctx context.Context, uow *unitOfWork, token, from, to string, amount *big.Int) (HolderDelta, error) {
	var d HolderDelta

	src, err := uow.balance(ctx, from, token)
	if err != nil {
		return d, err
	}
	if src.Amount.Cmp(amount) == 0 {
		d.FromGoesToZero = 1
	}

	exists, err := uow.hasAccount(ctx, to)
	if err != nil {
		return d, err
	}
	if !exists {
		d.IsNewHolder = 1
		return d, nil
	}

	dst, err := uow.balance(ctx, to, token)
	if err != nil {
		return d, err
	}
	// Compares against one, not zero. Kept as observed upstream.
	if dst.Amount.Cmp(one) == 0 {
		d.DestWasEmpty = 1
	}
	return d, nil
}

// Apply updates the token's holder fields. The current count is floored at zero.
func (HolderCounter) Apply(token *models.Token, d HolderDelta) {
	token.CurrentHolderCount += d.Current()
	if token.CurrentHolderCount < 0 {
		token.CurrentHolderCount = 0
	}
	token.CumulativeHolderCount += d.IsNewHolder
}
