package ledger

import (
	"context"
	"math/big"
	"time"
)

// Position is the chain position recorded on every touched balance row
type Position struct {
	BlockNumber uint64
	Timestamp   time.Time
}

// BalanceLedger owns per-(account, token) balance rows
type BalanceLedger struct{}

// Increase adds amount to the account's balance, creating the account and row if needed
func (BalanceLedger) Increase(ctx context.Context, uow *unitOfWork, account, token string, amount *big.Int, at Position) error {
	return applyBalance(ctx, uow, account, token, at, func(cur *big.Int) *big.Int {
		return increaseAmount(cur, amount)
	})
}

// Decrease subtracts amount from the account's balance, clamping at zero
func (BalanceLedger) Decrease(ctx context.Context, uow *unitOfWork, account, token string, amount *big.Int, at Position) error {
	return applyBalance(ctx, uow, account, token, at, func(cur *big.Int) *big.Int {
		return decreaseAmount(cur, amount)
	})
}

func applyBalance(ctx context.Context, uow *unitOfWork, account, token string, at Position, update func(*big.Int) *big.Int) error {
	if err := uow.ensureAccount(ctx, account); err != nil {
		return err
	}
	b, err := uow.balance(ctx, account, token)
	if err != nil {
		return err
	}
	b.Amount = update(b.Amount)
	b.BlockNumber = at.BlockNumber
	b.Timestamp = at.Timestamp
	uow.markBalance(b)
	return nil
}

func increaseAmount(current, delta *big.Int) *big.Int {
	return new(big.Int).Add(current, delta)
}

// decreaseAmount never returns a negative value. Underflow is tolerated, not reported.
func decreaseAmount(current, delta *big.Int) *big.Int {
	out := new(big.Int).Sub(current, delta)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
