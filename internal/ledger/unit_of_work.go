package ledger

import (
	"context"
	"fmt"

	"github.com/token-ledger/internal/models"
)

// unitOfWork caches every record touched by one event so the processor
// holds the only live handle to each of them. Nothing reaches the Tx
// until flush.
type unitOfWork struct {
	tx Tx

	tokens      map[string]*models.Token
	dirtyTokens map[string]bool

	accountExists map[string]bool
	newAccounts   []*models.Account

	balances      map[string]*models.AccountBalance
	dirtyBalances []string

	transfers []*models.TransferEvent
}

func newUnitOfWork(tx Tx) *unitOfWork {
	return &unitOfWork{
		tx:            tx,
		tokens:        make(map[string]*models.Token),
		dirtyTokens:   make(map[string]bool),
		accountExists: make(map[string]bool),
		balances:      make(map[string]*models.AccountBalance),
	}
}

// token returns the handle for address, or nil when the token is not registered
func (u *unitOfWork) token(ctx context.Context, address string) (*models.Token, error) {
	if t, ok := u.tokens[address]; ok {
		return t, nil
	}
	t, err := u.tx.LoadToken(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", address, err)
	}
	if t != nil {
		t = t.Clone()
	}
	u.tokens[address] = t
	return t, nil
}

func (u *unitOfWork) markToken(address string) {
	u.dirtyTokens[address] = true
}

// hasAccount reports whether the account existed before or was created in this unit
func (u *unitOfWork) hasAccount(ctx context.Context, address string) (bool, error) {
	if exists, ok := u.accountExists[address]; ok {
		return exists, nil
	}
	acc, err := u.tx.LoadAccount(ctx, address)
	if err != nil {
		return false, fmt.Errorf("load account %s: %w", address, err)
	}
	u.accountExists[address] = acc != nil
	return acc != nil, nil
}

func (u *unitOfWork) ensureAccount(ctx context.Context, address string) error {
	exists, err := u.hasAccount(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		u.accountExists[address] = true
		u.newAccounts = append(u.newAccounts, &models.Account{Address: address})
	}
	return nil
}

// balance returns the balance handle for the pair, materializing a zero row when absent.
// The row is only persisted if it is marked dirty.
func (u *unitOfWork) balance(ctx context.Context, account, token string) (*models.AccountBalance, error) {
	id := models.BalanceID(account, token)
	if b, ok := u.balances[id]; ok {
		return b, nil
	}
	b, err := u.tx.LoadBalance(ctx, account, token)
	if err != nil {
		return nil, fmt.Errorf("load balance %s: %w", id, err)
	}
	if b == nil {
		b = models.NewAccountBalance(account, token)
	} else {
		b = b.Clone()
	}
	u.balances[id] = b
	return b, nil
}

func (u *unitOfWork) markBalance(b *models.AccountBalance) {
	id := b.ID()
	for _, d := range u.dirtyBalances {
		if d == id {
			return
		}
	}
	u.dirtyBalances = append(u.dirtyBalances, id)
}

func (u *unitOfWork) appendTransfer(ev *models.TransferEvent) {
	u.transfers = append(u.transfers, ev)
}

func (u *unitOfWork) dirty() bool {
	return len(u.dirtyTokens) > 0 || len(u.newAccounts) > 0 ||
		len(u.dirtyBalances) > 0 || len(u.transfers) > 0
}

// flush writes accounts and tokens before the balances that reference them
func (u *unitOfWork) flush(ctx context.Context) error {
	for _, acc := range u.newAccounts {
		if err := u.tx.SaveAccount(ctx, acc); err != nil {
			return fmt.Errorf("save account %s: %w", acc.Address, err)
		}
	}
	for address := range u.dirtyTokens {
		if err := u.tx.SaveToken(ctx, u.tokens[address]); err != nil {
			return fmt.Errorf("save token %s: %w", address, err)
		}
	}
	for _, id := range u.dirtyBalances {
		if err := u.tx.SaveBalance(ctx, u.balances[id]); err != nil {
			return fmt.Errorf("save balance %s: %w", id, err)
		}
	}
	for _, ev := range u.transfers {
		if err := u.tx.SaveTransferEvent(ctx, ev); err != nil {
			return fmt.Errorf("save transfer event %s: %w", ev.ID(), err)
		}
	}
	return nil
}
