// Package ledger is the transfer accounting engine. It classifies each
// token movement as a mint, burn or transfer and applies it to balances,
// supply counters and holder counts in one unit of work.
package ledger

import (
	"context"
	"math/big"

	"github.com/token-ledger/internal/models"
)

// Store opens units of work against the entity store
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of work. Load methods return nil, nil when the
// record does not exist. Saves are upserts keyed by record identity.
type Tx interface {
	LoadToken(ctx context.Context, address string) (*models.Token, error)
	LoadAccount(ctx context.Context, address string) (*models.Account, error)
	LoadBalance(ctx context.Context, account, token string) (*models.AccountBalance, error)

	SaveToken(ctx context.Context, token *models.Token) error
	SaveAccount(ctx context.Context, account *models.Account) error
	SaveBalance(ctx context.Context, balance *models.AccountBalance) error
	SaveTransferEvent(ctx context.Context, event *models.TransferEvent) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ContractReader performs best-effort read-only calls against token contracts
type ContractReader interface {
	// TotalSupply reads totalSupply() as of blockNumber
	TotalSupply(ctx context.Context, token string, blockNumber uint64) Lookup[*big.Int]
	Name(ctx context.Context, token string) Lookup[string]
	Symbol(ctx context.Context, token string) Lookup[string]
	Decimals(ctx context.Context, token string) Lookup[uint8]
}
