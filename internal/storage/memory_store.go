package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// ErrTxClosed is returned when a committed or rolled back transaction is reused
var ErrTxClosed = errors.New("transaction already closed")

// MemoryStore keeps the whole ledger in process memory. It implements the
// same store and query surface as the Postgres repositories and backs
// range replays and tests.
type MemoryStore struct {
	mu sync.RWMutex

	tokens      map[string]*models.Token
	accounts    map[string]*models.Account
	balances    map[string]*models.AccountBalance
	transfers   map[string]*models.TransferEvent
	purchases   map[string]*models.PurchaseHistory
	fundraising map[string]*models.FundraisingEvent
	progress    map[string]uint64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:      make(map[string]*models.Token),
		accounts:    make(map[string]*models.Account),
		balances:    make(map[string]*models.AccountBalance),
		transfers:   make(map[string]*models.TransferEvent),
		purchases:   make(map[string]*models.PurchaseHistory),
		fundraising: make(map[string]*models.FundraisingEvent),
		progress:    make(map[string]uint64),
	}
}

// Begin starts a unit of work. Writes become visible on Commit.
func (s *MemoryStore) Begin(ctx context.Context) (ledger.Tx, error) {
	return &memoryTx{
		store:     s,
		tokens:    make(map[string]*models.Token),
		accounts:  make(map[string]*models.Account),
		balances:  make(map[string]*models.AccountBalance),
		transfers: make(map[string]*models.TransferEvent),
	}, nil
}

type memoryTx struct {
	store     *MemoryStore
	tokens    map[string]*models.Token
	accounts  map[string]*models.Account
	balances  map[string]*models.AccountBalance
	transfers map[string]*models.TransferEvent
	closed    bool
}

func (tx *memoryTx) LoadToken(ctx context.Context, address string) (*models.Token, error) {
	if t, ok := tx.tokens[address]; ok {
		return t.Clone(), nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.tokens[address].Clone(), nil
}

func (tx *memoryTx) LoadAccount(ctx context.Context, address string) (*models.Account, error) {
	if a, ok := tx.accounts[address]; ok {
		return &models.Account{Address: a.Address}, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if a, ok := tx.store.accounts[address]; ok {
		return &models.Account{Address: a.Address}, nil
	}
	return nil, nil
}

func (tx *memoryTx) LoadBalance(ctx context.Context, account, token string) (*models.AccountBalance, error) {
	id := models.BalanceID(account, token)
	if b, ok := tx.balances[id]; ok {
		return b.Clone(), nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.balances[id].Clone(), nil
}

func (tx *memoryTx) SaveToken(ctx context.Context, t *models.Token) error {
	tx.tokens[t.Address] = t.Clone()
	return nil
}

func (tx *memoryTx) SaveAccount(ctx context.Context, a *models.Account) error {
	tx.accounts[a.Address] = &models.Account{Address: a.Address}
	return nil
}

func (tx *memoryTx) SaveBalance(ctx context.Context, b *models.AccountBalance) error {
	tx.balances[b.ID()] = b.Clone()
	return nil
}

func (tx *memoryTx) SaveTransferEvent(ctx context.Context, e *models.TransferEvent) error {
	tx.transfers[e.ID()] = cloneTransfer(e)
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range tx.tokens {
		s.tokens[k] = v
	}
	for k, v := range tx.accounts {
		s.accounts[k] = v
	}
	for k, v := range tx.balances {
		s.balances[k] = v
	}
	for k, v := range tx.transfers {
		s.transfers[k] = v
	}
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	tx.closed = true
	return nil
}

func cloneTransfer(e *models.TransferEvent) *models.TransferEvent {
	c := *e
	if e.Amount != nil {
		c.Amount = cloneBig(e.Amount)
	}
	return &c
}

// SavePurchase upserts a trade
func (s *MemoryStore) SavePurchase(ctx context.Context, p *models.PurchaseHistory) error {
	c := *p
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[activityKey(p.TxHash, p.LogIndex)] = &c
	return nil
}

// SaveFundraisingEvent upserts a launchpad event
func (s *MemoryStore) SaveFundraisingEvent(ctx context.Context, f *models.FundraisingEvent) error {
	c := *f
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundraising[activityKey(f.TxHash, f.LogIndex)] = &c
	return nil
}

// LoadProgress returns the last processed block for chain
func (s *MemoryStore) LoadProgress(ctx context.Context, chain string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.progress[chain]
	return block, ok, nil
}

// SaveProgress records block as processed
func (s *MemoryStore) SaveProgress(ctx context.Context, chain string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[chain] = block
	return nil
}

// GetToken returns the token or nil when it is not tracked
func (s *MemoryStore) GetToken(ctx context.Context, address string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[address].Clone(), nil
}

// ListTokens returns tokens, most recently created first
func (s *MemoryStore) ListTokens(ctx context.Context, page Page) ([]*models.Token, error) {
	s.mu.RLock()
	out := make([]*models.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedBlock != out[j].CreatedBlock {
			return out[i].CreatedBlock > out[j].CreatedBlock
		}
		return out[i].Address < out[j].Address
	})
	return paginate(out, page), nil
}

// ListTokenAddresses returns the address of every tracked token
func (s *MemoryStore) ListTokenAddresses(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.tokens))
	for addr := range s.tokens {
		out = append(out, addr)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// ListTransfers returns a token's transfer log, newest first
func (s *MemoryStore) ListTransfers(ctx context.Context, token string, page Page) ([]*models.TransferEvent, error) {
	s.mu.RLock()
	var out []*models.TransferEvent
	for _, e := range s.transfers {
		if e.Token == token {
			out = append(out, cloneTransfer(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return paginate(out, page), nil
}

// ListHolders returns accounts with a positive balance of token, largest first
func (s *MemoryStore) ListHolders(ctx context.Context, token string, page Page) ([]*models.AccountBalance, error) {
	s.mu.RLock()
	var out []*models.AccountBalance
	for _, b := range s.balances {
		if b.Token == token && b.Account != types.SentinelAddress && b.Amount.Sign() > 0 {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Account < out[j].Account
	})
	return paginate(out, page), nil
}

// ListAccountBalances returns every balance row of an account
func (s *MemoryStore) ListAccountBalances(ctx context.Context, account string) ([]*models.AccountBalance, error) {
	s.mu.RLock()
	var out []*models.AccountBalance
	for _, b := range s.balances {
		if b.Account == account {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// ListPurchases returns a token's trades, newest first
func (s *MemoryStore) ListPurchases(ctx context.Context, token string, page Page) ([]*models.PurchaseHistory, error) {
	s.mu.RLock()
	var out []*models.PurchaseHistory
	for _, p := range s.purchases {
		if p.Token == token {
			c := *p
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return paginate(out, page), nil
}

// ListFundraising returns launchpad events, newest first
func (s *MemoryStore) ListFundraising(ctx context.Context, page Page) ([]*models.FundraisingEvent, error) {
	s.mu.RLock()
	out := make([]*models.FundraisingEvent, 0, len(s.fundraising))
	for _, f := range s.fundraising {
		c := *f
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return paginate(out, page), nil
}

func paginate[T any](items []T, page Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
