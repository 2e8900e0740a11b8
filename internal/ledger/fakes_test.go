package ledger

import (
	"context"
	"errors"
	"math/big"
	"sort"

	"github.com/token-ledger/internal/models"
)

// memStore is a map-backed Store. Writes are staged per Tx and only become
// visible on Commit.
type memStore struct {
	tokens    map[string]*models.Token
	accounts  map[string]*models.Account
	balances  map[string]*models.AccountBalance
	transfers map[string]*models.TransferEvent

	failSaveBalance bool
	commits         int
}

func newMemStore() *memStore {
	return &memStore{
		tokens:    make(map[string]*models.Token),
		accounts:  make(map[string]*models.Account),
		balances:  make(map[string]*models.AccountBalance),
		transfers: make(map[string]*models.TransferEvent),
	}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	return &memTx{
		store:     s,
		tokens:    make(map[string]*models.Token),
		accounts:  make(map[string]*models.Account),
		balances:  make(map[string]*models.AccountBalance),
		transfers: make(map[string]*models.TransferEvent),
	}, nil
}

func (s *memStore) register(t *models.Token) {
	s.tokens[t.Address] = t.Clone()
}

func (s *memStore) token(address string) *models.Token {
	return s.tokens[address]
}

func (s *memStore) balanceOf(account, token string) *big.Int {
	if b, ok := s.balances[models.BalanceID(account, token)]; ok {
		return b.Amount
	}
	return new(big.Int)
}

func (s *memStore) transferIDs() []string {
	ids := make([]string, 0, len(s.transfers))
	for id := range s.transfers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type memTx struct {
	store     *memStore
	tokens    map[string]*models.Token
	accounts  map[string]*models.Account
	balances  map[string]*models.AccountBalance
	transfers map[string]*models.TransferEvent
	done      bool
}

func (tx *memTx) LoadToken(ctx context.Context, address string) (*models.Token, error) {
	if t, ok := tx.tokens[address]; ok {
		return t.Clone(), nil
	}
	return tx.store.tokens[address].Clone(), nil
}

func (tx *memTx) LoadAccount(ctx context.Context, address string) (*models.Account, error) {
	if a, ok := tx.accounts[address]; ok {
		return a, nil
	}
	return tx.store.accounts[address], nil
}

func (tx *memTx) LoadBalance(ctx context.Context, account, token string) (*models.AccountBalance, error) {
	id := models.BalanceID(account, token)
	if b, ok := tx.balances[id]; ok {
		return b.Clone(), nil
	}
	return tx.store.balances[id].Clone(), nil
}

func (tx *memTx) SaveToken(ctx context.Context, token *models.Token) error {
	tx.tokens[token.Address] = token.Clone()
	return nil
}

func (tx *memTx) SaveAccount(ctx context.Context, account *models.Account) error {
	tx.accounts[account.Address] = &models.Account{Address: account.Address}
	return nil
}

func (tx *memTx) SaveBalance(ctx context.Context, balance *models.AccountBalance) error {
	if tx.store.failSaveBalance {
		return errors.New("disk full")
	}
	tx.balances[balance.ID()] = balance.Clone()
	return nil
}

func (tx *memTx) SaveTransferEvent(ctx context.Context, event *models.TransferEvent) error {
	ev := *event
	tx.transfers[event.ID()] = &ev
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return errors.New("tx already closed")
	}
	tx.done = true
	for k, v := range tx.tokens {
		tx.store.tokens[k] = v
	}
	for k, v := range tx.accounts {
		tx.store.accounts[k] = v
	}
	for k, v := range tx.balances {
		tx.store.balances[k] = v
	}
	for k, v := range tx.transfers {
		tx.store.transfers[k] = v
	}
	tx.store.commits++
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.done = true
	return nil
}

// fakeReader answers contract calls from fixed tables. A missing entry is unavailable.
type fakeReader struct {
	supply   func(token string, block uint64) Lookup[*big.Int]
	names    map[string]string
	symbols  map[string]string
	decimals map[string]uint8

	metadataCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		names:    make(map[string]string),
		symbols:  make(map[string]string),
		decimals: make(map[string]uint8),
	}
}

func (r *fakeReader) supplyIs(v int64) {
	r.supply = func(string, uint64) Lookup[*big.Int] { return Found(big.NewInt(v)) }
}

func (r *fakeReader) supplyUnavailable() {
	r.supply = func(string, uint64) Lookup[*big.Int] { return Unavailable[*big.Int]() }
}

func (r *fakeReader) TotalSupply(ctx context.Context, token string, block uint64) Lookup[*big.Int] {
	if r.supply == nil {
		return Unavailable[*big.Int]()
	}
	return r.supply(token, block)
}

func (r *fakeReader) Name(ctx context.Context, token string) Lookup[string] {
	r.metadataCalls++
	if v, ok := r.names[token]; ok {
		return Found(v)
	}
	return Unavailable[string]()
}

func (r *fakeReader) Symbol(ctx context.Context, token string) Lookup[string] {
	if v, ok := r.symbols[token]; ok {
		return Found(v)
	}
	return Unavailable[string]()
}

func (r *fakeReader) Decimals(ctx context.Context, token string) Lookup[uint8] {
	if v, ok := r.decimals[token]; ok {
		return Found(v)
	}
	return Unavailable[uint8]()
}
