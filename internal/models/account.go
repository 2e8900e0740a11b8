package models

import (
	"fmt"
	"math/big"
	"time"
)

// Account is an address that has been touched by a balance-affecting event
type Account struct {
	Address string `json:"address" db:"address"`
}

// AccountBalance is the balance of one account for one token
type AccountBalance struct {
	Account     string    `json:"account" db:"account"`
	Token       string    `json:"token" db:"token"`
	Amount      *big.Int  `json:"amount" db:"amount"`
	BlockNumber uint64    `json:"blockNumber" db:"block_number"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// NewAccountBalance returns a zero balance row for the pair
func NewAccountBalance(account, token string) *AccountBalance {
	return &AccountBalance{
		Account: account,
		Token:   token,
		Amount:  new(big.Int),
	}
}

// ID returns the storage key of the balance row
func (b *AccountBalance) ID() string {
	return BalanceID(b.Account, b.Token)
}

// Clone returns a deep copy
func (b *AccountBalance) Clone() *AccountBalance {
	if b == nil {
		return nil
	}
	c := *b
	c.Amount = cloneInt(b.Amount)
	return &c
}

// BalanceID builds the account-token key
func BalanceID(account, token string) string {
	return fmt.Sprintf("%s-%s", account, token)
}
