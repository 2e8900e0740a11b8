package models

import (
	"math/big"
	"time"

	"github.com/token-ledger/internal/types"
)

// PurchaseHistory records a buy or sell against the token factory.
// Price is nil when the factory could not be read.
type PurchaseHistory struct {
	TxHash      string          `json:"hash" db:"tx_hash"`
	LogIndex    uint            `json:"logIndex" db:"log_index"`
	Token       string          `json:"token" db:"token"`
	Account     string          `json:"account" db:"account"`
	Amount      *big.Int        `json:"amount" db:"amount"`
	EthAmount   *big.Int        `json:"ethAmount" db:"eth_amount"`
	Price       *big.Int        `json:"price,omitempty" db:"price"`
	Side        types.TradeSide `json:"type" db:"side"`
	Eid         uint32          `json:"eid" db:"eid"`
	BlockNumber uint64          `json:"blockNumber" db:"block_number"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}
