package models

import (
	"math/big"
	"time"

	"github.com/token-ledger/internal/types"
)

// FundraisingEvent records a launchpad purchase, claim or fee withdrawal
type FundraisingEvent struct {
	TxHash      string                `json:"transactionHash" db:"tx_hash"`
	LogIndex    uint                  `json:"logIndex" db:"log_index"`
	Kind        types.FundraisingKind `json:"kind" db:"kind"`
	Participant string                `json:"participant" db:"participant"`
	Amount      *big.Int              `json:"amount" db:"amount"`
	Cost        *big.Int              `json:"cost,omitempty" db:"cost"`
	BlockNumber uint64                `json:"blockNumber" db:"block_number"`
	Timestamp   time.Time             `json:"blockTimestamp" db:"timestamp"`
}
