package models

import (
	"fmt"
	"math/big"
	"time"
)

// TransferEvent is an immutable log row for a genuine (non-mint, non-burn) transfer
type TransferEvent struct {
	Token       string    `json:"token" db:"token" ch:"token"`
	TxHash      string    `json:"hash" db:"tx_hash" ch:"tx_hash"`
	LogIndex    uint      `json:"logIndex" db:"log_index" ch:"log_index"`
	From        string    `json:"from" db:"from_address" ch:"from_address"`
	To          string    `json:"to" db:"to_address" ch:"to_address"`
	Amount      *big.Int  `json:"amount" db:"amount" ch:"amount"`
	Nonce       uint64    `json:"nonce" db:"nonce" ch:"nonce"`
	BlockNumber uint64    `json:"blockNumber" db:"block_number" ch:"block_number"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp" ch:"timestamp"`
}

// ID returns the (token, transaction hash, log index) key
func (e *TransferEvent) ID() string {
	return TransferEventID(e.Token, e.TxHash, e.LogIndex)
}

// TransferEventID builds the transfer log key
func TransferEventID(token, txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%s-%d", token, txHash, logIndex)
}
