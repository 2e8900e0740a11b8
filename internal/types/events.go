package types

import (
	"math/big"
	"sort"
)

// EventKind identifies a decoded contract event
type EventKind string

const (
	EventTransfer        EventKind = "transfer"
	EventTokenCreated    EventKind = "token_created"
	EventTokenTraded     EventKind = "token_traded"
	EventTokensPurchased EventKind = "tokens_purchased"
	EventTokensClaimed   EventKind = "tokens_claimed"
	EventFeesWithdrawn   EventKind = "fees_withdrawn"
)

// ChainEvent is a decoded log together with its position in the chain.
// Exactly one of the payload pointers is set, matching Kind.
type ChainEvent struct {
	Kind        EventKind
	Address     string // emitting contract
	TxHash      string
	TxIndex     uint
	LogIndex    uint
	BlockNumber uint64
	Timestamp   int64
	Nonce       uint64

	Transfer     *TransferPayload
	TokenCreated *TokenCreatedPayload
	Trade        *TradePayload
	Fundraising  *FundraisingPayload
}

// TransferPayload carries the parameters of an ERC-20 Transfer log
type TransferPayload struct {
	From  string
	To    string
	Value *big.Int
}

// TokenCreatedPayload carries a token factory creation log. The rest of the
// token's record is read from the factory.
type TokenCreatedPayload struct {
	TokenAddress string
	Name         string
	Symbol       string
}

// TradePayload carries a token factory buy or sell log.
// Eid is zero for same-chain trades.
type TradePayload struct {
	TokenAddress string
	User         string
	TokenQty     *big.Int
	EthAmount    *big.Int
	Side         TradeSide
	Eid          uint32
}

// FundraisingPayload carries a launchpad log. Cost is only set for purchases.
type FundraisingPayload struct {
	Participant string
	Amount      *big.Int
	Cost        *big.Int
}

// Before reports whether e precedes other in chain order
func (e *ChainEvent) Before(other *ChainEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}

// SortChainEvents orders events by block, transaction position, then log position
func SortChainEvents(events []*ChainEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}
