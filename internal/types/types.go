// Package types provides common type definitions for the token ledger system.
package types

import (
	"regexp"
	"strings"
)

// ChainID represents the network an indexer instance follows
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
)

// SentinelAddress is the zero address. A transfer from it is a mint, a transfer to it is a burn.
const SentinelAddress = "0x0000000000000000000000000000000000000000"

// DefaultDecimals is used when a token does not expose decimals()
const DefaultDecimals uint8 = 18

var addressPattern = regexp.MustCompile("^0x[a-f0-9]{40}$")

// NormalizeAddress lowercases an address and adds the 0x prefix if missing
func NormalizeAddress(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// IsValidAddress reports whether address is a 20-byte hex address (any case)
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(NormalizeAddress(address))
}

// TradeSide is the direction of a bonding-curve trade
type TradeSide string

const (
	// SideBuy represents a purchase from the token factory
	SideBuy TradeSide = "buy"
	// SideSell represents a sale back to the token factory
	SideSell TradeSide = "sell"
)

// FundraisingKind identifies a launchpad event
type FundraisingKind string

const (
	FundraisingTokensPurchased FundraisingKind = "tokens_purchased"
	FundraisingTokensClaimed   FundraisingKind = "tokens_claimed"
	FundraisingFeesWithdrawn   FundraisingKind = "fees_withdrawn"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}
