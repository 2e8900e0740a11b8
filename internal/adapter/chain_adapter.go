// Package adapter reads token, factory and launchpad logs from an EVM chain
// and performs the read-only contract calls the ledger depends on.
package adapter

import (
	"context"
	"fmt"

	"github.com/token-ledger/internal/types"
)

// EventSource yields decoded contract events for a block range
type EventSource interface {
	// GetCurrentBlock returns the latest block number of the chain
	GetCurrentBlock(ctx context.Context) (uint64, error)

	// FetchEvents returns every factory, launchpad and Transfer event in
	// [from, to] for the given tracked tokens, sorted in chain order.
	// Tokens created by the factory inside the range are included.
	FetchEvents(ctx context.Context, from, to uint64, tokens []string) ([]*types.ChainEvent, error)
}

var (
	// ErrInvalidBlockRange indicates an invalid block range was specified
	ErrInvalidBlockRange = fmt.Errorf("invalid block range")

	// ErrUndecodableLog indicates a log whose topics or data do not match the expected ABI
	ErrUndecodableLog = fmt.Errorf("log does not match event abi")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "FetchEvents", "GetCurrentBlock")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
