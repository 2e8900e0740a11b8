package ledger

import (
	"context"

	"github.com/token-ledger/internal/models"
)

// DuplicateSuppressor detects a mint or burn whose supply change is already
// reflected locally, e.g. when one action emits both a Transfer and a
// dedicated mint/burn log.
type DuplicateSuppressor struct {
	reader ContractReader
}

// NewDuplicateSuppressor creates a suppressor backed by reader
func NewDuplicateSuppressor(reader ContractReader) *DuplicateSuppressor {
	return &DuplicateSuppressor{reader: reader}
}

// AlreadyApplied reports whether the chain's supply at blockNumber equals the
// local supply, meaning this event has been counted. When the supply cannot be
// read the local value stands in for it and the event is always applied.
func (s *DuplicateSuppressor) AlreadyApplied(ctx context.Context, token *models.Token, blockNumber uint64) bool {
	supply, ok := s.reader.TotalSupply(ctx, token.Address, blockNumber).Get()
	if !ok || supply == nil {
		return false
	}
	return supply.Cmp(token.TotalSupply) == 0
}
