package ledger

import (
	"math/big"

	"github.com/token-ledger/internal/types"
)

// Kind is the accounting meaning of a token movement
type Kind int

const (
	// KindIgnored is a zero-amount movement with no accounting effect
	KindIgnored Kind = iota
	KindMint
	KindBurn
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	case KindTransfer:
		return "transfer"
	default:
		return "ignored"
	}
}

// Classify maps a movement onto mint, burn or transfer using the sentinel
// address. The burn check runs first, so a movement from and to the
// sentinel is a burn.
func Classify(from, to string, amount *big.Int) Kind {
	if amount == nil || amount.Sign() == 0 {
		return KindIgnored
	}
	if to == types.SentinelAddress {
		return KindBurn
	}
	if from == types.SentinelAddress {
		return KindMint
	}
	return KindTransfer
}
