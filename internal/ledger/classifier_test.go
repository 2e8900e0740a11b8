package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/token-ledger/internal/types"
)

func TestClassify(t *testing.T) {
	const a = "0x0000000000000000000000000000000000000001"
	const b = "0x0000000000000000000000000000000000000002"
	s := types.SentinelAddress

	tests := []struct {
		name   string
		from   string
		to     string
		amount *big.Int
		want   Kind
	}{
		{"transfer", a, b, big.NewInt(1), KindTransfer},
		{"mint", s, a, big.NewInt(1), KindMint},
		{"burn", a, s, big.NewInt(1), KindBurn},
		{"sentinel to sentinel is burn", s, s, big.NewInt(1), KindBurn},
		{"zero amount", a, b, big.NewInt(0), KindIgnored},
		{"zero amount mint", s, a, new(big.Int), KindIgnored},
		{"nil amount", a, b, nil, KindIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.from, tt.to, tt.amount))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "mint", KindMint.String())
	assert.Equal(t, "burn", KindBurn.String())
	assert.Equal(t, "transfer", KindTransfer.String())
	assert.Equal(t, "ignored", KindIgnored.String())
}

func TestLookup(t *testing.T) {
	v, ok := Found("x").Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	missing := Unavailable[uint8]()
	assert.False(t, missing.OK())
	assert.Equal(t, uint8(18), missing.OrElse(18))
	assert.Equal(t, uint8(6), Found[uint8](6).OrElse(18))
}
