package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	v, err := parseNumeric(numericArg(huge))
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(v))

	assert.Equal(t, "0", numericArg(nil))
	assert.Nil(t, nullableNumericArg(nil))

	_, err = parseNumeric("1.5")
	assert.Error(t, err)

	none, err := parseNullableNumeric(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}
