package storage

import (
	"fmt"
	"math/big"
)

// Postgres NUMERIC values travel as decimal text: written as $n::numeric,
// read back as column::text.

func numericArg(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullableNumericArg(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func parseNullableNumeric(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseNumeric(*s)
}

func cloneBig(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

func activityKey(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}
