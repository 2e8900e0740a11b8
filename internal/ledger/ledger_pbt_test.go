package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

var pbtAccounts = []string{
	types.SentinelAddress,
	"0x0000000000000000000000000000000000000001",
	"0x0000000000000000000000000000000000000002",
	"0x0000000000000000000000000000000000000003",
}

// decodeOp spreads one generated integer over sender, receiver and amount.
// Amounts stay small so ones and exact drains come up often.
func decodeOp(op int) (from, to string, amount int64) {
	from = pbtAccounts[op%4]
	to = pbtAccounts[(op/4)%4]
	amount = int64((op / 16) % 6)
	return from, to, amount
}

func TestLedgerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("balances and holder counts stay non-negative", prop.ForAll(
		func(ops []int) bool {
			store := newMemStore()
			store.register(&models.Token{
				Address:          tokenT,
				Name:             "P",
				MetadataResolved: true,
				TotalSupply:      new(big.Int),
				TotalMinted:      new(big.Int),
				TotalBurned:      new(big.Int),
			})
			reader := newFakeReader()
			reader.supplyUnavailable()
			proc, err := NewTransferProcessor(&ProcessorConfig{Store: store, Reader: reader, Logger: logging.NewNop()})
			if err != nil {
				return false
			}

			lastCumulative := int64(0)
			for i, op := range ops {
				from, to, amount := decodeOp(op)
				_, err := proc.Process(context.Background(), &Transfer{
					Token:    tokenT,
					From:     from,
					To:       to,
					Amount:   big.NewInt(amount),
					TxHash:   "0x01",
					LogIndex: uint(i),
				})
				if err != nil {
					return false
				}

				tok := store.token(tokenT)
				if tok.CurrentHolderCount < 0 || tok.CumulativeHolderCount < lastCumulative {
					return false
				}
				lastCumulative = tok.CumulativeHolderCount

				for _, b := range store.balances {
					if b.Amount.Sign() < 0 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("replaying applied logs changes nothing", prop.ForAll(
		func(ops []int, replayFrom int) bool {
			store := newMemStore()
			store.register(models.NewToken(tokenT))
			reader := newFakeReader()
			reader.supplyUnavailable()
			proc, err := NewTransferProcessor(&ProcessorConfig{Store: store, Reader: reader, Logger: logging.NewNop()})
			if err != nil {
				return false
			}

			run := func(start int) bool {
				for i := start; i < len(ops); i++ {
					from, to, amount := decodeOp(ops[i])
					if _, err := proc.Process(context.Background(), &Transfer{
						Token:       tokenT,
						From:        from,
						To:          to,
						Amount:      big.NewInt(amount),
						TxHash:      "0x01",
						BlockNumber: uint64(i / 3),
						LogIndex:    uint(i % 3),
					}); err != nil {
						return false
					}
				}
				return true
			}
			if !run(0) {
				return false
			}

			before := store.token(tokenT)
			balances := make(map[string]string, len(store.balances))
			for id, b := range store.balances {
				balances[id] = b.Amount.String()
			}
			commits := store.commits

			if len(ops) > 0 && !run(replayFrom%len(ops)) {
				return false
			}

			after := store.token(tokenT)
			if store.commits != commits || after.TotalSupply.Cmp(before.TotalSupply) != 0 ||
				after.MintCount != before.MintCount || after.BurnCount != before.BurnCount ||
				after.TransferCount != before.TransferCount ||
				after.CurrentHolderCount != before.CurrentHolderCount {
				return false
			}
			for id, b := range store.balances {
				if balances[id] != b.Amount.String() {
					return false
				}
			}
			return len(balances) == len(store.balances)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.IntRange(0, 1000),
	))

	properties.Property("zero-amount movements change nothing", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			store := newMemStore()
			store.register(models.NewToken(tokenT))
			proc, err := NewTransferProcessor(&ProcessorConfig{Store: store, Reader: newFakeReader(), Logger: logging.NewNop()})
			if err != nil {
				return false
			}
			res, err := proc.Process(context.Background(), &Transfer{
				Token:  tokenT,
				From:   pbtAccounts[fromIdx],
				To:     pbtAccounts[toIdx],
				Amount: new(big.Int),
			})
			return err == nil && res.Outcome == OutcomeIgnored &&
				store.commits == 0 && len(store.transfers) == 0
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, 3),
	))

	properties.Property("decrease never goes below zero", prop.ForAll(
		func(cur, delta int64) bool {
			out := decreaseAmount(big.NewInt(cur), big.NewInt(delta))
			if delta >= cur {
				return out.Sign() == 0
			}
			return out.Cmp(big.NewInt(cur-delta)) == 0
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
