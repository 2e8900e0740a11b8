package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

const (
	tokenT = "0x00000000000000000000000000000000000000aa"
	alice  = "0x000000000000000000000000000000000000a11c"
	bob    = "0x0000000000000000000000000000000000000b0b"
	carol  = "0x00000000000000000000000000000000000ca201"
)

type harness struct {
	store  *memStore
	reader *fakeReader
	proc   *TransferProcessor
	logIdx uint
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	token := models.NewToken(tokenT)
	token.Name = "Test"
	token.Symbol = "TST"
	token.Decimals = 18
	token.MetadataResolved = true
	store.register(token)

	reader := newFakeReader()
	proc, err := NewTransferProcessor(&ProcessorConfig{
		Store:  store,
		Reader: reader,
		Logger: logging.NewWithZap(zaptest.NewLogger(t)),
	})
	require.NoError(t, err)
	return &harness{store: store, reader: reader, proc: proc}
}

func (h *harness) process(t *testing.T, from, to string, amount int64) *Result {
	t.Helper()
	h.logIdx++
	res, err := h.proc.Process(context.Background(), &Transfer{
		Token:       tokenT,
		From:        from,
		To:          to,
		Amount:      big.NewInt(amount),
		TxHash:      "0xfeed",
		LogIndex:    h.logIdx,
		Nonce:       7,
		BlockNumber: 100 + uint64(h.logIdx),
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)
	return res
}

func assertInt(t *testing.T, want int64, got *big.Int, msg string) {
	t.Helper()
	assert.Equal(t, 0, big.NewInt(want).Cmp(got), "%s: want %d, got %s", msg, want, got)
}

func TestProcess_MintThenTransfer(t *testing.T) {
	h := newHarness(t)

	// chain reports the post-mint supply, so the mint has not been counted yet
	h.reader.supplyIs(100)
	res := h.process(t, types.SentinelAddress, alice, 100)
	assert.Equal(t, KindMint, res.Kind)
	assert.Equal(t, OutcomeMinted, res.Outcome)

	tok := h.store.token(tokenT)
	assertInt(t, 100, tok.TotalSupply, "totalSupply")
	assertInt(t, 100, tok.TotalMinted, "totalMinted")
	assert.Equal(t, int64(1), tok.MintCount)
	assertInt(t, 100, h.store.balanceOf(alice, tokenT), "alice")
	assert.Empty(t, h.store.transferIDs())
	assert.Equal(t, int64(0), tok.CurrentHolderCount)
	assert.Equal(t, int64(0), tok.CumulativeHolderCount)

	res = h.process(t, alice, bob, 100)
	assert.Equal(t, OutcomeTransferred, res.Outcome)
	require.NotNil(t, res.HolderDelta)
	assert.Equal(t, HolderDelta{FromGoesToZero: 1, IsNewHolder: 1}, *res.HolderDelta)

	tok = h.store.token(tokenT)
	assertInt(t, 0, h.store.balanceOf(alice, tokenT), "alice")
	assertInt(t, 100, h.store.balanceOf(bob, tokenT), "bob")
	assert.Equal(t, int64(0), tok.CurrentHolderCount)
	assert.Equal(t, int64(1), tok.CumulativeHolderCount)
	assert.Equal(t, int64(1), tok.TransferCount)
	assert.Equal(t, []string{models.TransferEventID(tokenT, "0xfeed", 2)}, h.store.transferIDs())

	ev := h.store.transfers[models.TransferEventID(tokenT, "0xfeed", 2)]
	assert.Equal(t, alice, ev.From)
	assert.Equal(t, bob, ev.To)
	assert.Equal(t, uint64(7), ev.Nonce)
	assert.Equal(t, uint64(102), ev.BlockNumber)

	bal := h.store.balances[models.BalanceID(bob, tokenT)]
	assert.Equal(t, uint64(102), bal.BlockNumber)
}

func TestProcess_DuplicateBurnDropped(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyIs(100)
	h.process(t, types.SentinelAddress, alice, 100)

	h.reader.supplyIs(50)
	res := h.process(t, alice, types.SentinelAddress, 50)
	assert.Equal(t, OutcomeBurned, res.Outcome)

	// second emission of the same burn: chain supply already equals local supply
	commits := h.store.commits
	res = h.process(t, alice, types.SentinelAddress, 50)
	assert.Equal(t, KindBurn, res.Kind)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, commits, h.store.commits)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(1), tok.BurnCount)
	assertInt(t, 50, tok.TotalSupply, "totalSupply")
	assertInt(t, 50, tok.TotalBurned, "totalBurned")
	assertInt(t, 50, h.store.balanceOf(alice, tokenT), "alice")
}

func TestProcess_DuplicateMintDropped(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyIs(100)
	h.process(t, types.SentinelAddress, alice, 100)

	res := h.process(t, types.SentinelAddress, alice, 100)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(1), tok.MintCount)
	assertInt(t, 100, h.store.balanceOf(alice, tokenT), "alice")
}

func TestProcess_SupplyUnavailableAlwaysApplies(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()

	h.process(t, types.SentinelAddress, alice, 10)
	res := h.process(t, types.SentinelAddress, alice, 10)
	assert.Equal(t, OutcomeMinted, res.Outcome)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(2), tok.MintCount)
	assertInt(t, 20, tok.TotalSupply, "totalSupply")
	assertInt(t, 20, h.store.balanceOf(alice, tokenT), "alice")
}

func TestProcess_BothSentinelIsBurn(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()

	res := h.process(t, types.SentinelAddress, types.SentinelAddress, 5)
	assert.Equal(t, KindBurn, res.Kind)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(1), tok.BurnCount)
	assert.Equal(t, int64(0), tok.MintCount)
	assertInt(t, 0, h.store.balanceOf(types.SentinelAddress, tokenT), "sentinel")
}

func TestProcess_ZeroAmountIgnored(t *testing.T) {
	h := newHarness(t)

	res := h.process(t, alice, bob, 0)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, 0, h.store.commits)
	assert.Empty(t, h.store.transferIDs())
	assert.Empty(t, h.store.accounts)
	assert.Equal(t, int64(0), h.store.token(tokenT).TransferCount)
}

func TestProcess_UnknownTokenDropped(t *testing.T) {
	h := newHarness(t)

	res, err := h.proc.Process(context.Background(), &Transfer{
		Token:  "0x00000000000000000000000000000000000000ff",
		From:   alice,
		To:     bob,
		Amount: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownToken, res.Outcome)
	assert.Equal(t, 0, h.store.commits)
}

func TestProcess_OverdraftClampsToZero(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 10)

	h.process(t, alice, bob, 25)

	assertInt(t, 0, h.store.balanceOf(alice, tokenT), "alice")
	assertInt(t, 25, h.store.balanceOf(bob, tokenT), "bob")
}

func TestProcess_BurnOverdraftClampsBalanceNotSupply(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 10)

	h.process(t, alice, types.SentinelAddress, 30)

	assertInt(t, 0, h.store.balanceOf(alice, tokenT), "alice")
	assertInt(t, -20, h.store.token(tokenT).TotalSupply, "totalSupply")
}

// The destination check compares the pre-transfer balance with one rather
// than zero. An existing account holding exactly one unit counts as a new
// holder; an existing account holding zero does not.
func TestHolderCounter_DestinationComparedWithOne(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 100)
	h.process(t, types.SentinelAddress, bob, 1)

	res := h.process(t, alice, bob, 10)
	assert.Equal(t, HolderDelta{DestWasEmpty: 1}, *res.HolderDelta)
	assert.Equal(t, int64(1), h.store.token(tokenT).CurrentHolderCount)

	// carol becomes an existing account with a zero balance
	h.process(t, alice, carol, 5)
	h.process(t, carol, alice, 5)
	before := h.store.token(tokenT).CurrentHolderCount

	res = h.process(t, alice, carol, 5)
	assert.Equal(t, int64(0), res.HolderDelta.DestWasEmpty)
	assert.Equal(t, int64(0), res.HolderDelta.IsNewHolder)
	assert.Equal(t, before, h.store.token(tokenT).CurrentHolderCount)
}

func TestHolderCounter_MintBypassesCounts(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()

	h.process(t, types.SentinelAddress, alice, 100)
	h.process(t, types.SentinelAddress, bob, 100)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(0), tok.CurrentHolderCount)
	assert.Equal(t, int64(0), tok.CumulativeHolderCount)
}

func TestHolderCounter_CurrentNeverNegative(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()

	// alice was minted to, so she never entered the count
	h.process(t, types.SentinelAddress, alice, 10)
	h.process(t, alice, bob, 10)
	h.process(t, bob, alice, 10)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(0), tok.CurrentHolderCount)
	assert.Equal(t, int64(1), tok.CumulativeHolderCount)
}

func TestProcess_SelfTransfer(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 40)

	res := h.process(t, alice, alice, 40)
	assert.Equal(t, OutcomeTransferred, res.Outcome)
	assertInt(t, 40, h.store.balanceOf(alice, tokenT), "alice")
	assert.Equal(t, int64(1), h.store.token(tokenT).TransferCount)
}

func TestProcess_RedeliveryKeepsOneTransferRow(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 40)

	tr := &Transfer{
		Token:       tokenT,
		From:        alice,
		To:          bob,
		Amount:      big.NewInt(1),
		TxHash:      "0xabc",
		LogIndex:    3,
		BlockNumber: 200,
	}
	_, err := h.proc.Process(context.Background(), tr)
	require.NoError(t, err)
	commits := h.store.commits
	res, err := h.proc.Process(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, res.Outcome)
	assert.Equal(t, commits, h.store.commits)

	tok := h.store.token(tokenT)
	assert.Equal(t, int64(1), tok.TransferCount)
	assert.Equal(t, int64(1), tok.CumulativeHolderCount)
	assertInt(t, 39, h.store.balanceOf(alice, tokenT), "alice")
	assertInt(t, 1, h.store.balanceOf(bob, tokenT), "bob")

	count := 0
	for _, id := range h.store.transferIDs() {
		if id == models.TransferEventID(tokenT, "0xabc", 3) {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, h.store.transferIDs(), 1)
}

func TestProcess_StoreFailureLeavesNoPartialState(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()
	h.process(t, types.SentinelAddress, alice, 40)
	before := h.store.token(tokenT).Clone()

	h.store.failSaveBalance = true
	_, err := h.proc.Process(context.Background(), &Transfer{
		Token:       tokenT,
		From:        alice,
		To:          bob,
		Amount:      big.NewInt(10),
		TxHash:      "0xdead",
		LogIndex:    1,
		BlockNumber: 300,
	})
	require.Error(t, err)

	after := h.store.token(tokenT)
	assert.Equal(t, before.TransferCount, after.TransferCount)
	assert.Equal(t, before.CumulativeHolderCount, after.CumulativeHolderCount)
	assertInt(t, 40, h.store.balanceOf(alice, tokenT), "alice")
	assert.Empty(t, h.store.transferIDs())
	assert.NotContains(t, h.store.accounts, bob)
	assert.Equal(t, before.LastApplied, after.LastApplied)
}

func TestProcess_LazyMetadataResolution(t *testing.T) {
	h := newHarness(t)
	seeded := "0x00000000000000000000000000000000000000bb"
	h.store.register(models.NewToken(seeded))
	h.reader.names[seeded] = "Seeded"
	h.reader.symbols[seeded] = "SEED"
	h.reader.supplyUnavailable()

	mint := func(logIndex uint) {
		_, err := h.proc.Process(context.Background(), &Transfer{
			Token:    seeded,
			From:     types.SentinelAddress,
			To:       alice,
			Amount:   big.NewInt(3),
			TxHash:   "0x01",
			LogIndex: logIndex,
		})
		require.NoError(t, err)
	}

	mint(1)
	tok := h.store.token(seeded)
	assert.Equal(t, "Seeded", tok.Name)
	assert.Equal(t, "SEED", tok.Symbol)
	assert.Equal(t, types.DefaultDecimals, tok.Decimals)
	assert.True(t, tok.MetadataResolved)
	assertInt(t, 3, tok.TotalSupply, "totalSupply")

	mint(2)
	assert.Equal(t, 1, h.reader.metadataCalls)
	assertInt(t, 6, h.store.token(seeded).TotalSupply, "totalSupply")
}

func TestProcess_UnresolvableNameResolvesOnce(t *testing.T) {
	h := newHarness(t)
	anon := "0x00000000000000000000000000000000000000cc"
	h.store.register(models.NewToken(anon))
	h.reader.supplyUnavailable()

	for i := uint(1); i <= 2; i++ {
		_, err := h.proc.Process(context.Background(), &Transfer{
			Token:    anon,
			From:     types.SentinelAddress,
			To:       alice,
			Amount:   big.NewInt(1),
			LogIndex: i,
		})
		require.NoError(t, err)
	}

	tok := h.store.token(anon)
	assert.Equal(t, "", tok.Name)
	assert.Equal(t, 1, h.reader.metadataCalls)
	assertInt(t, 2, tok.TotalSupply, "totalSupply")
}

func TestNewTransferProcessor_Validation(t *testing.T) {
	_, err := NewTransferProcessor(nil)
	assert.Error(t, err)

	_, err = NewTransferProcessor(&ProcessorConfig{Store: newMemStore()})
	assert.Error(t, err)
}

func TestProcess_ReplayedRangeChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.reader.supplyUnavailable()

	batch := []*Transfer{
		{Token: tokenT, From: types.SentinelAddress, To: alice, Amount: big.NewInt(100), TxHash: "0x01", BlockNumber: 10, LogIndex: 0},
		{Token: tokenT, From: alice, To: bob, Amount: big.NewInt(10), TxHash: "0x02", BlockNumber: 10, LogIndex: 4},
		{Token: tokenT, From: bob, To: types.SentinelAddress, Amount: big.NewInt(3), TxHash: "0x03", BlockNumber: 11, LogIndex: 0},
	}
	for _, tr := range batch {
		_, err := h.proc.Process(context.Background(), tr)
		require.NoError(t, err)
	}
	want := h.store.token(tokenT).Clone()
	assert.Equal(t, &models.Cursor{BlockNumber: 11, LogIndex: 0}, want.LastApplied)

	for _, tr := range batch {
		res, err := h.proc.Process(context.Background(), tr)
		require.NoError(t, err)
		assert.Equal(t, OutcomeReplayed, res.Outcome)
	}

	got := h.store.token(tokenT)
	assert.Equal(t, want, got)
	assertInt(t, 97, got.TotalSupply, "totalSupply")
	assertInt(t, 90, h.store.balanceOf(alice, tokenT), "alice")
	assertInt(t, 7, h.store.balanceOf(bob, tokenT), "bob")

	// the next unseen log still applies
	res, err := h.proc.Process(context.Background(), &Transfer{
		Token: tokenT, From: alice, To: bob, Amount: big.NewInt(1), TxHash: "0x04", BlockNumber: 11, LogIndex: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransferred, res.Outcome)
	assert.Equal(t, int64(2), h.store.token(tokenT).TransferCount)
}

func TestCursor_After(t *testing.T) {
	base := models.Cursor{BlockNumber: 10, LogIndex: 3}
	assert.True(t, models.Cursor{BlockNumber: 10, LogIndex: 4}.After(base))
	assert.True(t, models.Cursor{BlockNumber: 11, LogIndex: 0}.After(base))
	assert.False(t, base.After(base))
	assert.False(t, models.Cursor{BlockNumber: 9, LogIndex: 9}.After(base))
}
