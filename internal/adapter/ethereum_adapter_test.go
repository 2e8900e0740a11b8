package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/types"
)

func newTestAdapter(t *testing.T, clients map[string]*fakeEthClient, secondary string) *EthereumAdapter {
	t.Helper()

	provider, err := NewRPCProvider("primary", secondary)
	require.NoError(t, err)

	a, err := NewEthereumAdapter(context.Background(), &EthereumAdapterConfig{
		ChainID:          types.ChainEthereum,
		Provider:         provider,
		FactoryAddress:   factoryAddr,
		LaunchpadAddress: launchpadAddr,
		FetchConcurrency: 2,
		Logger:           logging.NewNop(),
		Dial: func(ctx context.Context, url string) (EthClient, error) {
			c, ok := clients[url]
			if !ok {
				return nil, errors.New("unknown endpoint")
			}
			return c, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestEthereumAdapter_FetchEvents(t *testing.T) {
	client := newFakeEthClient()
	otherToken := "0x00000000000000000000000000000000000000bb"
	created := "0x00000000000000000000000000000000000000cc"

	createdData, err := factoryABI.Events["CreatedMemeToken"].Inputs.NonIndexed().Pack("New", "NEW")
	require.NoError(t, err)

	txA := txWithNonce(5)
	txB := txWithNonce(9)
	client.txs[txA.Hash()] = txA
	client.txs[txB.Hash()] = txB

	client.logs = []ethtypes.Log{
		// later block first to check ordering
		transferLog(tokenAddr, alice, bob, 3, 12, 0, 0, txB.Hash()),
		transferLog(tokenAddr, types.SentinelAddress, alice, 10, 11, 2, 4, txA.Hash()),
		// untracked token
		transferLog(otherToken, alice, bob, 1, 11, 0, 0, txA.Hash()),
		// token created in range, transfer in the same range is included
		transferLog(created, types.SentinelAddress, bob, 7, 12, 1, 2, txB.Hash()),
		{
			Address:     common.HexToAddress(factoryAddr),
			Topics:      []common.Hash{TopicCreatedMemeToken, addressTopic(created)},
			Data:        createdData,
			BlockNumber: 11,
			TxIndex:     3,
			Index:       9,
			TxHash:      common.HexToHash("0x0c"),
		},
	}
	nft := transferLog(tokenAddr, alice, bob, 0, 11, 0, 1, txA.Hash())
	nft.Topics = append(nft.Topics, common.BigToHash(big.NewInt(1)))
	client.logs = append(client.logs, nft)

	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": client}, "")

	events, err := a.FetchEvents(context.Background(), 10, 12, []string{tokenAddr})
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, types.EventTransfer, events[0].Kind)
	assert.Equal(t, uint64(11), events[0].BlockNumber)
	assert.Equal(t, uint64(5), events[0].Nonce)
	assert.Equal(t, int64(1_700_000_011), events[0].Timestamp)

	assert.Equal(t, types.EventTokenCreated, events[1].Kind)
	assert.Equal(t, int64(1_700_000_011), events[1].Timestamp)

	assert.Equal(t, tokenAddr, events[2].Address)
	assert.Equal(t, uint64(9), events[2].Nonce)
	assert.Equal(t, created, events[3].Address)
	assert.Equal(t, int64(7), events[3].Transfer.Value.Int64())

	// each block header and transaction fetched once
	assert.Equal(t, 2, client.callCount("HeaderByNumber"))
	assert.Equal(t, 2, client.callCount("TransactionByHash"))
}

func TestEthereumAdapter_FetchEventsInvalidRange(t *testing.T) {
	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": newFakeEthClient()}, "")

	_, err := a.FetchEvents(context.Background(), 5, 4, nil)
	assert.ErrorIs(t, err, ErrInvalidBlockRange)
}

func TestEthereumAdapter_FailsOverOnRateLimit(t *testing.T) {
	primary := newFakeEthClient()
	primary.filterErr = errors.New("429 Too Many Requests")
	secondary := newFakeEthClient()
	secondary.head = 77

	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": primary, "secondary": secondary}, "secondary")

	head, err := a.GetCurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), head)

	url, err := a.provider.GetCurrentURL()
	require.NoError(t, err)
	assert.Equal(t, "secondary", url)
	assert.Equal(t, 1, a.ProviderHealth().Failovers)

	// calls started before the switch may still hold the old client
	assert.False(t, primary.closed)
	a.Close()
	assert.True(t, primary.closed)
	assert.True(t, secondary.closed)
}

func TestEthereumAdapter_FailsOverWhenEndpointTurnsUnhealthy(t *testing.T) {
	primary := newFakeEthClient()
	primary.filterErr = errors.New("invalid params")
	secondary := newFakeEthClient()
	secondary.head = 90

	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": primary, "secondary": secondary}, "secondary")

	for i := 0; i < 4; i++ {
		_, err := a.GetCurrentBlock(context.Background())
		require.Error(t, err)
	}
	assert.Zero(t, secondary.callCount("BlockNumber"))

	head, err := a.GetCurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(90), head)
	assert.Equal(t, "secondary", a.ProviderHealth().Endpoint)
	assert.True(t, a.ProviderHealth().Healthy)
}

func TestEthereumAdapter_DeadlineIsProviderTimeout(t *testing.T) {
	primary := newFakeEthClient()
	primary.filterErr = context.DeadlineExceeded

	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": primary}, "")

	_, err := a.GetCurrentBlock(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	catErr := apperrors.Categorize(err)
	assert.Equal(t, "PROVIDER_TIMEOUT", catErr.Code)
	assert.Equal(t, apperrors.CategoryProvider, catErr.Category)
	assert.True(t, apperrors.IsRetryable(err))

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Contains(t, adapterErr.Details, "failover")
}

func TestEthereumAdapter_NoFailoverOnOtherErrors(t *testing.T) {
	primary := newFakeEthClient()
	primary.filterErr = errors.New("invalid params")

	a := newTestAdapter(t, map[string]*fakeEthClient{"primary": primary, "secondary": newFakeEthClient()}, "secondary")

	_, err := a.GetCurrentBlock(context.Background())
	require.Error(t, err)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "GetCurrentBlock", adapterErr.Op)
	assert.False(t, primary.closed)
}

func TestShouldFailover(t *testing.T) {
	assert.True(t, shouldFailover(errors.New("rate limit exceeded")))
	assert.True(t, shouldFailover(errors.New("dial tcp: connection refused")))
	assert.True(t, shouldFailover(context.DeadlineExceeded))
	assert.False(t, shouldFailover(errors.New("execution reverted")))
	assert.False(t, shouldFailover(nil))
}
