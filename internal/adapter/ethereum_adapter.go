package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/types"
)

// maxAddressesPerQuery bounds the address filter of one eth_getLogs call
const maxAddressesPerQuery = 500

// EthClient is the subset of ethclient.Client the adapter uses
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Dialer connects to an RPC endpoint
type Dialer func(ctx context.Context, url string) (EthClient, error)

func dialEthClient(ctx context.Context, url string) (EthClient, error) {
	return ethclient.DialContext(ctx, url)
}

// EthereumAdapterConfig configures an EthereumAdapter
type EthereumAdapterConfig struct {
	// ChainID is the chain identifier. Required.
	ChainID types.ChainID

	// Provider selects the RPC endpoint. Required.
	Provider DataProvider

	// Dial connects to an endpoint. Defaults to ethclient.DialContext.
	Dial Dialer

	// FactoryAddress and LaunchpadAddress are optional; when empty their events are not fetched
	FactoryAddress   string
	LaunchpadAddress string

	// RateLimit is the request budget per second against the RPC endpoint, 0 disables pacing
	RateLimit float64

	// FetchConcurrency is the number of workers fetching headers and transactions
	FetchConcurrency int

	Logger *logging.Logger
}

// EthereumAdapter implements EventSource for EVM chains
type EthereumAdapter struct {
	chainID  types.ChainID
	provider DataProvider
	dial     Dialer

	mu     sync.RWMutex
	client EthClient
	// retired clients were replaced by failover. In-flight calls may still
	// hold them, so they are closed with the adapter.
	retired []EthClient

	limiter   *rate.Limiter
	pool      pond.Pool
	factory   *common.Address
	launchpad *common.Address
	logger    *logging.Logger
}

// NewEthereumAdapter dials the provider's primary endpoint
func NewEthereumAdapter(ctx context.Context, cfg *EthereumAdapterConfig) (*EthereumAdapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	dial := cfg.Dial
	if dial == nil {
		dial = dialEthClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	rpcURL, err := cfg.Provider.GetPrimaryURL()
	if err != nil {
		return nil, fmt.Errorf("failed to get primary RPC URL: %w", err)
	}
	client, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, NewAdapterError(cfg.ChainID, "NewEthereumAdapter", err, nil)
	}

	concurrency := cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	a := &EthereumAdapter{
		chainID:  cfg.ChainID,
		provider: cfg.Provider,
		dial:     dial,
		client:   client,
		pool:     pond.NewPool(concurrency),
		logger:   logger.WithField("chain", string(cfg.ChainID)),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.FactoryAddress != "" {
		addr := common.HexToAddress(cfg.FactoryAddress)
		a.factory = &addr
	}
	if cfg.LaunchpadAddress != "" {
		addr := common.HexToAddress(cfg.LaunchpadAddress)
		a.launchpad = &addr
	}
	return a, nil
}

// GetCurrentBlock returns the current block number for the chain
func (a *EthereumAdapter) GetCurrentBlock(ctx context.Context) (uint64, error) {
	return withClient(ctx, a, "GetCurrentBlock", func(c EthClient) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

// CallContract executes an eth_call. It satisfies ethereum.ContractCaller.
func (a *EthereumAdapter) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withClient(ctx, a, "CallContract", func(c EthClient) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

// FetchEvents returns the decoded factory, launchpad and Transfer events of [from, to]
func (a *EthereumAdapter) FetchEvents(ctx context.Context, from, to uint64, tokens []string) ([]*types.ChainEvent, error) {
	if from > to {
		return nil, NewAdapterError(a.chainID, "FetchEvents", ErrInvalidBlockRange, map[string]interface{}{
			"from": from,
			"to":   to,
		})
	}

	events, err := a.fetchContractEvents(ctx, from, to)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tracked[types.NormalizeAddress(t)] = struct{}{}
	}
	for _, ev := range events {
		if ev.Kind == types.EventTokenCreated {
			tracked[ev.TokenCreated.TokenAddress] = struct{}{}
		}
	}

	transfers, err := a.fetchTransferEvents(ctx, from, to, tracked)
	if err != nil {
		return nil, err
	}
	events = append(events, transfers...)

	if err := a.enrich(ctx, events); err != nil {
		return nil, err
	}

	types.SortChainEvents(events)

	a.logger.WithFields(map[string]interface{}{
		"from":      from,
		"to":        to,
		"events":    len(events),
		"transfers": len(transfers),
		"tokens":    len(tracked),
	}).Debug("Fetched block range")

	return events, nil
}

func (a *EthereumAdapter) fetchContractEvents(ctx context.Context, from, to uint64) ([]*types.ChainEvent, error) {
	var addresses []common.Address
	var topics []common.Hash
	if a.factory != nil {
		addresses = append(addresses, *a.factory)
		topics = append(topics, factoryTopics()...)
	}
	if a.launchpad != nil {
		addresses = append(addresses, *a.launchpad)
		topics = append(topics, launchpadTopics()...)
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	logs, err := a.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return nil, err
	}
	return a.decodeLogs(logs), nil
}

func (a *EthereumAdapter) fetchTransferEvents(ctx context.Context, from, to uint64, tracked map[string]struct{}) ([]*types.ChainEvent, error) {
	if len(tracked) == 0 {
		return nil, nil
	}

	addresses := make([]common.Address, 0, len(tracked))
	for t := range tracked {
		addresses = append(addresses, common.HexToAddress(t))
	}
	sort.Slice(addresses, func(i, j int) bool {
		return strings.Compare(addresses[i].Hex(), addresses[j].Hex()) < 0
	})

	var events []*types.ChainEvent
	for start := 0; start < len(addresses); start += maxAddressesPerQuery {
		end := min(start+maxAddressesPerQuery, len(addresses))
		logs, err := a.filterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: addresses[start:end],
			Topics:    [][]common.Hash{{TopicTransfer}},
		})
		if err != nil {
			return nil, err
		}
		events = append(events, a.decodeLogs(logs)...)
	}
	return events, nil
}

func (a *EthereumAdapter) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return withClient(ctx, a, "FilterLogs", func(c EthClient) ([]ethtypes.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (a *EthereumAdapter) decodeLogs(logs []ethtypes.Log) []*types.ChainEvent {
	events := make([]*types.ChainEvent, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		ev, err := DecodeLog(&logs[i])
		if err != nil {
			topic := "empty"
			if len(logs[i].Topics) > 0 {
				topic = logs[i].Topics[0].Hex()
			}
			a.logger.WithError(apperrors.NewDecodeError(topic, logs[i].TxHash.Hex(), err)).WithFields(map[string]interface{}{
				"txHash":   logs[i].TxHash.Hex(),
				"logIndex": logs[i].Index,
				"address":  logs[i].Address.Hex(),
			}).Debug("Skipping undecodable log")
			continue
		}
		events = append(events, ev)
	}
	return events
}

// enrich fills block timestamps for every event and transaction nonces for
// transfers, fetching each distinct block and transaction once.
func (a *EthereumAdapter) enrich(ctx context.Context, events []*types.ChainEvent) error {
	if len(events) == 0 {
		return nil
	}

	blocks := make(map[uint64]struct{})
	txs := make(map[string]struct{})
	for _, ev := range events {
		blocks[ev.BlockNumber] = struct{}{}
		if ev.Kind == types.EventTransfer {
			txs[ev.TxHash] = struct{}{}
		}
	}

	timestamps := xsync.NewMap[uint64, int64]()
	nonces := xsync.NewMap[string, uint64]()

	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for block := range blocks {
		group.SubmitErr(func() error {
			header, err := withClient(groupCtx, a, "HeaderByNumber", func(c EthClient) (*ethtypes.Header, error) {
				return c.HeaderByNumber(groupCtx, new(big.Int).SetUint64(block))
			})
			if err != nil {
				return err
			}
			timestamps.Store(block, int64(header.Time)) // #nosec G115 - block timestamps fit in int64
			return nil
		})
	}
	for hash := range txs {
		group.SubmitErr(func() error {
			tx, err := withClient(groupCtx, a, "TransactionByHash", func(c EthClient) (*ethtypes.Transaction, error) {
				tx, _, err := c.TransactionByHash(groupCtx, common.HexToHash(hash))
				return tx, err
			})
			if err != nil {
				return err
			}
			nonces.Store(hash, tx.Nonce())
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if errors.Is(err, pond.ErrGroupStopped) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to enrich events: %w", err)
	}

	for _, ev := range events {
		ev.Timestamp, _ = timestamps.Load(ev.BlockNumber)
		if ev.Kind == types.EventTransfer {
			ev.Nonce, _ = nonces.Load(ev.TxHash)
		}
	}
	return nil
}

// ProviderHealth reports the active RPC endpoint's health record
func (a *EthereumAdapter) ProviderHealth() ProviderHealth {
	return a.provider.Health()
}

// Close stops the worker pool and closes every RPC connection it opened
func (a *EthereumAdapter) Close() {
	a.pool.StopAndWait()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.retired {
		c.Close()
	}
	a.retired = nil
	if a.client != nil {
		a.client.Close()
	}
}

func (a *EthereumAdapter) currentClient() EthClient {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

func (a *EthereumAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// failover switches the provider to its other endpoint and redials
func (a *EthereumAdapter) failover(ctx context.Context, failed EthClient) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// another caller already switched
	if a.client != failed {
		return nil
	}
	if err := a.provider.Failover(); err != nil {
		return err
	}
	rpcURL, err := a.provider.GetCurrentURL()
	if err != nil {
		return err
	}
	client, err := a.dial(ctx, rpcURL)
	if err != nil {
		return err
	}
	a.retired = append(a.retired, a.client)
	a.client = client

	health := a.provider.Health()
	a.logger.WithFields(map[string]interface{}{
		"endpoint":  health.Endpoint,
		"failovers": health.Failovers,
	}).Warn("Switched RPC endpoint after provider error")
	return nil
}

// withClient runs fn against the current client, paced by the limiter. An
// error that warrants failover, or one that leaves the endpoint unhealthy,
// switches endpoints and retries once.
func withClient[T any](ctx context.Context, a *EthereumAdapter, op string, fn func(EthClient) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := a.wait(ctx); err != nil {
			return zero, err
		}

		client := a.currentClient()
		start := time.Now()
		v, err := fn(client)
		if err == nil {
			a.provider.RecordSuccess(time.Since(start))
			return v, nil
		}
		a.provider.RecordFailure(err)

		if attempt > 0 || ctx.Err() != nil || (!shouldFailover(err) && a.provider.IsHealthy()) {
			return zero, a.callError(op, err, nil)
		}
		if ferr := a.failover(ctx, client); ferr != nil {
			return zero, a.callError(op, err, map[string]interface{}{
				"failover": ferr.Error(),
			})
		}
	}
}

// callError wraps a failed RPC call. Deadlines become provider timeouts so
// callers can tell them from rejected requests.
func (a *EthereumAdapter) callError(op string, err error, details map[string]interface{}) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.NewProviderTimeoutError(string(a.chainID), err)
	}
	return NewAdapterError(a.chainID, op, err, details)
}

// shouldFailover determines if an error warrants failing over to another provider
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}
