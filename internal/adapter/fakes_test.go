package adapter

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// fakeEthClient serves logs, headers and transactions from memory
type fakeEthClient struct {
	mu sync.Mutex

	head      uint64
	logs      []ethtypes.Log
	txs       map[common.Hash]*ethtypes.Transaction
	filterErr error
	calls     map[string]int
	closed    bool

	callResult []byte
	callErr    error
}

func newFakeEthClient() *fakeEthClient {
	return &fakeEthClient{
		txs:   make(map[common.Hash]*ethtypes.Transaction),
		calls: make(map[string]int),
	}
}

func (f *fakeEthClient) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeEthClient) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.count("BlockNumber")
	if f.filterErr != nil {
		return 0, f.filterErr
	}
	return f.head, nil
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.count("FilterLogs")
	if f.filterErr != nil {
		return nil, f.filterErr
	}

	addresses := make(map[common.Address]bool)
	for _, a := range q.Addresses {
		addresses[a] = true
	}
	topics := make(map[common.Hash]bool)
	if len(q.Topics) > 0 {
		for _, t := range q.Topics[0] {
			topics[t] = true
		}
	}

	var out []ethtypes.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(addresses) > 0 && !addresses[lg.Address] {
			continue
		}
		if len(topics) > 0 && (len(lg.Topics) == 0 || !topics[lg.Topics[0]]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	f.count("HeaderByNumber")
	return &ethtypes.Header{Number: number, Time: 1_700_000_000 + number.Uint64()}, nil
}

func (f *fakeEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	f.count("TransactionByHash")
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, errors.New("not found")
	}
	return tx, false, nil
}

func (f *fakeEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.count("CallContract")
	return f.callResult, f.callErr
}

func (f *fakeEthClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func txWithNonce(nonce uint64) *ethtypes.Transaction {
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(1), Gas: 21000})
}

func addressTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func transferLog(token, from, to string, value int64, block uint64, txIndex, logIndex uint, txHash common.Hash) ethtypes.Log {
	return ethtypes.Log{
		Address:     common.HexToAddress(token),
		Topics:      []common.Hash{TopicTransfer, addressTopic(from), addressTopic(to)},
		Data:        common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
		BlockNumber: block,
		TxHash:      txHash,
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}
