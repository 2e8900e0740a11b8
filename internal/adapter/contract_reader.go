package adapter

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/token-ledger/internal/circuitbreaker"
	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

const ethCallBreaker = "eth_call"

// errEmptyResult is returned for calls against addresses without code
var errEmptyResult = errors.New("empty call result")

// viewCaller performs read-only contract calls under a timeout and a circuit
// breaker. Reverts do not count against the breaker.
type viewCaller struct {
	caller   ethereum.ContractCaller
	breakers *circuitbreaker.Manager
	timeout  time.Duration
	logger   *logging.Logger
}

func newViewCaller(caller ethereum.ContractCaller, breakers *circuitbreaker.Manager, timeout time.Duration, logger *logging.Logger) viewCaller {
	if breakers == nil {
		breakers = circuitbreaker.NewManager(nil)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return viewCaller{caller: caller, breakers: breakers, timeout: timeout, logger: logger}
}

func (v viewCaller) call(ctx context.Context, contractABI abi.ABI, contract, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(contract)

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var out []byte
	var reverted error
	err = v.breakers.Get(ethCallBreaker).Execute(ctx, func() error {
		res, err := v.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: input}, block)
		if err != nil && isRevert(err) {
			reverted = err
			return nil
		}
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	if reverted != nil {
		return nil, reverted
	}
	if len(out) == 0 {
		return nil, errEmptyResult
	}
	return contractABI.Unpack(method, out)
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// lookup converts a call result into a Lookup, logging the failure
func lookup[T any](v viewCaller, contract, method string, values []interface{}, err error) ledger.Lookup[T] {
	if err == nil && len(values) > 0 {
		if value, ok := values[0].(T); ok {
			return ledger.Found(value)
		}
		err = errors.New("unexpected return type")
	}
	v.logger.WithError(apperrors.NewContractCallError(contract, method, err)).Debug("Contract read unavailable")
	return ledger.Unavailable[T]()
}

// ERC20Reader reads ERC-20 state. It implements ledger.ContractReader.
type ERC20Reader struct {
	view viewCaller
}

// NewERC20Reader creates a reader. breakers may be nil.
func NewERC20Reader(caller ethereum.ContractCaller, breakers *circuitbreaker.Manager, timeout time.Duration, logger *logging.Logger) *ERC20Reader {
	return &ERC20Reader{view: newViewCaller(caller, breakers, timeout, logger)}
}

// TotalSupply reads totalSupply() as of blockNumber
func (r *ERC20Reader) TotalSupply(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*big.Int] {
	values, err := r.view.call(ctx, erc20ABI, token, "totalSupply", new(big.Int).SetUint64(blockNumber))
	return lookup[*big.Int](r.view, token, "totalSupply", values, err)
}

// Name reads name() at the latest block
func (r *ERC20Reader) Name(ctx context.Context, token string) ledger.Lookup[string] {
	values, err := r.view.call(ctx, erc20ABI, token, "name", nil)
	return lookup[string](r.view, token, "name", values, err)
}

// Symbol reads symbol() at the latest block
func (r *ERC20Reader) Symbol(ctx context.Context, token string) ledger.Lookup[string] {
	values, err := r.view.call(ctx, erc20ABI, token, "symbol", nil)
	return lookup[string](r.view, token, "symbol", values, err)
}

// Decimals reads decimals() at the latest block
func (r *ERC20Reader) Decimals(ctx context.Context, token string) ledger.Lookup[uint8] {
	values, err := r.view.call(ctx, erc20ABI, token, "decimals", nil)
	return lookup[uint8](r.view, token, "decimals", values, err)
}

// FactoryReader reads bonding-curve state from the token factory
type FactoryReader struct {
	view    viewCaller
	factory string
}

// NewFactoryReader creates a reader for the factory at address
func NewFactoryReader(caller ethereum.ContractCaller, factory string, breakers *circuitbreaker.Manager, timeout time.Duration, logger *logging.Logger) *FactoryReader {
	return &FactoryReader{view: newViewCaller(caller, breakers, timeout, logger), factory: factory}
}

// GetCurrentTokenPrice reads getCurrentTokenPrice(token) as of blockNumber
func (r *FactoryReader) GetCurrentTokenPrice(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*big.Int] {
	values, err := r.view.call(ctx, factoryABI, r.factory, "getCurrentTokenPrice", new(big.Int).SetUint64(blockNumber), common.HexToAddress(token))
	return lookup[*big.Int](r.view, r.factory, "getCurrentTokenPrice", values, err)
}

// AddressToMemeTokenMapping reads the factory's record for token as of blockNumber
func (r *FactoryReader) AddressToMemeTokenMapping(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*models.MemeTokenInfo] {
	const method = "addressToMemeTokenMapping"
	values, err := r.view.call(ctx, factoryABI, r.factory, method, new(big.Int).SetUint64(blockNumber), common.HexToAddress(token))
	if err == nil {
		var info *models.MemeTokenInfo
		if info, err = memeTokenInfo(values); err == nil {
			return ledger.Found(info)
		}
	}
	r.view.logger.WithError(apperrors.NewContractCallError(r.factory, method, err)).Debug("Contract read unavailable")
	return ledger.Unavailable[*models.MemeTokenInfo]()
}

func memeTokenInfo(values []interface{}) (*models.MemeTokenInfo, error) {
	if len(values) != 13 {
		return nil, errors.New("unexpected return shape")
	}
	var strs [4]string
	for i := range strs {
		s, ok := values[i].(string)
		if !ok {
			return nil, errors.New("unexpected return type")
		}
		strs[i] = s
	}
	creator, ok := values[4].(common.Address)
	if !ok {
		return nil, errors.New("unexpected return type")
	}
	info := &models.MemeTokenInfo{
		Description: strs[2],
		ImageURL:    strs[3],
		Creator:     types.NormalizeAddress(creator.Hex()),
	}
	for i, f := range info.Launch.Fields() {
		v, ok := values[5+i].(*big.Int)
		if !ok {
			return nil, errors.New("unexpected return type")
		}
		*f = v
	}
	return info, nil
}
