package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/token-ledger/internal/types"
)

const erc20ABIJSON = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// The advancedInfo struct of addressToMemeTokenMapping holds only uint256
// members, so it is encoded inline and is declared here as flat outputs.
const factoryABIJSON = `[
	{"type":"event","name":"CreatedMemeToken","anonymous":false,"inputs":[
		{"name":"tokenAddress","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false}]},
	{"type":"event","name":"BoughtMemeToken","anonymous":false,"inputs":[
		{"name":"memeTokenAddress","type":"address","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenQty","type":"uint256","indexed":false},
		{"name":"ethAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"SoldMemeToken","anonymous":false,"inputs":[
		{"name":"memeTokenAddress","type":"address","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenQty","type":"uint256","indexed":false},
		{"name":"ethAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"BoughtCrosschainMemeToken","anonymous":false,"inputs":[
		{"name":"memeTokenAddress","type":"address","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenQty","type":"uint256","indexed":false},
		{"name":"ethAmount","type":"uint256","indexed":false},
		{"name":"srcEid","type":"uint32","indexed":false}]},
	{"type":"event","name":"SoldCrosschainMemeToken","anonymous":false,"inputs":[
		{"name":"memeTokenAddress","type":"address","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenQty","type":"uint256","indexed":false},
		{"name":"ethAmount","type":"uint256","indexed":false},
		{"name":"srcEid","type":"uint32","indexed":false}]},
	{"type":"function","name":"getCurrentTokenPrice","stateMutability":"view",
		"inputs":[{"name":"memeTokenAddress","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"addressToMemeTokenMapping","stateMutability":"view",
		"inputs":[{"name":"","type":"address"}],
		"outputs":[
			{"name":"name","type":"string"},
			{"name":"symbol","type":"string"},
			{"name":"description","type":"string"},
			{"name":"tokenImageUrl","type":"string"},
			{"name":"creatorAddress","type":"address"},
			{"name":"k","type":"uint256"},
			{"name":"initialPrice","type":"uint256"},
			{"name":"maxSupply","type":"uint256"},
			{"name":"salesRatio","type":"uint256"},
			{"name":"reservedRatio","type":"uint256"},
			{"name":"liquidityPoolRatio","type":"uint256"},
			{"name":"launchDate","type":"uint256"},
			{"name":"maximumPerUser","type":"uint256"}]}
]`

const launchpadABIJSON = `[
	{"type":"event","name":"TokensPurchased","anonymous":false,"inputs":[
		{"name":"buyer","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"cost","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensClaimed","anonymous":false,"inputs":[
		{"name":"buyer","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"FeesWithdrawn","anonymous":false,"inputs":[
		{"name":"beneficiary","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

var (
	erc20ABI     = mustParseABI(erc20ABIJSON)
	factoryABI   = mustParseABI(factoryABIJSON)
	launchpadABI = mustParseABI(launchpadABIJSON)
)

// Event topics
var (
	TopicTransfer              = erc20ABI.Events["Transfer"].ID
	TopicCreatedMemeToken      = factoryABI.Events["CreatedMemeToken"].ID
	TopicBoughtMemeToken       = factoryABI.Events["BoughtMemeToken"].ID
	TopicSoldMemeToken         = factoryABI.Events["SoldMemeToken"].ID
	TopicBoughtCrosschainToken = factoryABI.Events["BoughtCrosschainMemeToken"].ID
	TopicSoldCrosschainToken   = factoryABI.Events["SoldCrosschainMemeToken"].ID
	TopicTokensPurchased       = launchpadABI.Events["TokensPurchased"].ID
	TopicTokensClaimed         = launchpadABI.Events["TokensClaimed"].ID
	TopicFeesWithdrawn         = launchpadABI.Events["FeesWithdrawn"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}
	return parsed
}

func factoryTopics() []common.Hash {
	return []common.Hash{
		TopicCreatedMemeToken,
		TopicBoughtMemeToken,
		TopicSoldMemeToken,
		TopicBoughtCrosschainToken,
		TopicSoldCrosschainToken,
	}
}

func launchpadTopics() []common.Hash {
	return []common.Hash{TopicTokensPurchased, TopicTokensClaimed, TopicFeesWithdrawn}
}

func topicAddress(h common.Hash) string {
	return types.NormalizeAddress(common.BytesToAddress(h.Bytes()).Hex())
}

// DecodeLog turns a raw log into a ChainEvent. Logs with an unknown topic or
// an unexpected shape return ErrUndecodableLog. Timestamp and nonce are left
// for the caller to fill.
func DecodeLog(lg *ethtypes.Log) (*types.ChainEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, ErrUndecodableLog
	}

	ev := &types.ChainEvent{
		Address:     types.NormalizeAddress(lg.Address.Hex()),
		TxHash:      lg.TxHash.Hex(),
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
		BlockNumber: lg.BlockNumber,
	}

	var err error
	switch lg.Topics[0] {
	case TopicTransfer:
		err = decodeTransfer(lg, ev)
	case TopicCreatedMemeToken:
		err = decodeTokenCreated(lg, ev)
	case TopicBoughtMemeToken:
		err = decodeTrade(lg, ev, "BoughtMemeToken", types.SideBuy)
	case TopicSoldMemeToken:
		err = decodeTrade(lg, ev, "SoldMemeToken", types.SideSell)
	case TopicBoughtCrosschainToken:
		err = decodeTrade(lg, ev, "BoughtCrosschainMemeToken", types.SideBuy)
	case TopicSoldCrosschainToken:
		err = decodeTrade(lg, ev, "SoldCrosschainMemeToken", types.SideSell)
	case TopicTokensPurchased:
		err = decodeFundraising(lg, ev, "TokensPurchased", types.EventTokensPurchased)
	case TopicTokensClaimed:
		err = decodeFundraising(lg, ev, "TokensClaimed", types.EventTokensClaimed)
	case TopicFeesWithdrawn:
		err = decodeFundraising(lg, ev, "FeesWithdrawn", types.EventFeesWithdrawn)
	default:
		return nil, ErrUndecodableLog
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ERC-721 Transfer shares the topic but indexes the token id as a fourth topic
func decodeTransfer(lg *ethtypes.Log, ev *types.ChainEvent) error {
	if len(lg.Topics) != 3 || len(lg.Data) != 32 {
		return ErrUndecodableLog
	}
	ev.Kind = types.EventTransfer
	ev.Transfer = &types.TransferPayload{
		From:  topicAddress(lg.Topics[1]),
		To:    topicAddress(lg.Topics[2]),
		Value: new(big.Int).SetBytes(lg.Data),
	}
	return nil
}

func decodeTokenCreated(lg *ethtypes.Log, ev *types.ChainEvent) error {
	if len(lg.Topics) != 2 {
		return ErrUndecodableLog
	}
	values, err := factoryABI.Unpack("CreatedMemeToken", lg.Data)
	if err != nil || len(values) != 2 {
		return ErrUndecodableLog
	}
	name, ok1 := values[0].(string)
	symbol, ok2 := values[1].(string)
	if !ok1 || !ok2 {
		return ErrUndecodableLog
	}

	ev.Kind = types.EventTokenCreated
	ev.TokenCreated = &types.TokenCreatedPayload{
		TokenAddress: topicAddress(lg.Topics[1]),
		Name:         name,
		Symbol:       symbol,
	}
	return nil
}

func decodeTrade(lg *ethtypes.Log, ev *types.ChainEvent, name string, side types.TradeSide) error {
	if len(lg.Topics) != 3 {
		return ErrUndecodableLog
	}
	values, err := factoryABI.Unpack(name, lg.Data)
	if err != nil || len(values) < 2 {
		return ErrUndecodableLog
	}
	qty, ok1 := values[0].(*big.Int)
	eth, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return ErrUndecodableLog
	}

	var eid uint32
	if len(values) == 3 {
		v, ok := values[2].(uint32)
		if !ok {
			return ErrUndecodableLog
		}
		eid = v
	}

	ev.Kind = types.EventTokenTraded
	ev.Trade = &types.TradePayload{
		TokenAddress: topicAddress(lg.Topics[1]),
		User:         topicAddress(lg.Topics[2]),
		TokenQty:     qty,
		EthAmount:    eth,
		Side:         side,
		Eid:          eid,
	}
	return nil
}

func decodeFundraising(lg *ethtypes.Log, ev *types.ChainEvent, name string, kind types.EventKind) error {
	if len(lg.Topics) != 2 {
		return ErrUndecodableLog
	}
	values, err := launchpadABI.Unpack(name, lg.Data)
	if err != nil || len(values) == 0 {
		return ErrUndecodableLog
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return ErrUndecodableLog
	}

	payload := &types.FundraisingPayload{
		Participant: topicAddress(lg.Topics[1]),
		Amount:      amount,
	}
	if len(values) == 2 {
		cost, ok := values[1].(*big.Int)
		if !ok {
			return ErrUndecodableLog
		}
		payload.Cost = cost
	}

	ev.Kind = kind
	ev.Fundraising = payload
	return nil
}
