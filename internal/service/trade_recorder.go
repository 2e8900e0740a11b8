package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// TokenGetter looks up a registered token, returning nil when unknown
type TokenGetter interface {
	GetToken(ctx context.Context, address string) (*models.Token, error)
}

// PurchaseWriter persists trades
type PurchaseWriter interface {
	SavePurchase(ctx context.Context, p *models.PurchaseHistory) error
}

// PriceReader reads the bonding-curve price of a token
type PriceReader interface {
	GetCurrentTokenPrice(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*big.Int]
}

// TradeRecorder stores factory buys and sells of registered tokens
type TradeRecorder struct {
	tokens TokenGetter
	writer PurchaseWriter
	prices PriceReader
	logger *logging.Logger
}

// NewTradeRecorder creates a recorder. prices may be nil, in which case
// trades are stored without a price.
func NewTradeRecorder(tokens TokenGetter, writer PurchaseWriter, prices PriceReader, logger *logging.Logger) *TradeRecorder {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TradeRecorder{tokens: tokens, writer: writer, prices: prices, logger: logger}
}

// Record stores the trade. It returns false when the token is not registered.
func (r *TradeRecorder) Record(ctx context.Context, ev *types.ChainEvent) (bool, error) {
	p := ev.Trade
	if p == nil {
		return false, missingPayload(ev)
	}

	token, err := r.tokens.GetToken(ctx, p.TokenAddress)
	if err != nil {
		return false, apperrors.NewDatabaseError("load token "+p.TokenAddress, err)
	}
	if token == nil {
		r.logger.WithField("token", p.TokenAddress).Debug("Dropping trade for unregistered token")
		return false, nil
	}

	purchase := &models.PurchaseHistory{
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Token:       token.Address,
		Account:     p.User,
		Amount:      p.TokenQty,
		EthAmount:   p.EthAmount,
		Side:        p.Side,
		Eid:         p.Eid,
		BlockNumber: ev.BlockNumber,
		Timestamp:   time.Unix(ev.Timestamp, 0).UTC(),
	}
	if r.prices != nil {
		if price, ok := r.prices.GetCurrentTokenPrice(ctx, token.Address, ev.BlockNumber).Get(); ok {
			purchase.Price = price
		}
	}

	if err := r.writer.SavePurchase(ctx, purchase); err != nil {
		return false, apperrors.NewDatabaseError(fmt.Sprintf("save purchase %s/%d", ev.TxHash, ev.LogIndex), err)
	}
	return true, nil
}
