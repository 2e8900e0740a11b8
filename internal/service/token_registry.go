// Package service turns decoded chain events into ledger, registry and
// activity records.
package service

import (
	"context"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// TokenInfoReader reads the factory's record of a token it created
type TokenInfoReader interface {
	AddressToMemeTokenMapping(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*models.MemeTokenInfo]
}

// TokenRegistry adds tokens to the ledger as the factory creates them
type TokenRegistry struct {
	store           ledger.Store
	info            TokenInfoReader
	defaultDecimals uint8
	logger          *logging.Logger
}

// NewTokenRegistry creates a registry writing through store. info may be
// nil, in which case created tokens carry only the event's name and symbol.
func NewTokenRegistry(store ledger.Store, info TokenInfoReader, defaultDecimals uint8, logger *logging.Logger) *TokenRegistry {
	if defaultDecimals == 0 {
		defaultDecimals = types.DefaultDecimals
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TokenRegistry{store: store, info: info, defaultDecimals: defaultDecimals, logger: logger}
}

// CreatedMemeToken registers the token announced by a factory creation
// event. It returns false when the token was already registered.
func (r *TokenRegistry) CreatedMemeToken(ctx context.Context, ev *types.ChainEvent) (bool, error) {
	p := ev.TokenCreated
	if p == nil {
		return false, missingPayload(ev)
	}

	token := models.NewToken(p.TokenAddress)
	token.Name = p.Name
	token.Symbol = p.Symbol
	token.Decimals = r.defaultDecimals
	token.MetadataResolved = true
	token.CreatedBlock = ev.BlockNumber
	token.CreatedAt = time.Unix(ev.Timestamp, 0).UTC()

	created, err := r.register(ctx, token, func() { r.applyFactoryInfo(ctx, token, ev.BlockNumber) })
	if err != nil {
		return false, err
	}
	if !created {
		r.logger.WithField("token", p.TokenAddress).Warn("Token already in registry")
		return false, nil
	}

	r.logger.WithFields(map[string]interface{}{
		"token":  token.Address,
		"symbol": token.Symbol,
		"block":  ev.BlockNumber,
	}).Debug("Adding token to registry")
	return true, nil
}

// RegisterSeedTokens tracks tokens that were not created through the
// factory. Their name, symbol and decimals are read on first transfer.
func (r *TokenRegistry) RegisterSeedTokens(ctx context.Context, addresses []string) (int, error) {
	added := 0
	for _, addr := range addresses {
		created, err := r.register(ctx, models.NewToken(types.NormalizeAddress(addr)), nil)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	if added > 0 {
		r.logger.Infof("Registered %d seed tokens", added)
	}
	return added, nil
}

// applyFactoryInfo copies description, image, creator and launch settings
// from the factory's record. A failed read leaves them empty.
func (r *TokenRegistry) applyFactoryInfo(ctx context.Context, token *models.Token, blockNumber uint64) {
	if r.info == nil {
		return
	}
	info, ok := r.info.AddressToMemeTokenMapping(ctx, token.Address, blockNumber).Get()
	if !ok || info == nil {
		r.logger.WithField("token", token.Address).Warn("Factory token record unavailable, storing event fields only")
		return
	}
	token.Description = info.Description
	token.ImageURL = info.ImageURL
	token.Owner = info.Creator
	token.Launch = info.Launch.Clone()
}

// register saves token unless it already exists. enrich runs only for new
// tokens, before the save.
func (r *TokenRegistry) register(ctx context.Context, token *models.Token, enrich func()) (bool, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return false, apperrors.NewDatabaseError("begin unit of work", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	existing, err := tx.LoadToken(ctx, token.Address)
	if err != nil {
		return false, apperrors.NewDatabaseError("load token "+token.Address, err)
	}
	if existing != nil {
		return false, nil
	}

	if enrich != nil {
		enrich()
	}
	if err := tx.SaveToken(ctx, token); err != nil {
		return false, apperrors.NewDatabaseError("save token "+token.Address, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperrors.NewDatabaseError("commit unit of work", err)
	}
	return true, nil
}
