package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
)

// CachedContractReader memoizes token metadata reads in Redis. Only
// successful reads are cached. Supply reads are block-dependent and always
// go to the chain.
type CachedContractReader struct {
	inner  ledger.ContractReader
	cache  *RedisCache
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedContractReader wraps inner with a Redis metadata cache
func NewCachedContractReader(inner ledger.ContractReader, cache *RedisCache, ttl time.Duration, logger *logging.Logger) *CachedContractReader {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CachedContractReader{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func metadataKey(token, field string) string {
	return fmt.Sprintf("token:meta:%s:%s", token, field)
}

// TotalSupply always reads through
func (c *CachedContractReader) TotalSupply(ctx context.Context, token string, blockNumber uint64) ledger.Lookup[*big.Int] {
	return c.inner.TotalSupply(ctx, token, blockNumber)
}

// Name returns the cached name or reads it from the contract
func (c *CachedContractReader) Name(ctx context.Context, token string) ledger.Lookup[string] {
	key := metadataKey(token, "name")
	if v, ok := c.get(ctx, key); ok {
		return ledger.Found(v)
	}
	res := c.inner.Name(ctx, token)
	if v, ok := res.Get(); ok {
		c.set(ctx, key, v)
	}
	return res
}

// Symbol returns the cached symbol or reads it from the contract
func (c *CachedContractReader) Symbol(ctx context.Context, token string) ledger.Lookup[string] {
	key := metadataKey(token, "symbol")
	if v, ok := c.get(ctx, key); ok {
		return ledger.Found(v)
	}
	res := c.inner.Symbol(ctx, token)
	if v, ok := res.Get(); ok {
		c.set(ctx, key, v)
	}
	return res
}

// Decimals returns the cached decimals or reads them from the contract
func (c *CachedContractReader) Decimals(ctx context.Context, token string) ledger.Lookup[uint8] {
	key := metadataKey(token, "decimals")
	if v, ok := c.get(ctx, key); ok {
		if d, err := strconv.ParseUint(v, 10, 8); err == nil {
			return ledger.Found(uint8(d))
		}
	}
	res := c.inner.Decimals(ctx, token)
	if v, ok := res.Get(); ok {
		c.set(ctx, key, strconv.FormatUint(uint64(v), 10))
	}
	return res
}

func (c *CachedContractReader) get(ctx context.Context, key string) (string, bool) {
	v, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(apperrors.NewCacheError("get", err)).WithField("key", key).Warn("Metadata cache read failed")
		}
		return "", false
	}
	return v, true
}

func (c *CachedContractReader) set(ctx context.Context, key, value string) {
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.WithError(apperrors.NewCacheError("set", err)).WithField("key", key).Warn("Metadata cache write failed")
	}
}
