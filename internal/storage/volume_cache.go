package storage

import (
	"context"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
)

// VolumeSource answers daily volume queries, normally the ClickHouse mirror
type VolumeSource interface {
	DailyVolume(ctx context.Context, token string, since time.Time) ([]VolumePoint, error)
}

// VolumeCache memoizes daily volume series in Redis. Cache failures fall
// through to the source.
type VolumeCache struct {
	cache  *CacheService
	source VolumeSource
	logger *logging.Logger
}

// NewVolumeCache creates a new volume cache
func NewVolumeCache(cache *CacheService, source VolumeSource, logger *logging.Logger) *VolumeCache {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &VolumeCache{cache: cache, source: source, logger: logger}
}

// DailyVolume returns the cached series or queries the source and caches it
func (v *VolumeCache) DailyVolume(ctx context.Context, token string, since time.Time) ([]VolumePoint, error) {
	key := v.cache.GenerateCacheKey(CacheKeyVolume, token, since.UTC().Format("2006-01-02"))

	var points []VolumePoint
	found, err := v.cache.Get(ctx, key, &points)
	if err != nil {
		v.logger.WithError(apperrors.NewCacheError("get", err)).WithField("key", key).Warn("Volume cache read failed")
	}
	if found {
		return points, nil
	}

	points, err = v.source.DailyVolume(ctx, token, since)
	if err != nil {
		return nil, err
	}
	if err := v.cache.Set(ctx, key, points); err != nil {
		v.logger.WithError(apperrors.NewCacheError("set", err)).WithField("key", key).Warn("Volume cache write failed")
	}
	return points, nil
}
