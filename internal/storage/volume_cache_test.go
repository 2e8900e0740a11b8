package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-ledger/internal/logging"
)

type stubVolumeSource struct {
	calls int
}

func (s *stubVolumeSource) DailyVolume(ctx context.Context, token string, since time.Time) ([]VolumePoint, error) {
	s.calls++
	return []VolumePoint{{Day: since, Transfers: 3, Volume: big.NewInt(12)}}, nil
}

func TestVolumeCache_DailyVolume(t *testing.T) {
	ctx := testContext(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	source := &stubVolumeSource{}
	cache := NewVolumeCache(NewCacheService(NewRedisCacheFromClient(client), time.Minute), source, logging.NewNop())

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		points, err := cache.DailyVolume(ctx, tokenA, since)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, uint64(3), points[0].Transfers)
		assert.Equal(t, "12", points[0].Volume.String())
	}
	assert.Equal(t, 1, source.calls)
	assert.True(t, mr.Exists("volume:"+tokenA+":2026-01-02"))
}
