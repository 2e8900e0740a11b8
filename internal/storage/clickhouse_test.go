package storage

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/models"
)

func TestTransferLogMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "default",
		User:     "default",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := testContext(t)
	require.NoError(t, RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"))

	token := fmt.Sprintf("0x%040x", time.Now().UnixNano())

	day := time.Now().UTC().Truncate(24 * time.Hour)
	mirror := NewTransferLogMirror(db)
	events := []*models.TransferEvent{
		{Token: token, TxHash: "0x01", LogIndex: 0, From: alice, To: bob, Amount: big.NewInt(7), BlockNumber: 1, Timestamp: day.Add(time.Hour)},
		{Token: token, TxHash: "0x02", LogIndex: 1, From: bob, To: alice, Amount: big.NewInt(3), BlockNumber: 2, Timestamp: day.Add(2 * time.Hour)},
	}
	require.NoError(t, mirror.Append(ctx, events))
	require.NoError(t, mirror.Append(ctx, nil))

	points, err := mirror.DailyVolume(ctx, token, day.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, points)
	assert.Equal(t, uint64(2), points[len(points)-1].Transfers)
	assert.Equal(t, "10", points[len(points)-1].Volume.String())
}
