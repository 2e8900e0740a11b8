package storage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/token-ledger/internal/models"
)

// TransferLogMirror copies committed transfer events into ClickHouse for
// analytics. The table is a ReplacingMergeTree keyed like the Postgres log,
// so appending the same event twice is harmless.
type TransferLogMirror struct {
	db *ClickHouseDB
}

// NewTransferLogMirror creates a new mirror
func NewTransferLogMirror(db *ClickHouseDB) *TransferLogMirror {
	return &TransferLogMirror{db: db}
}

// Append writes events in one batch
func (m *TransferLogMirror) Append(ctx context.Context, events []*models.TransferEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := m.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transfer_events (
			token, tx_hash, log_index, from_address, to_address,
			amount, nonce, block_number, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.Token,
			e.TxHash,
			uint32(e.LogIndex), // #nosec G115 - log index fits in uint32
			e.From,
			e.To,
			e.Amount,
			e.Nonce,
			e.BlockNumber,
			e.Timestamp.UTC(),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// VolumePoint is the transfer activity of one token on one day
type VolumePoint struct {
	Day       time.Time `json:"day"`
	Transfers uint64    `json:"transfers"`
	Volume    *big.Int  `json:"volume"`
}

// DailyVolume aggregates a token's transfers per day since the given time
func (m *TransferLogMirror) DailyVolume(ctx context.Context, token string, since time.Time) ([]VolumePoint, error) {
	query := `
		SELECT toDate(timestamp) AS day, count() AS transfers, toString(sum(amount)) AS volume
		FROM transfer_events FINAL
		WHERE token = ? AND timestamp >= ?
		GROUP BY day
		ORDER BY day ASC
	`
	rows, err := m.db.Conn().Query(ctx, query, token, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily volume: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var points []VolumePoint
	for rows.Next() {
		var (
			p      VolumePoint
			volume string
		)
		if err := rows.Scan(&p.Day, &p.Transfers, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		if p.Volume, err = parseNumeric(volume); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
