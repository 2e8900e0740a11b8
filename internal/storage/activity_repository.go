package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/token-ledger/internal/models"
)

// ActivityRepository persists factory trades and launchpad events.
// Rows are keyed by (tx_hash, log_index), so redelivery overwrites.
type ActivityRepository struct {
	db *PostgresDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *PostgresDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// SavePurchase upserts a trade
func (r *ActivityRepository) SavePurchase(ctx context.Context, p *models.PurchaseHistory) error {
	query := `
		INSERT INTO purchase_history (
			tx_hash, log_index, token, account, amount, eth_amount, price,
			side, eid, block_number, timestamp
		)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			token = EXCLUDED.token,
			account = EXCLUDED.account,
			amount = EXCLUDED.amount,
			eth_amount = EXCLUDED.eth_amount,
			price = EXCLUDED.price,
			side = EXCLUDED.side,
			eid = EXCLUDED.eid,
			block_number = EXCLUDED.block_number,
			timestamp = EXCLUDED.timestamp
	`
	_, err := r.db.Pool().Exec(ctx, query,
		p.TxHash, int32(p.LogIndex), p.Token, p.Account, // #nosec G115
		numericArg(p.Amount), numericArg(p.EthAmount), nullableNumericArg(p.Price),
		string(p.Side), int64(p.Eid), int64(p.BlockNumber), p.Timestamp, // #nosec G115
	)
	if err != nil {
		return fmt.Errorf("failed to save purchase: %w", err)
	}
	return nil
}

// SaveFundraisingEvent upserts a launchpad event
func (r *ActivityRepository) SaveFundraisingEvent(ctx context.Context, f *models.FundraisingEvent) error {
	query := `
		INSERT INTO fundraising_events (
			tx_hash, log_index, kind, participant, amount, cost, block_number, timestamp
		)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			kind = EXCLUDED.kind,
			participant = EXCLUDED.participant,
			amount = EXCLUDED.amount,
			cost = EXCLUDED.cost,
			block_number = EXCLUDED.block_number,
			timestamp = EXCLUDED.timestamp
	`
	_, err := r.db.Pool().Exec(ctx, query,
		f.TxHash, int32(f.LogIndex), string(f.Kind), f.Participant, // #nosec G115
		numericArg(f.Amount), nullableNumericArg(f.Cost), int64(f.BlockNumber), f.Timestamp, // #nosec G115
	)
	if err != nil {
		return fmt.Errorf("failed to save fundraising event: %w", err)
	}
	return nil
}

// ProgressRepository tracks the last block the indexer has fully processed per chain
type ProgressRepository struct {
	db *PostgresDB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *PostgresDB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// LoadProgress returns the last processed block. found is false before the first save.
func (r *ProgressRepository) LoadProgress(ctx context.Context, chain string) (block uint64, found bool, err error) {
	var last int64
	err = r.db.Pool().QueryRow(ctx,
		`SELECT last_processed_block FROM worker_progress WHERE chain = $1`, chain,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to load progress: %w", err)
	}
	return uint64(last), true, nil
}

// SaveProgress records block as processed
func (r *ProgressRepository) SaveProgress(ctx context.Context, chain string, block uint64) error {
	query := `
		INSERT INTO worker_progress (chain, last_processed_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (chain)
		DO UPDATE SET last_processed_block = EXCLUDED.last_processed_block, updated_at = NOW()
	`
	if _, err := r.db.Pool().Exec(ctx, query, chain, int64(block)); err != nil { // #nosec G115
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
