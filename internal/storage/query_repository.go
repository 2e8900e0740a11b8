package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// QueryRepository serves read-only ledger queries from Postgres
type QueryRepository struct {
	db *PostgresDB
}

// NewQueryRepository creates a new query repository
func NewQueryRepository(db *PostgresDB) *QueryRepository {
	return &QueryRepository{db: db}
}

// GetToken returns the token or nil when it is not tracked
func (r *QueryRepository) GetToken(ctx context.Context, address string) (*models.Token, error) {
	row := r.db.Pool().QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, address)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// ListTokens returns tokens, most recently created first
func (r *QueryRepository) ListTokens(ctx context.Context, page Page) ([]*models.Token, error) {
	page = page.Normalize()
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+tokenColumns+` FROM tokens ORDER BY created_block DESC, address LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ListTokenAddresses returns the address of every tracked token
func (r *QueryRepository) ListTokenAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT address FROM tokens ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan token address: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// ListTransfers returns a token's transfer log, newest first
func (r *QueryRepository) ListTransfers(ctx context.Context, token string, page Page) ([]*models.TransferEvent, error) {
	page = page.Normalize()
	query := `
		SELECT token, tx_hash, log_index, from_address, to_address,
		       amount::text, nonce, block_number, timestamp
		FROM transfer_events
		WHERE token = $1
		ORDER BY block_number DESC, log_index DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool().Query(ctx, query, token, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var events []*models.TransferEvent
	for rows.Next() {
		var (
			e                  models.TransferEvent
			logIndex           int32
			amount             string
			nonce, blockNumber int64
		)
		if err := rows.Scan(&e.Token, &e.TxHash, &logIndex, &e.From, &e.To,
			&amount, &nonce, &blockNumber, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		e.LogIndex = uint(logIndex)
		e.Nonce = uint64(nonce)
		e.BlockNumber = uint64(blockNumber)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// ListHolders returns accounts with a positive balance of token, largest first
func (r *QueryRepository) ListHolders(ctx context.Context, token string, page Page) ([]*models.AccountBalance, error) {
	page = page.Normalize()
	query := `
		SELECT account, token, amount::text, block_number, timestamp
		FROM account_balances
		WHERE token = $1 AND amount > 0 AND account <> $2
		ORDER BY amount DESC, account
		LIMIT $3 OFFSET $4
	`
	return r.queryBalances(ctx, query, token, types.SentinelAddress, page.Limit, page.Offset)
}

// ListAccountBalances returns every balance row of an account
func (r *QueryRepository) ListAccountBalances(ctx context.Context, account string) ([]*models.AccountBalance, error) {
	query := `
		SELECT account, token, amount::text, block_number, timestamp
		FROM account_balances
		WHERE account = $1
		ORDER BY token
	`
	return r.queryBalances(ctx, query, account)
}

func (r *QueryRepository) queryBalances(ctx context.Context, query string, args ...any) ([]*models.AccountBalance, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []*models.AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListPurchases returns a token's bonding-curve trades, newest first
func (r *QueryRepository) ListPurchases(ctx context.Context, token string, page Page) ([]*models.PurchaseHistory, error) {
	page = page.Normalize()
	query := `
		SELECT tx_hash, log_index, token, account, amount::text, eth_amount::text,
		       price::text, side, eid, block_number, timestamp
		FROM purchase_history
		WHERE token = $1
		ORDER BY block_number DESC, log_index DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool().Query(ctx, query, token, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []*models.PurchaseHistory
	for rows.Next() {
		var (
			p                 models.PurchaseHistory
			logIndex          int32
			amount, ethAmount string
			price             *string
			side              string
			eid, blockNumber  int64
		)
		if err := rows.Scan(&p.TxHash, &logIndex, &p.Token, &p.Account, &amount, &ethAmount,
			&price, &side, &eid, &blockNumber, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		if p.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if p.EthAmount, err = parseNumeric(ethAmount); err != nil {
			return nil, err
		}
		if p.Price, err = parseNullableNumeric(price); err != nil {
			return nil, err
		}
		p.LogIndex = uint(logIndex)
		p.Side = types.TradeSide(side)
		p.Eid = uint32(eid)
		p.BlockNumber = uint64(blockNumber)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListFundraising returns launchpad events, newest first
func (r *QueryRepository) ListFundraising(ctx context.Context, page Page) ([]*models.FundraisingEvent, error) {
	page = page.Normalize()
	query := `
		SELECT tx_hash, log_index, kind, participant, amount::text, cost::text,
		       block_number, timestamp
		FROM fundraising_events
		ORDER BY block_number DESC, log_index DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool().Query(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list fundraising events: %w", err)
	}
	defer rows.Close()

	var out []*models.FundraisingEvent
	for rows.Next() {
		var (
			f           models.FundraisingEvent
			logIndex    int32
			kind        string
			amount      string
			cost        *string
			blockNumber int64
		)
		if err := rows.Scan(&f.TxHash, &logIndex, &kind, &f.Participant, &amount, &cost,
			&blockNumber, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan fundraising event: %w", err)
		}
		if f.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if f.Cost, err = parseNullableNumeric(cost); err != nil {
			return nil, err
		}
		f.LogIndex = uint(logIndex)
		f.Kind = types.FundraisingKind(kind)
		f.BlockNumber = uint64(blockNumber)
		out = append(out, &f)
	}
	return out, rows.Err()
}
