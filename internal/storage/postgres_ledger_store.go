package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/models"
)

const tokenColumns = `
	address, name, symbol, decimals, description, image_url, owner,
	total_supply::text, total_minted::text, total_burned::text,
	mint_count, burn_count, transfer_count,
	current_holder_count, cumulative_holder_count,
	metadata_resolved, created_block, created_at,
	launch_k::text, launch_initial_price::text, launch_max_supply::text,
	launch_sales_ratio::text, launch_reserved_ratio::text, launch_lp_ratio::text,
	launch_date::text, launch_max_per_user::text,
	last_applied_block, last_applied_log_index
`

// PostgresLedgerStore runs each ledger unit of work in a Postgres transaction
type PostgresLedgerStore struct {
	db *PostgresDB
}

// NewPostgresLedgerStore creates a new Postgres-backed ledger store
func NewPostgresLedgerStore(db *PostgresDB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// Begin starts a read-committed transaction
func (s *PostgresLedgerStore) Begin(ctx context.Context) (ledger.Tx, error) {
	tx, err := s.db.Pool().BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresLedgerTx{tx: tx}, nil
}

type postgresLedgerTx struct {
	tx pgx.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		t                      models.Token
		decimals               int16
		supply, minted, burned string
		createdBlock           int64
		launch                 [8]*string
		appliedBlock           *int64
		appliedLogIndex        *int64
	)
	err := row.Scan(
		&t.Address, &t.Name, &t.Symbol, &decimals, &t.Description, &t.ImageURL, &t.Owner,
		&supply, &minted, &burned,
		&t.MintCount, &t.BurnCount, &t.TransferCount,
		&t.CurrentHolderCount, &t.CumulativeHolderCount,
		&t.MetadataResolved, &createdBlock, &t.CreatedAt,
		&launch[0], &launch[1], &launch[2], &launch[3],
		&launch[4], &launch[5], &launch[6], &launch[7],
		&appliedBlock, &appliedLogIndex,
	)
	if err != nil {
		return nil, err
	}

	if launch[0] != nil {
		var lp models.LaunchParams
		fields := lp.Fields()
		for i := range launch {
			if *fields[i], err = parseNullableNumeric(launch[i]); err != nil {
				return nil, err
			}
		}
		t.Launch = &lp
	}
	if appliedBlock != nil && appliedLogIndex != nil {
		t.LastApplied = &models.Cursor{
			BlockNumber: uint64(*appliedBlock),   // #nosec G115
			LogIndex:    uint(*appliedLogIndex), // #nosec G115
		}
	}

	t.Decimals = uint8(decimals) // #nosec G115 - column is written from a uint8
	t.CreatedBlock = uint64(createdBlock)
	if t.TotalSupply, err = parseNumeric(supply); err != nil {
		return nil, err
	}
	if t.TotalMinted, err = parseNumeric(minted); err != nil {
		return nil, err
	}
	if t.TotalBurned, err = parseNumeric(burned); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *postgresLedgerTx) LoadToken(ctx context.Context, address string) (*models.Token, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, address)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return t, nil
}

func (p *postgresLedgerTx) LoadAccount(ctx context.Context, address string) (*models.Account, error) {
	var acc models.Account
	err := p.tx.QueryRow(ctx, `SELECT address FROM accounts WHERE address = $1`, address).Scan(&acc.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acc, nil
}

func (p *postgresLedgerTx) LoadBalance(ctx context.Context, account, token string) (*models.AccountBalance, error) {
	query := `
		SELECT account, token, amount::text, block_number, timestamp
		FROM account_balances
		WHERE account = $1 AND token = $2
	`
	b, err := scanBalance(p.tx.QueryRow(ctx, query, account, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return b, nil
}

func scanBalance(row rowScanner) (*models.AccountBalance, error) {
	var (
		b      models.AccountBalance
		amount string
		block  int64
	)
	if err := row.Scan(&b.Account, &b.Token, &amount, &block, &b.Timestamp); err != nil {
		return nil, err
	}
	v, err := parseNumeric(amount)
	if err != nil {
		return nil, err
	}
	b.Amount = v
	b.BlockNumber = uint64(block)
	return &b, nil
}

func (p *postgresLedgerTx) SaveToken(ctx context.Context, t *models.Token) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, decimals, description, image_url, owner,
			total_supply, total_minted, total_burned,
			mint_count, burn_count, transfer_count,
			current_holder_count, cumulative_holder_count,
			metadata_resolved, created_block, created_at,
			launch_k, launch_initial_price, launch_max_supply,
			launch_sales_ratio, launch_reserved_ratio, launch_lp_ratio,
			launch_date, launch_max_per_user,
			last_applied_block, last_applied_log_index, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric,
			$11, $12, $13, $14, $15, $16, $17, $18,
			$19::numeric, $20::numeric, $21::numeric, $22::numeric,
			$23::numeric, $24::numeric, $25::numeric, $26::numeric,
			$27, $28, NOW())
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			owner = EXCLUDED.owner,
			total_supply = EXCLUDED.total_supply,
			total_minted = EXCLUDED.total_minted,
			total_burned = EXCLUDED.total_burned,
			mint_count = EXCLUDED.mint_count,
			burn_count = EXCLUDED.burn_count,
			transfer_count = EXCLUDED.transfer_count,
			current_holder_count = EXCLUDED.current_holder_count,
			cumulative_holder_count = EXCLUDED.cumulative_holder_count,
			metadata_resolved = EXCLUDED.metadata_resolved,
			launch_k = EXCLUDED.launch_k,
			launch_initial_price = EXCLUDED.launch_initial_price,
			launch_max_supply = EXCLUDED.launch_max_supply,
			launch_sales_ratio = EXCLUDED.launch_sales_ratio,
			launch_reserved_ratio = EXCLUDED.launch_reserved_ratio,
			launch_lp_ratio = EXCLUDED.launch_lp_ratio,
			launch_date = EXCLUDED.launch_date,
			launch_max_per_user = EXCLUDED.launch_max_per_user,
			last_applied_block = EXCLUDED.last_applied_block,
			last_applied_log_index = EXCLUDED.last_applied_log_index,
			updated_at = NOW()
	`
	var launch [8]*string
	if t.Launch != nil {
		for i, f := range t.Launch.Fields() {
			launch[i] = nullableNumericArg(*f)
		}
	}
	var appliedBlock, appliedLogIndex *int64
	if t.LastApplied != nil {
		b, li := int64(t.LastApplied.BlockNumber), int64(t.LastApplied.LogIndex) // #nosec G115
		appliedBlock, appliedLogIndex = &b, &li
	}

	_, err := p.tx.Exec(ctx, query,
		t.Address, t.Name, t.Symbol, int16(t.Decimals), t.Description, t.ImageURL, t.Owner,
		numericArg(t.TotalSupply), numericArg(t.TotalMinted), numericArg(t.TotalBurned),
		t.MintCount, t.BurnCount, t.TransferCount,
		t.CurrentHolderCount, t.CumulativeHolderCount,
		t.MetadataResolved, int64(t.CreatedBlock), createdAt, // #nosec G115
		launch[0], launch[1], launch[2], launch[3],
		launch[4], launch[5], launch[6], launch[7],
		appliedBlock, appliedLogIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (p *postgresLedgerTx) SaveAccount(ctx context.Context, acc *models.Account) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO accounts (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
		acc.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (p *postgresLedgerTx) SaveBalance(ctx context.Context, b *models.AccountBalance) error {
	query := `
		INSERT INTO account_balances (account, token, amount, block_number, timestamp)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (account, token) DO UPDATE SET
			amount = EXCLUDED.amount,
			block_number = EXCLUDED.block_number,
			timestamp = EXCLUDED.timestamp
	`
	_, err := p.tx.Exec(ctx, query,
		b.Account, b.Token, numericArg(b.Amount), int64(b.BlockNumber), b.Timestamp, // #nosec G115
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (p *postgresLedgerTx) SaveTransferEvent(ctx context.Context, e *models.TransferEvent) error {
	query := `
		INSERT INTO transfer_events (
			token, tx_hash, log_index, from_address, to_address,
			amount, nonce, block_number, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		ON CONFLICT (token, tx_hash, log_index) DO UPDATE SET
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			amount = EXCLUDED.amount,
			nonce = EXCLUDED.nonce,
			block_number = EXCLUDED.block_number,
			timestamp = EXCLUDED.timestamp
	`
	_, err := p.tx.Exec(ctx, query,
		e.Token, e.TxHash, int32(e.LogIndex), e.From, e.To, // #nosec G115
		numericArg(e.Amount), int64(e.Nonce), int64(e.BlockNumber), e.Timestamp, // #nosec G115
	)
	if err != nil {
		return fmt.Errorf("failed to save transfer event: %w", err)
	}
	return nil
}

func (p *postgresLedgerTx) Commit(ctx context.Context) error {
	return p.tx.Commit(ctx)
}

func (p *postgresLedgerTx) Rollback(ctx context.Context) error {
	err := p.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
