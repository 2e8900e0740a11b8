package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// Outcome describes what processing did with a transfer
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored_zero_amount"
	OutcomeUnknownToken Outcome = "unknown_token"
	OutcomeReplayed     Outcome = "replayed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeMinted       Outcome = "minted"
	OutcomeBurned       Outcome = "burned"
	OutcomeTransferred  Outcome = "transferred"
)

// Transfer is one Transfer log of a tracked token, in chain order
type Transfer struct {
	Token       string
	From        string
	To          string
	Amount      *big.Int
	TxHash      string
	LogIndex    uint
	Nonce       uint64
	BlockNumber uint64
	Timestamp   time.Time
}

// Result reports the classification and outcome of one processed transfer
type Result struct {
	Kind          Kind
	Outcome       Outcome
	TransferEvent *models.TransferEvent
	// HolderDelta is only set for genuine transfers
	HolderDelta *HolderDelta
}

// ProcessorConfig configures a TransferProcessor
type ProcessorConfig struct {
	Store           Store
	Reader          ContractReader
	DefaultDecimals uint8
	Logger          *logging.Logger
}

// TransferProcessor applies transfers to the ledger one at a time. Callers
// must not invoke Process concurrently and must deliver transfers in chain order.
type TransferProcessor struct {
	store           Store
	reader          ContractReader
	defaultDecimals uint8
	logger          *logging.Logger

	suppressor *DuplicateSuppressor
	aggregate  TokenAggregate
	balances   BalanceLedger
	holders    HolderCounter
}

// NewTransferProcessor creates a processor
func NewTransferProcessor(cfg *ProcessorConfig) (*TransferProcessor, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("contract reader is required")
	}
	decimals := cfg.DefaultDecimals
	if decimals == 0 {
		decimals = types.DefaultDecimals
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TransferProcessor{
		store:           cfg.Store,
		reader:          cfg.Reader,
		defaultDecimals: decimals,
		logger:          logger,
		suppressor:      NewDuplicateSuppressor(cfg.Reader),
	}, nil
}

// Process applies t atomically. Every record change of one transfer is
// committed together or not at all. A returned error is a database error
// meaning nothing was written and the transfer may be retried.
func (p *TransferProcessor) Process(ctx context.Context, t *Transfer) (*Result, error) {
	result, err := p.process(ctx, t)
	if err != nil {
		return nil, apperrors.NewDatabaseError("apply transfer", err)
	}
	return result, nil
}

func (p *TransferProcessor) process(ctx context.Context, t *Transfer) (*Result, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.WithError(rbErr).Warn("Failed to roll back ledger unit of work")
		}
	}()

	uow := newUnitOfWork(tx)
	result, err := p.apply(ctx, uow, t)
	if err != nil {
		return nil, err
	}

	if !uow.dirty() {
		return result, nil
	}
	if err := uow.flush(ctx); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit unit of work: %w", err)
	}
	committed = true

	p.logger.WithFields(map[string]interface{}{
		"token":    t.Token,
		"txHash":   t.TxHash,
		"logIndex": t.LogIndex,
		"kind":     result.Kind.String(),
		"outcome":  string(result.Outcome),
	}).Debug("Transfer applied")

	return result, nil
}

func (p *TransferProcessor) apply(ctx context.Context, uow *unitOfWork, t *Transfer) (*Result, error) {
	token, err := uow.token(ctx, t.Token)
	if err != nil {
		return nil, err
	}
	if token == nil {
		p.logger.WithFields(map[string]interface{}{
			"token":  t.Token,
			"txHash": t.TxHash,
		}).Debug("Dropping transfer for unregistered token")
		return &Result{Kind: KindIgnored, Outcome: OutcomeUnknownToken}, nil
	}

	pos := models.Cursor{BlockNumber: t.BlockNumber, LogIndex: t.LogIndex}
	if token.LastApplied != nil && !pos.After(*token.LastApplied) {
		p.logger.WithFields(map[string]interface{}{
			"token":       t.Token,
			"txHash":      t.TxHash,
			"logIndex":    t.LogIndex,
			"blockNumber": t.BlockNumber,
		}).Debug("Transfer already applied, skipping replay")
		return &Result{Kind: KindIgnored, Outcome: OutcomeReplayed}, nil
	}

	p.resolveMetadata(ctx, token)

	at := Position{BlockNumber: t.BlockNumber, Timestamp: t.Timestamp}
	kind := Classify(t.From, t.To, t.Amount)

	switch kind {
	case KindBurn:
		if p.suppressor.AlreadyApplied(ctx, token, t.BlockNumber) {
			p.logDuplicate(t, kind)
			return &Result{Kind: kind, Outcome: OutcomeDuplicate}, nil
		}
		p.aggregate.ApplyBurn(token, t.Amount)
		markApplied(uow, token, pos)
		if err := p.balances.Decrease(ctx, uow, t.From, token.Address, t.Amount, at); err != nil {
			return nil, err
		}
		return &Result{Kind: kind, Outcome: OutcomeBurned}, nil

	case KindMint:
		if p.suppressor.AlreadyApplied(ctx, token, t.BlockNumber) {
			p.logDuplicate(t, kind)
			return &Result{Kind: kind, Outcome: OutcomeDuplicate}, nil
		}
		p.aggregate.ApplyMint(token, t.Amount)
		markApplied(uow, token, pos)
		if err := p.balances.Increase(ctx, uow, t.To, token.Address, t.Amount, at); err != nil {
			return nil, err
		}
		return &Result{Kind: kind, Outcome: OutcomeMinted}, nil

	case KindTransfer:
		delta, err := p.holders.Observe(ctx, uow, token.Address, t.From, t.To, t.Amount)
		if err != nil {
			return nil, err
		}

		ev := &models.TransferEvent{
			Token:       token.Address,
			TxHash:      t.TxHash,
			LogIndex:    t.LogIndex,
			From:        t.From,
			To:          t.To,
			Amount:      new(big.Int).Set(t.Amount),
			Nonce:       t.Nonce,
			BlockNumber: t.BlockNumber,
			Timestamp:   t.Timestamp,
		}
		uow.appendTransfer(ev)

		p.aggregate.ApplyTransfer(token)
		p.holders.Apply(token, delta)
		markApplied(uow, token, pos)

		if err := p.balances.Decrease(ctx, uow, t.From, token.Address, t.Amount, at); err != nil {
			return nil, err
		}
		if err := p.balances.Increase(ctx, uow, t.To, token.Address, t.Amount, at); err != nil {
			return nil, err
		}
		return &Result{Kind: kind, Outcome: OutcomeTransferred, TransferEvent: ev, HolderDelta: &delta}, nil

	default:
		return &Result{Kind: KindIgnored, Outcome: OutcomeIgnored}, nil
	}
}

// markApplied advances the token's cursor in the same unit of work as the
// changes the log made
func markApplied(uow *unitOfWork, token *models.Token, pos models.Cursor) {
	token.LastApplied = &pos
	uow.markToken(token.Address)
}

// resolveMetadata fills name, symbol and decimals the first time a token
// without a name is seen. Supply tracking starts from zero at that point.
func (p *TransferProcessor) resolveMetadata(ctx context.Context, token *models.Token) {
	if token.Name != "" || token.MetadataResolved {
		return
	}

	name := p.reader.Name(ctx, token.Address)
	symbol := p.reader.Symbol(ctx, token.Address)
	decimals := p.reader.Decimals(ctx, token.Address)

	if !name.OK() || !symbol.OK() || !decimals.OK() {
		p.logger.WithFields(map[string]interface{}{
			"token":    token.Address,
			"name":     name.OK(),
			"symbol":   symbol.OK(),
			"decimals": decimals.OK(),
		}).Warn("Token metadata partially unavailable, using defaults")
	}

	token.Name = name.OrElse("")
	token.Symbol = symbol.OrElse("")
	token.Decimals = decimals.OrElse(p.defaultDecimals)
	token.TotalSupply = new(big.Int)
	token.MetadataResolved = true
}

func (p *TransferProcessor) logDuplicate(t *Transfer, kind Kind) {
	p.logger.WithFields(map[string]interface{}{
		"token":       t.Token,
		"txHash":      t.TxHash,
		"logIndex":    t.LogIndex,
		"kind":        kind.String(),
		"blockNumber": t.BlockNumber,
	}).Info("Supply change already reflected, dropping event")
}
