package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// TransferApplier applies one transfer to the ledger
type TransferApplier interface {
	Process(ctx context.Context, t *ledger.Transfer) (*ledger.Result, error)
}

// DispatchStats counts what happened to the events of one dispatch
type DispatchStats struct {
	Events     int `json:"events"`
	Minted     int `json:"minted"`
	Burned     int `json:"burned"`
	Transfers  int `json:"transfers"`
	Duplicates int `json:"duplicates"`
	Replayed   int `json:"replayed"`
	Ignored    int `json:"ignored"`
	Dropped    int `json:"dropped"`
	Registered int `json:"registered"`
	Trades     int `json:"trades"`
	Launchpad  int `json:"launchpad"`
	Failed     int `json:"failed"`
}

// DispatchResult is the outcome of one dispatch
type DispatchResult struct {
	Stats DispatchStats
	// TransferEvents are the transfer log rows committed during the dispatch
	TransferEvents []*models.TransferEvent
	// Failures holds one categorized error per failed event, in order
	Failures []*apperrors.CategorizedError
}

// errMissingPayload marks an event whose decoded payload does not match its kind
var errMissingPayload = errors.New("event payload missing")

func missingPayload(ev *types.ChainEvent) error {
	return apperrors.NewDecodeError(string(ev.Kind), ev.TxHash, errMissingPayload)
}

// Dispatcher routes decoded events, in order, to the component owning them
type Dispatcher struct {
	transfers   TransferApplier
	registry    *TokenRegistry
	trades      *TradeRecorder
	fundraising *FundraisingRecorder
	logger      *logging.Logger
}

// DispatcherConfig wires a Dispatcher. Trades and Fundraising may be nil.
type DispatcherConfig struct {
	Transfers   TransferApplier
	Registry    *TokenRegistry
	Trades      *TradeRecorder
	Fundraising *FundraisingRecorder
	Logger      *logging.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Dispatcher{
		transfers:   cfg.Transfers,
		registry:    cfg.Registry,
		trades:      cfg.Trades,
		fundraising: cfg.Fundraising,
		logger:      logger,
	}
}

// Dispatch handles events one at a time in the given order. A failing event
// is rolled back, logged and counted; the remaining events still run. Only
// context cancellation stops the dispatch early.
func (d *Dispatcher) Dispatch(ctx context.Context, events []*types.ChainEvent) (*DispatchResult, error) {
	res := &DispatchResult{}
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Stats.Events++

		if err := d.dispatchOne(ctx, ev, res); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Stats.Failed++
			catErr := apperrors.Categorize(err)
			res.Failures = append(res.Failures, catErr)
			d.logger.WithError(catErr).WithFields(map[string]interface{}{
				"kind":     string(ev.Kind),
				"txHash":   ev.TxHash,
				"logIndex": ev.LogIndex,
				"block":    ev.BlockNumber,
			}).Error("Event failed, skipping")
		}
	}
	return res, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev *types.ChainEvent, res *DispatchResult) error {
	switch ev.Kind {
	case types.EventTransfer:
		return d.applyTransfer(ctx, ev, res)

	case types.EventTokenCreated:
		if d.registry == nil {
			res.Stats.Dropped++
			return nil
		}
		created, err := d.registry.CreatedMemeToken(ctx, ev)
		if err != nil {
			return err
		}
		if created {
			res.Stats.Registered++
		} else {
			res.Stats.Dropped++
		}
		return nil

	case types.EventTokenTraded:
		if d.trades == nil {
			res.Stats.Dropped++
			return nil
		}
		recorded, err := d.trades.Record(ctx, ev)
		if err != nil {
			return err
		}
		if recorded {
			res.Stats.Trades++
		} else {
			res.Stats.Dropped++
		}
		return nil

	case types.EventTokensPurchased, types.EventTokensClaimed, types.EventFeesWithdrawn:
		if d.fundraising == nil {
			res.Stats.Dropped++
			return nil
		}
		if err := d.fundraising.Record(ctx, ev); err != nil {
			return err
		}
		res.Stats.Launchpad++
		return nil

	default:
		res.Stats.Dropped++
		return nil
	}
}

func (d *Dispatcher) applyTransfer(ctx context.Context, ev *types.ChainEvent, res *DispatchResult) error {
	if ev.Transfer == nil {
		res.Stats.Dropped++
		return nil
	}

	result, err := d.transfers.Process(ctx, &ledger.Transfer{
		Token:       ev.Address,
		From:        ev.Transfer.From,
		To:          ev.Transfer.To,
		Amount:      ev.Transfer.Value,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Nonce:       ev.Nonce,
		BlockNumber: ev.BlockNumber,
		Timestamp:   time.Unix(ev.Timestamp, 0).UTC(),
	})
	if err != nil {
		return err
	}

	switch result.Outcome {
	case ledger.OutcomeMinted:
		res.Stats.Minted++
	case ledger.OutcomeBurned:
		res.Stats.Burned++
	case ledger.OutcomeTransferred:
		res.Stats.Transfers++
		res.TransferEvents = append(res.TransferEvents, result.TransferEvent)
	case ledger.OutcomeDuplicate:
		res.Stats.Duplicates++
	case ledger.OutcomeReplayed:
		res.Stats.Replayed++
	case ledger.OutcomeIgnored:
		res.Stats.Ignored++
	default:
		res.Stats.Dropped++
	}
	return nil
}

// Add accumulates other into s
func (s *DispatchStats) Add(other DispatchStats) {
	s.Events += other.Events
	s.Minted += other.Minted
	s.Burned += other.Burned
	s.Transfers += other.Transfers
	s.Duplicates += other.Duplicates
	s.Replayed += other.Replayed
	s.Ignored += other.Ignored
	s.Dropped += other.Dropped
	s.Registered += other.Registered
	s.Trades += other.Trades
	s.Launchpad += other.Launchpad
	s.Failed += other.Failed
}
