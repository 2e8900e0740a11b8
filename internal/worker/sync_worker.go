// Package worker runs the polling loop that feeds chain events into the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/token-ledger/internal/adapter"
	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/retry"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/types"
)

// ProgressStore persists the last fully processed block per chain
type ProgressStore interface {
	LoadProgress(ctx context.Context, chain string) (uint64, bool, error)
	SaveProgress(ctx context.Context, chain string, block uint64) error
}

// TokenLister lists the tokens whose transfers are followed
type TokenLister interface {
	ListTokenAddresses(ctx context.Context) ([]string, error)
}

// HealthReporter is implemented by sources that track their RPC endpoint
type HealthReporter interface {
	ProviderHealth() adapter.ProviderHealth
}

// TransferMirror receives committed transfer rows, e.g. for analytics
type TransferMirror interface {
	Append(ctx context.Context, events []*models.TransferEvent) error
}

// SyncWorker polls the chain and dispatches new events in block ranges
type SyncWorker struct {
	chain            types.ChainID
	source           adapter.EventSource
	dispatcher       *service.Dispatcher
	progress         ProgressStore
	tokens           TokenLister
	mirror           TransferMirror
	retryConfig      *retry.RetryConfig
	logger           *logging.Logger
	pollInterval     time.Duration
	maxBlocksPerPoll int
	startBlock       uint64

	mu                 sync.RWMutex
	lastBlockProcessed uint64
	currentBlock       uint64
	running            bool
	lastPollTime       time.Time
	tokensTracked      int
	totals             service.DispatchStats
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// SyncWorkerConfig holds configuration for a sync worker
type SyncWorkerConfig struct {
	Chain      types.ChainID
	Source     adapter.EventSource
	Dispatcher *service.Dispatcher
	Progress   ProgressStore
	Tokens     TokenLister
	// Mirror is optional
	Mirror           TransferMirror
	RetryConfig      *retry.RetryConfig
	Logger           *logging.Logger
	PollInterval     time.Duration
	MaxBlocksPerPoll int
	// StartBlock is used when no progress has been saved. Zero starts at the chain head.
	StartBlock uint64
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg *SyncWorkerConfig) (*SyncWorker, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress store cannot be nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token lister cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 12 * time.Second
	}
	maxBlocksPerPoll := cfg.MaxBlocksPerPoll
	if maxBlocksPerPoll <= 0 {
		maxBlocksPerPoll = 500
	}
	retryConfig := cfg.RetryConfig
	if retryConfig == nil {
		retryConfig = retry.DefaultRetryConfig()
		retryConfig.MaxAttempts = 3
		retryConfig.ShouldRetry = apperrors.IsRetryable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &SyncWorker{
		chain:            cfg.Chain,
		source:           cfg.Source,
		dispatcher:       cfg.Dispatcher,
		progress:         cfg.Progress,
		tokens:           cfg.Tokens,
		mirror:           cfg.Mirror,
		retryConfig:      retryConfig,
		logger:           logger.WithField("chain", string(cfg.Chain)),
		pollInterval:     pollInterval,
		maxBlocksPerPoll: maxBlocksPerPoll,
		startBlock:       cfg.StartBlock,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// Start resolves the resume point and starts the polling loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker for chain %s is already running", w.chain)
	}
	w.running = true
	w.mu.Unlock()

	lastBlock, err := w.resumePoint(ctx)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.lastBlockProcessed = lastBlock
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"lastBlock":    lastBlock,
		"pollInterval": w.pollInterval.String(),
	}).Info("Starting sync worker")

	go w.pollLoop(ctx)
	return nil
}

// resumePoint returns the last block considered processed
func (w *SyncWorker) resumePoint(ctx context.Context) (uint64, error) {
	saved, found, err := w.progress.LoadProgress(ctx, string(w.chain))
	if err != nil {
		return 0, fmt.Errorf("failed to load progress for chain %s: %w", w.chain, err)
	}
	if found {
		w.logger.WithField("block", saved).Info("Resuming from saved block")
		return saved, nil
	}
	if w.startBlock > 0 {
		return w.startBlock - 1, nil
	}

	current, err := w.source.GetCurrentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current block for chain %s: %w", w.chain, err)
	}
	w.logger.WithField("block", current).Info("No saved progress, starting at chain head")
	return current, nil
}

// Stop signals the polling loop and waits for the current cycle to finish
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker for chain %s is not running", w.chain)
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		w.logger.Info("Sync worker stopped gracefully")
	case <-ctx.Done():
		w.logger.Warn("Sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *SyncWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, leaving poll loop")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			w.lastPollTime = time.Now()
			w.mu.Unlock()

			blocks, err := w.PollChain(ctx)
			if err != nil {
				entry := w.logger.WithError(err)
				if health := w.providerHealth(); health != nil && !health.Healthy {
					entry = entry.WithFields(map[string]interface{}{
						"endpoint":         health.Endpoint,
						"consecutiveFails": health.ConsecutiveFails,
						"recentSuccess":    health.RecentSuccess,
					})
				}
				entry.Error("Poll failed")
				continue
			}
			if blocks > 0 {
				w.logger.Debugf("Processed %d new blocks", blocks)
			}
		}
	}
}

// PollChain processes the next range of at most maxBlocksPerPoll blocks and
// returns how many blocks it covered. Progress only advances when the whole
// range was fetched and dispatched.
func (w *SyncWorker) PollChain(ctx context.Context) (int, error) {
	currentBlock, err := w.source.GetCurrentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current block: %w", err)
	}

	w.mu.Lock()
	w.currentBlock = currentBlock
	lastBlock := w.lastBlockProcessed
	w.mu.Unlock()

	if currentBlock <= lastBlock {
		return 0, nil
	}

	from := lastBlock + 1
	to := currentBlock
	if to-lastBlock > uint64(w.maxBlocksPerPoll) {
		to = lastBlock + uint64(w.maxBlocksPerPoll)
		w.logger.WithFields(map[string]interface{}{
			"behind": currentBlock - lastBlock,
			"range":  w.maxBlocksPerPoll,
		}).Info("Catching up over multiple cycles")
	}

	if _, err := w.ProcessRange(ctx, from, to); err != nil {
		return 0, err
	}
	return int(to - from + 1), nil
}

// ProcessRange fetches, dispatches and mirrors the events of [from, to] and
// then saves to as the last processed block
func (w *SyncWorker) ProcessRange(ctx context.Context, from, to uint64) (*service.DispatchResult, error) {
	tokens, err := w.tokens.ListTokenAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked tokens: %w", err)
	}

	var events []*types.ChainEvent
	err = retry.Do(ctx, w.retryConfig, func(ctx context.Context, attempt int) error {
		var fetchErr error
		events, fetchErr = w.source.FetchEvents(ctx, from, to, tokens)
		if fetchErr == nil || errors.Is(fetchErr, adapter.ErrInvalidBlockRange) || ctx.Err() != nil {
			return fetchErr
		}
		return apperrors.NewProviderError(string(w.chain), fetchErr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for blocks %d-%d: %w", from, to, err)
	}

	result, err := w.dispatcher.Dispatch(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("dispatch interrupted at blocks %d-%d: %w", from, to, err)
	}

	if w.mirror != nil && len(result.TransferEvents) > 0 {
		if err := w.mirror.Append(ctx, result.TransferEvents); err != nil {
			w.logger.WithError(err).WithField("rows", len(result.TransferEvents)).Warn("Failed to mirror transfer events")
		}
	}

	if err := w.progress.SaveProgress(ctx, string(w.chain), to); err != nil {
		return nil, fmt.Errorf("failed to save progress at block %d: %w", to, err)
	}

	w.mu.Lock()
	w.lastBlockProcessed = to
	w.tokensTracked = len(tokens)
	w.totals.Add(result.Stats)
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"from":       from,
		"to":         to,
		"events":     result.Stats.Events,
		"minted":     result.Stats.Minted,
		"burned":     result.Stats.Burned,
		"transfers":  result.Stats.Transfers,
		"duplicates": result.Stats.Duplicates,
		"replayed":   result.Stats.Replayed,
		"failed":     result.Stats.Failed,
	}).Info("Range processed")

	return result, nil
}

// GetStatus returns current worker status
func (w *SyncWorker) GetStatus() *SyncWorkerStatus {
	provider := w.providerHealth()

	w.mu.RLock()
	defer w.mu.RUnlock()

	return &SyncWorkerStatus{
		Provider:            provider,
		Chain:               w.chain,
		Running:             w.running,
		LastPollTime:        w.lastPollTime,
		LastBlockProcessed:  w.lastBlockProcessed,
		CurrentBlock:        w.currentBlock,
		TokensTracked:       w.tokensTracked,
		PollIntervalSeconds: int(w.pollInterval.Seconds()),
		Totals:              w.totals,
	}
}

// SyncWorkerStatus represents the current status of a sync worker
type SyncWorkerStatus struct {
	Chain               types.ChainID         `json:"chain"`
	Running             bool                  `json:"running"`
	LastPollTime        time.Time             `json:"lastPollTime"`
	LastBlockProcessed  uint64                `json:"lastBlockProcessed"`
	CurrentBlock        uint64                `json:"currentBlock"`
	TokensTracked       int                   `json:"tokensTracked"`
	PollIntervalSeconds int                   `json:"pollIntervalSeconds"`
	Totals              service.DispatchStats `json:"totals"`
	// Provider is set when the event source tracks endpoint health
	Provider *adapter.ProviderHealth `json:"provider,omitempty"`
}

func (w *SyncWorker) providerHealth() *adapter.ProviderHealth {
	reporter, ok := w.source.(HealthReporter)
	if !ok {
		return nil
	}
	health := reporter.ProviderHealth()
	return &health
}
