// Package main replays a block range once against an in-memory ledger and
// prints the resulting token aggregates. Nothing is persisted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/token-ledger/internal/adapter"
	"github.com/token-ledger/internal/circuitbreaker"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
	"github.com/token-ledger/internal/worker"
)

func main() {
	var (
		from    = flag.Uint64("from", 0, "First block to replay (required)")
		to      = flag.Uint64("to", 0, "Last block to replay (required)")
		holders = flag.Bool("holders", false, "Also print the holders of every token")
	)
	flag.Parse()

	if *from == 0 || *to < *from {
		log.Fatalf("Invalid range: -from %d -to %d", *from, *to)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Ledger.StoreBackend = config.StoreBackendMemory
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// stdout carries the report
	logger := logging.NewLoggerWithOutput(logging.ParseLogLevel(cfg.Logging.Level), logging.FormatText, "stderr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := replay(ctx, cfg, logger, *from, *to, *holders)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}

type tokenReport struct {
	Token   interface{} `json:"token"`
	Holders interface{} `json:"holders,omitempty"`
}

type replayReport struct {
	From   uint64                `json:"from"`
	To     uint64                `json:"to"`
	Stats  service.DispatchStats `json:"stats"`
	Tokens []tokenReport         `json:"tokens"`
}

func replay(ctx context.Context, cfg *config.Config, logger *logging.Logger, from, to uint64, withHolders bool) (*replayReport, error) {
	store := storage.NewMemoryStore()

	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		return nil, err
	}
	chainAdapter, err := adapter.NewEthereumAdapter(ctx, &adapter.EthereumAdapterConfig{
		ChainID:          types.ChainID(cfg.Chain.Name),
		Provider:         provider,
		FactoryAddress:   cfg.Chain.FactoryAddress,
		LaunchpadAddress: cfg.Chain.LaunchpadAddress,
		RateLimit:        cfg.Chain.RPCRateLimit,
		FetchConcurrency: cfg.Chain.FetchConcurrency,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	defer chainAdapter.Close()

	breakers := circuitbreaker.NewManager(nil)
	processor, err := ledger.NewTransferProcessor(&ledger.ProcessorConfig{
		Store:           store,
		Reader:          adapter.NewERC20Reader(chainAdapter, breakers, cfg.Chain.CallTimeout, logger),
		DefaultDecimals: cfg.Ledger.DefaultDecimals,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	var (
		prices service.PriceReader
		info   service.TokenInfoReader
	)
	if cfg.Chain.FactoryAddress != "" {
		factory := adapter.NewFactoryReader(chainAdapter, cfg.Chain.FactoryAddress, breakers, cfg.Chain.CallTimeout, logger)
		prices, info = factory, factory
	}

	registry := service.NewTokenRegistry(store, info, cfg.Ledger.DefaultDecimals, logger)
	if _, err := registry.RegisterSeedTokens(ctx, cfg.Ledger.SeedTokens); err != nil {
		return nil, err
	}

	syncWorker, err := worker.NewSyncWorker(&worker.SyncWorkerConfig{
		Chain:  types.ChainID(cfg.Chain.Name),
		Source: chainAdapter,
		Dispatcher: service.NewDispatcher(service.DispatcherConfig{
			Transfers:   processor,
			Registry:    registry,
			Trades:      service.NewTradeRecorder(store, store, prices, logger),
			Fundraising: service.NewFundraisingRecorder(store),
			Logger:      logger,
		}),
		Progress:         store,
		Tokens:           store,
		Logger:           logger,
		MaxBlocksPerPoll: cfg.Chain.MaxBlocksPerPoll,
	})
	if err != nil {
		return nil, err
	}

	report := &replayReport{From: from, To: to}
	step := uint64(cfg.Chain.MaxBlocksPerPoll)
	for start := from; start <= to; start += step {
		end := min(start+step-1, to)
		result, err := syncWorker.ProcessRange(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("blocks %d-%d: %w", start, end, err)
		}
		report.Stats.Add(result.Stats)
	}

	tokens, err := store.ListTokens(ctx, storage.Page{Limit: 500})
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		entry := tokenReport{Token: t}
		if withHolders {
			list, err := store.ListHolders(ctx, t.Address, storage.Page{Limit: 500})
			if err != nil {
				return nil, err
			}
			entry.Holders = list
		}
		report.Tokens = append(report.Tokens, entry)
	}
	return report, nil
}
