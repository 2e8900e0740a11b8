// Package main provides the indexer entry point: it follows one chain and
// applies token events to the ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	fmt.Println("Token Ledger Indexer")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Indexer stopped with error")
	}
	logger.Info("Indexer exited")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	be, err := openBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer be.close()

	chainAdapter, err := newChainAdapter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer chainAdapter.Close()

	breakers := circuitbreaker.NewManager(nil)
	var reader ledger.ContractReader = adapter.NewERC20Reader(chainAdapter, breakers, cfg.Chain.CallTimeout, logger)

	if cfg.Database.Redis.Enabled {
		redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, token metadata will not be cached")
		} else {
			defer redisCache.Close()
			reader = storage.NewCachedContractReader(reader, redisCache, cfg.Cache.MetadataTTL, logger)
		}
	}

	var (
		prices service.PriceReader
		info   service.TokenInfoReader
	)
	if cfg.Chain.FactoryAddress != "" {
		factory := adapter.NewFactoryReader(chainAdapter, cfg.Chain.FactoryAddress, breakers, cfg.Chain.CallTimeout, logger)
		prices, info = factory, factory
	}

	processor, err := ledger.NewTransferProcessor(&ledger.ProcessorConfig{
		Store:           be.ledger,
		Reader:          reader,
		DefaultDecimals: cfg.Ledger.DefaultDecimals,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	registry := service.NewTokenRegistry(be.ledger, info, cfg.Ledger.DefaultDecimals, logger)
	if _, err := registry.RegisterSeedTokens(ctx, cfg.Ledger.SeedTokens); err != nil {
		return fmt.Errorf("register seed tokens: %w", err)
	}

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Transfers:   processor,
		Registry:    registry,
		Trades:      service.NewTradeRecorder(be.lookup, be.purchases, prices, logger),
		Fundraising: service.NewFundraisingRecorder(be.fundraising),
		Logger:      logger,
	})

	var mirror worker.TransferMirror
	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, transfer log will not be mirrored")
		} else {
			defer func() { _ = ch.Close() }()
			mirror = storage.NewTransferLogMirror(ch)
		}
	}

	syncWorker, err := worker.NewSyncWorker(&worker.SyncWorkerConfig{
		Chain:            types.ChainID(cfg.Chain.Name),
		Source:           chainAdapter,
		Dispatcher:       dispatcher,
		Progress:         be.progress,
		Tokens:           be.tokens,
		Mirror:           mirror,
		Logger:           logger,
		PollInterval:     cfg.Chain.PollInterval,
		MaxBlocksPerPoll: cfg.Chain.MaxBlocksPerPoll,
		StartBlock:       cfg.Chain.StartBlock,
	})
	if err != nil {
		return err
	}
	if err := syncWorker.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := syncWorker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Sync worker did not stop cleanly")
	}

	status := syncWorker.GetStatus()
	fields := map[string]interface{}{
		"lastBlock": status.LastBlockProcessed,
		"events":    status.Totals.Events,
		"replayed":  status.Totals.Replayed,
		"failed":    status.Totals.Failed,
	}
	if status.Provider != nil {
		fields["endpoint"] = status.Provider.Endpoint
		fields["failovers"] = status.Provider.Failovers
		fields["rpcHealthy"] = status.Provider.Healthy
	}
	logger.WithFields(fields).Info("Indexer stopped")
	return nil
}

func newChainAdapter(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*adapter.EthereumAdapter, error) {
	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		return nil, fmt.Errorf("create rpc provider: %w", err)
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
		return nil, fmt.Errorf("create chain adapter: %w", err)
	}
	return chainAdapter, nil
}
