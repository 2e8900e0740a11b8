package main

import (
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/ledger"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/worker"
)

// backend groups the stores the indexer writes through
type backend struct {
	ledger      ledger.Store
	progress    worker.ProgressStore
	tokens      worker.TokenLister
	lookup      service.TokenGetter
	purchases   service.PurchaseWriter
	fundraising service.FundraisingWriter
	close       func()
}

func memoryBackend() *backend {
	store := storage.NewMemoryStore()
	return &backend{
		ledger:      store,
		progress:    store,
		tokens:      store,
		lookup:      store,
		purchases:   store,
		fundraising: store,
		close:       func() {},
	}
}

func postgresBackend(cfg *config.Config, logger *logging.Logger) (*backend, error) {
	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to Postgres")

	queries := storage.NewQueryRepository(db)
	activity := storage.NewActivityRepository(db)
	return &backend{
		ledger:      storage.NewPostgresLedgerStore(db),
		progress:    storage.NewProgressRepository(db),
		tokens:      queries,
		lookup:      queries,
		purchases:   activity,
		fundraising: activity,
		close:       db.Close,
	}, nil
}

func openBackend(cfg *config.Config, logger *logging.Logger) (*backend, error) {
	if cfg.Ledger.StoreBackend == config.StoreBackendMemory {
		logger.Warn("Using in-memory ledger store, state is lost on exit")
		return memoryBackend(), nil
	}
	return postgresBackend(cfg, logger)
}
