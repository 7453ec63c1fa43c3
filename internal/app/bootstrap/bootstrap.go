package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tokenregistry "arkiv/contexts/asset-core/token-registry"
	registrypostgres "arkiv/contexts/asset-core/token-registry/adapters/postgres"
	registryworkers "arkiv/contexts/asset-core/token-registry/application/workers"
	settlementengine "arkiv/contexts/market-core/settlement-engine"
	marketmemory "arkiv/contexts/market-core/settlement-engine/adapters/memory"
	marketpostgres "arkiv/contexts/market-core/settlement-engine/adapters/postgres"
	marketworkers "arkiv/contexts/market-core/settlement-engine/application/workers"
	"arkiv/internal/platform/config"
	"arkiv/internal/platform/db"
	"arkiv/internal/platform/httpserver"
	"arkiv/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	registryRelay registryworkers.OutboxRelay
	marketRelay   marketworkers.OutboxRelay
	pollInterval  time.Duration
	logger        *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	registryRepo := registrypostgres.NewRepository(pg.DB, logger)
	registryModule := tokenregistry.NewModule(tokenregistry.Dependencies{
		Repository:         registryRepo,
		Clock:              registrypostgres.SystemClock{},
		IDGenerator:        registrypostgres.UUIDGenerator{},
		Owner:              cfg.RegistryOwner,
		SettlementOperator: cfg.SettlementOperator,
		WhitelistEnabled:   cfg.RegistryWhitelistEnabled,
		Logger:             logger,
	})

	marketRepo := marketpostgres.NewRepository(pg.DB, logger)
	// Value settlement runs on an in-process ledger while external payment
	// rails are wired up.
	ledger := marketmemory.NewLedger()
	marketModule := settlementengine.NewModule(settlementengine.Dependencies{
		Repository:     marketRepo,
		Registry:       RegistryGateway{Registry: registryModule.Service},
		Ledger:         ledger,
		Idempotency:    marketRepo,
		Outbox:         marketRepo,
		Clock:          marketpostgres.SystemClock{},
		IDGenerator:    marketpostgres.UUIDGenerator{},
		Owner:          cfg.MarketplaceOwner,
		Operator:       cfg.SettlementOperator,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	if err := marketRepo.SetMarketplaceFee(context.Background(), cfg.MarketplaceFeeBps, time.Now().UTC()); err != nil {
		return nil, err
	}

	server := httpserver.New(registryModule, marketModule, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	registryRepo := registrypostgres.NewRepository(pg.DB, logger)
	marketRepo := marketpostgres.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		registryRelay: registryworkers.OutboxRelay{
			Outbox:    registryRepo,
			Publisher: kafka,
			Clock:     registrypostgres.SystemClock{},
			Topic:     "asset.events",
			BatchSize: 100,
			Logger:    logger,
		},
		marketRelay: marketworkers.OutboxRelay{
			Outbox:    marketRepo,
			Publisher: kafka,
			Clock:     marketpostgres.SystemClock{},
			Topic:     "market.events",
			BatchSize: 100,
			Logger:    logger,
		},
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.registryRelay.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.marketRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
