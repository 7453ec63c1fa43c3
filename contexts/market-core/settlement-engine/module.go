package settlementengine

import (
	"log/slog"
	"time"

	httpadapter "arkiv/contexts/market-core/settlement-engine/adapters/http"
	"arkiv/contexts/market-core/settlement-engine/adapters/memory"
	"arkiv/contexts/market-core/settlement-engine/application"
	"arkiv/contexts/market-core/settlement-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Service *application.Service
	Store   *memory.Store
	Ledger  *memory.Ledger
}

type Dependencies struct {
	Repository     ports.ListingRepository
	Registry       ports.TokenRegistry
	Ledger         ports.Ledger
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	Owner          string
	Operator       string
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := &application.Service{
		Repo:           deps.Repository,
		Registry:       deps.Registry,
		Ledger:         deps.Ledger,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGenerator,
		Owner:          deps.Owner,
		Operator:       deps.Operator,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(registry ports.TokenRegistry, owner string, operator string, feeBasisPoints int64, logger *slog.Logger) Module {
	store := memory.NewStore(feeBasisPoints)
	ledger := memory.NewLedger()
	module := NewModule(Dependencies{
		Repository:  store,
		Registry:    registry,
		Ledger:      ledger,
		Idempotency: store,
		Outbox:      store,
		Clock:       store,
		IDGenerator: store,
		Owner:       owner,
		Operator:    operator,
		Logger:      logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}
