package tokenregistry

import (
	"log/slog"

	httpadapter "arkiv/contexts/asset-core/token-registry/adapters/http"
	"arkiv/contexts/asset-core/token-registry/adapters/memory"
	"arkiv/contexts/asset-core/token-registry/application"
	"arkiv/contexts/asset-core/token-registry/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Repository         ports.Repository
	Clock              ports.Clock
	IDGenerator        ports.IDGenerator
	Owner              string
	SettlementOperator string
	WhitelistEnabled   bool
	Logger             *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Repo:               deps.Repository,
		Clock:              deps.Clock,
		IDGen:              deps.IDGenerator,
		Owner:              deps.Owner,
		SettlementOperator: deps.SettlementOperator,
		WhitelistEnabled:   deps.WhitelistEnabled,
		Logger:             deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(owner string, settlementOperator string, whitelistEnabled bool, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:         store,
		Clock:              store,
		IDGenerator:        store,
		Owner:              owner,
		SettlementOperator: settlementOperator,
		WhitelistEnabled:   whitelistEnabled,
		Logger:             logger,
	})
	module.Store = store
	return module
}
