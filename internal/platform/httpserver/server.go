package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	tokenregistry "arkiv/contexts/asset-core/token-registry"
	settlementengine "arkiv/contexts/market-core/settlement-engine"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "arkiv/internal/platform/httpserver/docs"
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	registry tokenregistry.Module
	market   settlementengine.Module
}

func New(
	registry tokenregistry.Module,
	market settlementengine.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		registry: registry,
		market:   market,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/tokens", s.handleMintToken)
	s.mux.HandleFunc("GET /v1/tokens/{token_id}", s.handleGetToken)
	s.mux.HandleFunc("POST /v1/tokens/{token_id}/transfer", s.handleTransferToken)
	s.mux.HandleFunc("POST /v1/tokens/{token_id}/burn", s.handleBurnToken)
	s.mux.HandleFunc("PUT /v1/tokens/{token_id}/metadata", s.handleUpdateMetadata)
	s.mux.HandleFunc("GET /v1/tokens/{token_id}/royalty", s.handleRoyaltyInfo)
	s.mux.HandleFunc("POST /v1/tokens/{token_id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /v1/operators", s.handleSetOperatorApproval)
	s.mux.HandleFunc("GET /v1/accounts/{address}/balance", s.handleBalance)
	s.mux.HandleFunc("POST /v1/whitelist", s.handleAddToWhitelist)
	s.mux.HandleFunc("DELETE /v1/whitelist/{address}", s.handleRemoveFromWhitelist)

	s.mux.HandleFunc("POST /v1/market/items", s.handleListItem)
	s.mux.HandleFunc("GET /v1/market/items", s.handleListActiveItems)
	s.mux.HandleFunc("GET /v1/market/items/{item_id}", s.handleGetItem)
	s.mux.HandleFunc("POST /v1/market/items/{item_id}/purchase", s.handlePurchaseItem)
	s.mux.HandleFunc("POST /v1/market/items/{item_id}/delist", s.handleDelistItem)
	s.mux.HandleFunc("PUT /v1/market/items/{item_id}/price", s.handleUpdatePrice)
	s.mux.HandleFunc("GET /v1/market/fee", s.handleGetFee)
	s.mux.HandleFunc("PUT /v1/market/fee", s.handleSetFee)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
