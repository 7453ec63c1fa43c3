package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	registryerrors "arkiv/contexts/asset-core/token-registry/domain/errors"
	registryhttp "arkiv/contexts/asset-core/token-registry/transport/http"
)

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req registryhttp.MintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.MintTokenHandler(r.Context(), actor, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	resp, err := s.registry.Handler.GetTokenHandler(r.Context(), tokenID)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransferToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req registryhttp.TransferTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.TransferTokenHandler(r.Context(), actor, tokenID, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBurnToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}

	resp, err := s.registry.Handler.BurnTokenHandler(r.Context(), actor, tokenID)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req registryhttp.UpdateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.UpdateMetadataHandler(r.Context(), actor, tokenID, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoyaltyInfo(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	salePrice, err := strconv.ParseInt(r.URL.Query().Get("sale_price"), 10, 64)
	if err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_sale_price", "sale_price must be an integer")
		return
	}

	resp, err := s.registry.Handler.RoyaltyInfoHandler(r.Context(), tokenID, salePrice)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req registryhttp.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.ApproveHandler(r.Context(), actor, tokenID, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetOperatorApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req registryhttp.OperatorApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.SetOperatorApprovalHandler(r.Context(), actor, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	resp, err := s.registry.Handler.BalanceHandler(r.Context(), address)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddToWhitelist(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req registryhttp.WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.registry.Handler.AddToWhitelistHandler(r.Context(), actor, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	address := r.PathValue("address")

	resp, err := s.registry.Handler.RemoveFromWhitelistHandler(r.Context(), actor, address)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get("X-Account-Id"))
	if actor == "" {
		writeRegistryError(w, http.StatusUnauthorized, "missing_account", "X-Account-Id header is required")
		return "", false
	}
	return actor, true
}

func parseTokenID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tokenID, err := strconv.ParseInt(r.PathValue("token_id"), 10, 64)
	if err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_token_id", "token_id must be an integer")
		return 0, false
	}
	return tokenID, true
}

func writeRegistryDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registryerrors.ErrTokenNotFound):
		writeRegistryError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, registryerrors.ErrZeroAddress),
		errors.Is(err, registryerrors.ErrInvalidRoyalty),
		errors.Is(err, registryerrors.ErrInvalidMetadataURI),
		errors.Is(err, registryerrors.ErrSelfApproval):
		writeRegistryError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, registryerrors.ErrNotTokenOwner),
		errors.Is(err, registryerrors.ErrNotCreator),
		errors.Is(err, registryerrors.ErrNotApproved),
		errors.Is(err, registryerrors.ErrNotWhitelisted),
		errors.Is(err, registryerrors.ErrNotRegistryOwner),
		errors.Is(err, registryerrors.ErrNotSettlementOperator):
		writeRegistryError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeRegistryError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeRegistryError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, registryhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
