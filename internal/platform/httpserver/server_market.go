package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	marketerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	markethttp "arkiv/contexts/market-core/settlement-engine/transport/http"
)

func (s *Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireMarketActor(w, r)
	if !ok {
		return
	}
	var req markethttp.ListItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMarketError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, replayed, err := s.market.Handler.ListItemHandler(
		r.Context(),
		r.Header.Get("Idempotency-Key"),
		actor,
		req,
	)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListActiveItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if limitRaw := query.Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeMarketError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}

	resp, err := s.market.Handler.ListActiveItemsHandler(r.Context(), query.Get("cursor"), limit)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	resp, err := s.market.Handler.GetItemHandler(r.Context(), itemID)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePurchaseItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireMarketActor(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	var req markethttp.PurchaseItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMarketError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, _, err := s.market.Handler.PurchaseItemHandler(
		r.Context(),
		r.Header.Get("Idempotency-Key"),
		actor,
		itemID,
		req,
	)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelistItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireMarketActor(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}

	resp, err := s.market.Handler.DelistItemHandler(r.Context(), actor, itemID)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireMarketActor(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	var req markethttp.UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMarketError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.market.Handler.UpdatePriceHandler(r.Context(), actor, itemID, req)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	resp, err := s.market.Handler.GetFeeHandler(r.Context())
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireMarketActor(w, r)
	if !ok {
		return
	}
	var req markethttp.SetFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMarketError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.market.Handler.SetFeeHandler(r.Context(), actor, req)
	if err != nil {
		writeMarketDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireMarketActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get("X-Account-Id")
	if actor == "" {
		writeMarketError(w, http.StatusUnauthorized, "missing_account", "X-Account-Id header is required")
		return "", false
	}
	return actor, true
}

func parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(r.PathValue("item_id"), 10, 64)
	if err != nil {
		writeMarketError(w, http.StatusBadRequest, "invalid_item_id", "item_id must be an integer")
		return 0, false
	}
	return itemID, true
}

func writeMarketDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, marketerrors.ErrItemNotFound),
		errors.Is(err, marketerrors.ErrTokenNotFound):
		writeMarketError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, marketerrors.ErrIncorrectPayment):
		writeMarketError(w, http.StatusPaymentRequired, "incorrect_payment", err.Error())
	case errors.Is(err, marketerrors.ErrFeeExceedsPrice):
		writeMarketError(w, http.StatusUnprocessableEntity, "fee_exceeds_price", err.Error())
	case errors.Is(err, marketerrors.ErrNotListed),
		errors.Is(err, marketerrors.ErrAlreadyListed),
		errors.Is(err, marketerrors.ErrIdempotencyConflict):
		writeMarketError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, marketerrors.ErrNotItemOwner),
		errors.Is(err, marketerrors.ErrNotTokenOwner),
		errors.Is(err, marketerrors.ErrNotMarketplaceOwner):
		writeMarketError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, marketerrors.ErrInvalidPrice),
		errors.Is(err, marketerrors.ErrInvalidBuyer),
		errors.Is(err, marketerrors.ErrInvalidFee):
		writeMarketError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeMarketError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeMarketError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, markethttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
