package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func listViaHTTP(t *testing.T, server *Server, seller string, tokenID int64, price int64) int64 {
	t.Helper()
	payload, _ := json.Marshal(map[string]int64{"token_id": tokenID, "price": price})
	req := httptest.NewRequest(http.MethodPost, "/v1/market/items", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", seller)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 list, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data struct {
			ItemID int64 `json:"item_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	return resp.Data.ItemID
}

func TestListItemRequiresAccountHeader(t *testing.T) {
	server, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/market/items", bytes.NewReader([]byte(`{"token_id":1,"price":100}`)))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPurchaseWrongPaymentReturns402(t *testing.T) {
	server, _, market := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")
	itemID := listViaHTTP(t, server, "alice", 1, 1_000)
	market.Ledger.Credit("bob", 1_000)

	req := httptest.NewRequest(http.MethodPost, "/v1/market/items/1/purchase", bytes.NewReader([]byte(`{"paid_value":999}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "bob")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d body=%s", rr.Code, rr.Body.String())
	}
	if itemID != 1 {
		t.Fatalf("expected first item id 1, got %d", itemID)
	}
}

func TestPurchaseFlowEndToEnd(t *testing.T) {
	server, _, market := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")
	listViaHTTP(t, server, "alice", 1, 1_000)

	// The seller authorizes the settlement operator before the sale.
	opBody := []byte(`{"operator":"arkiv-settlement","approved":true}`)
	opReq := httptest.NewRequest(http.MethodPost, "/v1/operators", bytes.NewReader(opBody))
	opReq.Header.Set("Content-Type", "application/json")
	opReq.Header.Set("X-Account-Id", "alice")
	opRR := httptest.NewRecorder()
	server.mux.ServeHTTP(opRR, opReq)
	if opRR.Code != http.StatusOK {
		t.Fatalf("expected 200 operator approval, got %d body=%s", opRR.Code, opRR.Body.String())
	}

	market.Ledger.Credit("bob", 1_000)
	req := httptest.NewRequest(http.MethodPost, "/v1/market/items/1/purchase", bytes.NewReader([]byte(`{"paid_value":1000}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "bob")
	req.Header.Set("Idempotency-Key", "idem-purchase-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 purchase, got %d body=%s", rr.Code, rr.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/tokens/1", nil)
	getRR := httptest.NewRecorder()
	server.mux.ServeHTTP(getRR, getReq)
	var tokenResp struct {
		Data struct {
			Owner string `json:"owner"`
		} `json:"data"`
	}
	if err := json.Unmarshal(getRR.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tokenResp.Data.Owner != "bob" {
		t.Fatalf("expected bob to own the token, got %q", tokenResp.Data.Owner)
	}
}

func TestPurchaseWithoutOperatorApprovalRollsBack(t *testing.T) {
	server, _, market := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")
	listViaHTTP(t, server, "alice", 1, 1_000)
	market.Ledger.Credit("bob", 1_000)

	req := httptest.NewRequest(http.MethodPost, "/v1/market/items/1/purchase", bytes.NewReader([]byte(`{"paid_value":1000}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "bob")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code == http.StatusOK {
		t.Fatalf("expected purchase without operator approval to fail, got 200")
	}

	itemReq := httptest.NewRequest(http.MethodGet, "/v1/market/items/1", nil)
	itemRR := httptest.NewRecorder()
	server.mux.ServeHTTP(itemRR, itemReq)
	var itemResp struct {
		Data struct {
			Listed bool `json:"listed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(itemRR.Body.Bytes(), &itemResp); err != nil {
		t.Fatalf("decode item response: %v", err)
	}
	if !itemResp.Data.Listed {
		t.Fatalf("expected listing reactivated after failed settlement")
	}
}

func TestDelistRequiresSeller(t *testing.T) {
	server, _, _ := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")
	listViaHTTP(t, server, "alice", 1, 1_000)

	req := httptest.NewRequest(http.MethodPost, "/v1/market/items/1/delist", nil)
	req.Header.Set("X-Account-Id", "mallory")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSetFeeRequiresMarketplaceOwner(t *testing.T) {
	server, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPut, "/v1/market/fee", bytes.NewReader([]byte(`{"fee_basis_points":1000}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "mallory")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}
