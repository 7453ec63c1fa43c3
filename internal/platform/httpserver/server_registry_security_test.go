package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	tokenregistry "arkiv/contexts/asset-core/token-registry"
	settlementengine "arkiv/contexts/market-core/settlement-engine"
)

func newTestServer() (*Server, tokenregistry.Module, settlementengine.Module) {
	registry := tokenregistry.NewInMemoryModule("arkiv-admin", "arkiv-settlement", false, nil)
	market := settlementengine.NewInMemoryModule(registry.Service, "arkiv-admin", "arkiv-settlement", 250, nil)
	return New(registry, market, nil, ":0"), registry, market
}

func mintViaHTTP(t *testing.T, server *Server, minter string, to string) int64 {
	t.Helper()
	body := []byte(`{"to":"` + to + `","metadata_uri":"ipfs://meta","royalty_receiver":"` + minter + `","royalty_basis_points":500}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", minter)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 mint, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data struct {
			TokenID int64 `json:"token_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}
	return resp.Data.TokenID
}

func TestMintRequiresAccountHeader(t *testing.T) {
	server, _, _ := newTestServer()
	body := []byte(`{"to":"alice","metadata_uri":"ipfs://meta"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMintAndGetTokenFlow(t *testing.T) {
	server, _, _ := newTestServer()
	tokenID := mintViaHTTP(t, server, "alice", "alice")

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens/1", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 get, got %d body=%s", rr.Code, rr.Body.String())
	}
	if tokenID != 1 {
		t.Fatalf("expected first token id 1, got %d", tokenID)
	}
}

func TestTransferRejectsUnauthorizedActor(t *testing.T) {
	server, _, _ := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")

	body := []byte(`{"from":"alice","to":"mallory"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/1/transfer", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "mallory")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetUnknownTokenReturns404(t *testing.T) {
	server, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/tokens/42", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestInvalidTokenIDReturns400(t *testing.T) {
	server, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/tokens/not-a-number", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWhitelistAdministrationRequiresRegistryOwner(t *testing.T) {
	server, _, _ := newTestServer()
	body := []byte(`{"address":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/whitelist", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Id", "alice")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}

	ownerReq := httptest.NewRequest(http.MethodPost, "/v1/whitelist", bytes.NewReader([]byte(`{"address":"alice"}`)))
	ownerReq.Header.Set("Content-Type", "application/json")
	ownerReq.Header.Set("X-Account-Id", "arkiv-admin")
	ownerRR := httptest.NewRecorder()
	server.mux.ServeHTTP(ownerRR, ownerReq)
	if ownerRR.Code != http.StatusOK {
		t.Fatalf("expected 200 owner add, got %d body=%s", ownerRR.Code, ownerRR.Body.String())
	}
}

func TestBurnRequiresOwner(t *testing.T) {
	server, _, _ := newTestServer()
	mintViaHTTP(t, server, "alice", "alice")

	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/1/burn", nil)
	req.Header.Set("X-Account-Id", "mallory")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}
