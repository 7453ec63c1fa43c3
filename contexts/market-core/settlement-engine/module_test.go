package settlementengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	settlementengine "arkiv/contexts/market-core/settlement-engine"
	"arkiv/contexts/market-core/settlement-engine/adapters/memory"
	domainerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	"arkiv/contexts/market-core/settlement-engine/ports"
)

const (
	marketOwner = "arkiv-market"
	operator    = "arkiv-settlement"
)

// fakeRegistry is a controllable stand-in for the asset registry port.
type fakeRegistry struct {
	mu          sync.Mutex
	owners      map[int64]string
	receivers   map[int64]string
	royaltyBps  map[int64]int64
	transferErr error
	rollbacks   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		owners:     make(map[int64]string),
		receivers:  make(map[int64]string),
		royaltyBps: make(map[int64]int64),
	}
}

func (f *fakeRegistry) addToken(tokenID int64, owner string, receiver string, bps int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[tokenID] = owner
	f.receivers[tokenID] = receiver
	f.royaltyBps[tokenID] = bps
}

func (f *fakeRegistry) OwnerOf(_ context.Context, tokenID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[tokenID]
	if !ok {
		return "", domainerrors.ErrTokenNotFound
	}
	return owner, nil
}

func (f *fakeRegistry) RoyaltyInfo(_ context.Context, tokenID int64, salePrice int64) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.owners[tokenID]; !ok {
		return "", 0, domainerrors.ErrTokenNotFound
	}
	return f.receivers[tokenID], salePrice * f.royaltyBps[tokenID] / 10000, nil
}

func (f *fakeRegistry) TransferToken(_ context.Context, _ string, from string, to string, tokenID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	if f.owners[tokenID] != from {
		return domainerrors.ErrNotTokenOwner
	}
	f.owners[tokenID] = to
	return nil
}

func (f *fakeRegistry) RollbackTransfer(_ context.Context, _ string, tokenID int64, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[tokenID] = to
	f.rollbacks++
	return nil
}

func newMarket(t *testing.T, registry *fakeRegistry, feeBps int64) settlementengine.Module {
	t.Helper()
	return settlementengine.NewInMemoryModule(registry, marketOwner, operator, feeBps, nil)
}

func listToken(t *testing.T, module settlementengine.Module, seller string, tokenID int64, price int64) int64 {
	t.Helper()
	listing, _, err := module.Service.ListItem(context.Background(), "", seller, tokenID, price)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	return listing.ItemID
}

func TestListItemRequiresTokenOwnership(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "bob", "bob", 0)
	module := newMarket(t, registry, 250)

	_, _, err := module.Service.ListItem(context.Background(), "", "alice", 1, 100)
	if !errors.Is(err, domainerrors.ErrNotTokenOwner) {
		t.Fatalf("expected ownership rejection, got %v", err)
	}
}

func TestListItemValidation(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "alice", "alice", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()

	if _, _, err := module.Service.ListItem(ctx, "", "alice", 1, 0); !errors.Is(err, domainerrors.ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, _, err := module.Service.ListItem(ctx, "", "alice", 99, 100); !errors.Is(err, domainerrors.ErrTokenNotFound) {
		t.Fatalf("expected unknown token, got %v", err)
	}

	listToken(t, module, "alice", 1, 100)
	if _, _, err := module.Service.ListItem(ctx, "", "alice", 1, 200); !errors.Is(err, domainerrors.ErrAlreadyListed) {
		t.Fatalf("expected duplicate listing rejection, got %v", err)
	}
}

func TestDelistItemSellerOnly(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "alice", "alice", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "alice", 1, 100)

	if err := module.Service.DelistItem(ctx, "bob", itemID); !errors.Is(err, domainerrors.ErrNotItemOwner) {
		t.Fatalf("expected non-seller delist rejection, got %v", err)
	}
	if err := module.Service.DelistItem(ctx, "alice", itemID); err != nil {
		t.Fatalf("delist failed: %v", err)
	}
	if err := module.Service.DelistItem(ctx, "alice", itemID); !errors.Is(err, domainerrors.ErrNotListed) {
		t.Fatalf("expected double delist rejection, got %v", err)
	}

	// The token can be listed again after delisting.
	if _, _, err := module.Service.ListItem(ctx, "", "alice", 1, 150); err != nil {
		t.Fatalf("relist failed: %v", err)
	}
}

func TestUpdateListingPrice(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "alice", "alice", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "alice", 1, 100)

	if _, err := module.Service.UpdateListingPrice(ctx, "bob", itemID, 200); !errors.Is(err, domainerrors.ErrNotItemOwner) {
		t.Fatalf("expected non-seller update rejection, got %v", err)
	}
	updated, err := module.Service.UpdateListingPrice(ctx, "alice", itemID, 200)
	if err != nil {
		t.Fatalf("price update failed: %v", err)
	}
	if updated.Price != 200 {
		t.Fatalf("expected price 200, got %d", updated.Price)
	}

	if err := module.Service.DelistItem(ctx, "alice", itemID); err != nil {
		t.Fatalf("delist failed: %v", err)
	}
	if _, err := module.Service.UpdateListingPrice(ctx, "alice", itemID, 300); !errors.Is(err, domainerrors.ErrNotListed) {
		t.Fatalf("expected inactive update rejection, got %v", err)
	}
}

func TestPurchaseSplitsPaymentAcrossPayees(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(7, "seller", "creator", 500)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 7, 10_000)

	module.Ledger.Credit("buyer", 10_000)
	listing, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 10_000)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if listing.Listed || listing.Buyer != "buyer" {
		t.Fatalf("expected closed listing with buyer, got %+v", listing)
	}

	if got, _ := registry.OwnerOf(ctx, 7); got != "buyer" {
		t.Fatalf("expected buyer ownership, got %q", got)
	}
	if got := module.Ledger.Balance("buyer"); got != 0 {
		t.Fatalf("expected buyer drained, got %d", got)
	}
	if got := module.Ledger.Balance(marketOwner); got != 250 {
		t.Fatalf("expected marketplace fee 250, got %d", got)
	}
	if got := module.Ledger.Balance("creator"); got != 500 {
		t.Fatalf("expected royalty 500, got %d", got)
	}
	if got := module.Ledger.Balance("seller"); got != 9_250 {
		t.Fatalf("expected seller proceeds 9250, got %d", got)
	}
}

func TestPurchaseRequiresExactPayment(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 1, 1_000)
	module.Ledger.Credit("buyer", 5_000)

	for _, paid := range []int64{999, 1_001, 0} {
		_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, paid)
		if !errors.Is(err, domainerrors.ErrIncorrectPayment) {
			t.Fatalf("paid %d: expected incorrect payment, got %v", paid, err)
		}
	}

	item, err := module.Service.GetItemByID(ctx, itemID)
	if err != nil || !item.Listed {
		t.Fatalf("expected listing still active, got %+v err=%v", item, err)
	}
	if got := module.Ledger.Balance("buyer"); got != 5_000 {
		t.Fatalf("expected buyer balance untouched, got %d", got)
	}
}

func TestPurchaseRejectsSellerAsBuyer(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	itemID := listToken(t, module, "seller", 1, 100)

	_, _, err := module.Service.PurchaseItem(context.Background(), "", "seller", itemID, 100)
	if !errors.Is(err, domainerrors.ErrInvalidBuyer) {
		t.Fatalf("expected self purchase rejection, got %v", err)
	}
}

func TestPurchaseFailsWhenOwnershipMovedSinceListing(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 1, 100)

	// The token moved outside the marketplace after listing.
	registry.addToken(1, "other", "seller", 0)
	module.Ledger.Credit("buyer", 100)

	_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 100)
	if !errors.Is(err, domainerrors.ErrNotTokenOwner) {
		t.Fatalf("expected stale listing rejection, got %v", err)
	}
	if got := module.Ledger.Balance("buyer"); got != 100 {
		t.Fatalf("expected buyer balance untouched, got %d", got)
	}
}

func TestPurchaseRejectsFeeAndRoyaltyAbovePrice(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "creator", 9_900)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 1, 100)
	module.Ledger.Credit("buyer", 100)

	_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 100)
	if !errors.Is(err, domainerrors.ErrFeeExceedsPrice) {
		t.Fatalf("expected fee exceeds price, got %v", err)
	}

	item, _ := module.Service.GetItemByID(ctx, itemID)
	if !item.Listed {
		t.Fatalf("expected listing untouched after rejected split")
	}
	if got, _ := registry.OwnerOf(ctx, 1); got != "seller" {
		t.Fatalf("expected ownership untouched, got %q", got)
	}
}

func TestPurchaseRollsBackWhenPayoutFails(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(7, "seller", "creator", 500)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 7, 10_000)

	// Enough for the fee and royalty payouts but not the seller proceeds.
	module.Ledger.Credit("buyer", 750)

	_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 10_000)
	if !errors.Is(err, memory.ErrInsufficientFunds) {
		t.Fatalf("expected payout failure to surface, got %v", err)
	}

	if got, _ := registry.OwnerOf(ctx, 7); got != "seller" {
		t.Fatalf("expected ownership rolled back to seller, got %q", got)
	}
	if registry.rollbacks != 1 {
		t.Fatalf("expected exactly one rollback, got %d", registry.rollbacks)
	}
	if got := module.Ledger.Balance("buyer"); got != 750 {
		t.Fatalf("expected buyer refunded to 750, got %d", got)
	}
	if module.Ledger.Balance(marketOwner) != 0 || module.Ledger.Balance("creator") != 0 || module.Ledger.Balance("seller") != 0 {
		t.Fatalf("expected payees refunded, got owner=%d creator=%d seller=%d",
			module.Ledger.Balance(marketOwner), module.Ledger.Balance("creator"), module.Ledger.Balance("seller"))
	}

	item, _ := module.Service.GetItemByID(ctx, itemID)
	if !item.Listed || item.Buyer != "" {
		t.Fatalf("expected listing reactivated, got %+v", item)
	}
}

func TestPurchaseRollbackRefundHookDoesNotBlock(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(9, "seller", "creator", 500)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 9, 10_000)

	// Enough for the fee and royalty payouts but not the seller proceeds,
	// so both refunds fire the buyer's receive hook mid-compensation.
	module.Ledger.Credit("buyer", 750)

	var hookErr error
	hookCalls := 0
	module.Ledger.SetReceiveHook("buyer", func(hookCtx context.Context, _ string, _ int64) error {
		hookCalls++
		if hookCalls == 1 {
			_, _, hookErr = module.Service.PurchaseItem(hookCtx, "", "buyer", itemID, 10_000)
		}
		return nil
	})

	_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 10_000)
	if !errors.Is(err, memory.ErrInsufficientFunds) {
		t.Fatalf("expected payout failure to surface, got %v", err)
	}
	if hookCalls == 0 {
		t.Fatalf("expected the refund to fire the buyer hook")
	}
	if !errors.Is(hookErr, domainerrors.ErrNotListed) {
		t.Fatalf("expected reentrant purchase during refund to see closed listing, got %v", hookErr)
	}

	if got, _ := registry.OwnerOf(ctx, 9); got != "seller" {
		t.Fatalf("expected ownership rolled back to seller, got %q", got)
	}
	if got := module.Ledger.Balance("buyer"); got != 750 {
		t.Fatalf("expected buyer refunded to 750, got %d", got)
	}
	item, _ := module.Service.GetItemByID(ctx, itemID)
	if !item.Listed || item.Buyer != "" {
		t.Fatalf("expected listing reactivated, got %+v", item)
	}
}

func TestPurchaseRollsBackWhenTransferFails(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 1, 100)
	module.Ledger.Credit("buyer", 100)

	transferErr := errors.New("registry unavailable")
	registry.transferErr = transferErr

	_, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 100)
	if !errors.Is(err, transferErr) {
		t.Fatalf("expected transfer failure to surface, got %v", err)
	}
	item, _ := module.Service.GetItemByID(ctx, itemID)
	if !item.Listed {
		t.Fatalf("expected listing reactivated after transfer failure")
	}
	if got := module.Ledger.Balance("buyer"); got != 100 {
		t.Fatalf("expected no payment taken, got buyer balance %d", got)
	}
}

func TestPurchaseReentrantPayeeObservesFinalSale(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(7, "seller", "creator", 500)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 7, 10_000)
	module.Ledger.Credit("buyer", 10_000)
	module.Ledger.Credit("creator", 10_000)

	var reentrantErr error
	module.Ledger.SetReceiveHook("creator", func(hookCtx context.Context, _ string, _ int64) error {
		// A payee trying to buy the same item mid-settlement must see the
		// sale as already final.
		_, _, reentrantErr = module.Service.PurchaseItem(hookCtx, "", "creator", itemID, 10_000)
		return nil
	})

	if _, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 10_000); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if !errors.Is(reentrantErr, domainerrors.ErrNotListed) {
		t.Fatalf("expected reentrant purchase to see closed listing, got %v", reentrantErr)
	}
	if got, _ := registry.OwnerOf(ctx, 7); got != "buyer" {
		t.Fatalf("expected buyer ownership despite reentrancy, got %q", got)
	}
}

func TestPurchaseReentrantDelistIsHarmless(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(8, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 8, 1_000)
	module.Ledger.Credit("buyer", 1_000)

	var delistErr error
	module.Ledger.SetReceiveHook("seller", func(hookCtx context.Context, _ string, _ int64) error {
		delistErr = module.Service.DelistItem(hookCtx, "seller", itemID)
		return nil
	})

	if _, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 1_000); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if !errors.Is(delistErr, domainerrors.ErrNotListed) {
		t.Fatalf("expected reentrant delist to see closed listing, got %v", delistErr)
	}
	if got, _ := registry.OwnerOf(ctx, 8); got != "buyer" {
		t.Fatalf("expected buyer ownership, got %q", got)
	}
	listing, err := module.Service.GetItemByID(ctx, itemID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Listed || listing.Buyer != "buyer" {
		t.Fatalf("expected settled listing, got listed=%v buyer=%q", listing.Listed, listing.Buyer)
	}
}

type failingIdempotencyStore struct{ err error }

func (f failingIdempotencyStore) Get(context.Context, string, time.Time) (ports.IdempotencyRecord, bool, error) {
	return ports.IdempotencyRecord{}, false, nil
}

func (f failingIdempotencyStore) Put(context.Context, ports.IdempotencyRecord) error {
	return f.err
}

func TestPurchaseSurvivesIdempotencyWriteFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(3, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	module.Service.Idempotency = failingIdempotencyStore{err: errors.New("idempotency store down")}
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 3, 1_000)
	module.Ledger.Credit("buyer", 1_000)

	// Every payout has landed by the time the record is written; losing it
	// must not turn a settled sale into an error.
	listing, replayed, err := module.Service.PurchaseItem(ctx, "idem-lost", "buyer", itemID, 1_000)
	if err != nil || replayed {
		t.Fatalf("expected settled purchase despite record failure, got err=%v replayed=%v", err, replayed)
	}
	if listing.Buyer != "buyer" || listing.Listed {
		t.Fatalf("unexpected listing state: %+v", listing)
	}
	if got, _ := registry.OwnerOf(ctx, 3); got != "buyer" {
		t.Fatalf("expected buyer ownership, got %q", got)
	}
	if module.Ledger.Balance("seller") != 975 || module.Ledger.Balance(marketOwner) != 25 {
		t.Fatalf("expected payouts kept, got seller=%d owner=%d",
			module.Ledger.Balance("seller"), module.Ledger.Balance(marketOwner))
	}
}

func TestPurchaseIdempotentReplay(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	itemID := listToken(t, module, "seller", 1, 1_000)
	module.Ledger.Credit("buyer", 2_000)

	first, replayed, err := module.Service.PurchaseItem(ctx, "idem-1", "buyer", itemID, 1_000)
	if err != nil || replayed {
		t.Fatalf("first purchase failed: %v replayed=%v", err, replayed)
	}
	second, replayed, err := module.Service.PurchaseItem(ctx, "idem-1", "buyer", itemID, 1_000)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replayed {
		t.Fatalf("expected replay flag on second call")
	}
	if first.ItemID != second.ItemID || first.Buyer != second.Buyer {
		t.Fatalf("expected identical replayed listing, got %+v vs %+v", first, second)
	}
	if got := module.Ledger.Balance("buyer"); got != 1_000 {
		t.Fatalf("expected single payment, buyer balance %d", got)
	}

	_, _, err = module.Service.PurchaseItem(ctx, "idem-1", "buyer", itemID, 999)
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict on changed request, got %v", err)
	}
}

func TestSetMarketplaceFeeOwnerOnly(t *testing.T) {
	registry := newFakeRegistry()
	registry.addToken(1, "seller", "seller", 0)
	module := newMarket(t, registry, 250)
	ctx := context.Background()

	if err := module.Service.SetMarketplaceFee(ctx, "seller", 100); !errors.Is(err, domainerrors.ErrNotMarketplaceOwner) {
		t.Fatalf("expected non-owner fee change rejection, got %v", err)
	}
	if err := module.Service.SetMarketplaceFee(ctx, marketOwner, 10_001); !errors.Is(err, domainerrors.ErrInvalidFee) {
		t.Fatalf("expected out-of-range fee rejection, got %v", err)
	}
	if err := module.Service.SetMarketplaceFee(ctx, marketOwner, 1_000); err != nil {
		t.Fatalf("fee update failed: %v", err)
	}

	itemID := listToken(t, module, "seller", 1, 1_000)
	module.Ledger.Credit("buyer", 1_000)
	if _, _, err := module.Service.PurchaseItem(ctx, "", "buyer", itemID, 1_000); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if got := module.Ledger.Balance(marketOwner); got != 100 {
		t.Fatalf("expected updated fee applied, owner balance %d", got)
	}
}

func TestListActiveItemsPagination(t *testing.T) {
	registry := newFakeRegistry()
	module := newMarket(t, registry, 250)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		registry.addToken(i, "seller", "seller", 0)
		listToken(t, module, "seller", i, i*100)
	}

	page, cursor, err := module.Service.ListActiveItems(ctx, "", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 || cursor == "" {
		t.Fatalf("expected first page of 2 with cursor, got %d %q", len(page), cursor)
	}

	var seen []int64
	for _, item := range page {
		seen = append(seen, item.ItemID)
	}
	for cursor != "" {
		page, cursor, err = module.Service.ListActiveItems(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		for _, item := range page {
			seen = append(seen, item.ItemID)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 listings across pages, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected ascending item ids, got %v", seen)
		}
	}
}
