package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	domainerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	"arkiv/contexts/market-core/settlement-engine/domain/services"
	"arkiv/contexts/market-core/settlement-engine/ports"
)

const sourceService = "settlement-engine"

// Service implements the marketplace settlement operations. Mutating
// operations are serialized by a single mutex: a purchase either applies
// every effect (ownership move, three payouts, listing flip) or none, and
// no other mutation can observe it half-done.
type Service struct {
	Repo        ports.ListingRepository
	Registry    ports.TokenRegistry
	Ledger      ports.Ledger
	Idempotency ports.IdempotencyStore
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	// Owner receives the marketplace fee and administers fee configuration.
	Owner string
	// Operator is the identity this engine uses when calling the registry;
	// sellers grant it operator approval before their listings can settle.
	Operator       string
	IdempotencyTTL time.Duration
	Logger         *slog.Logger

	mu sync.Mutex
}

// ListItem creates an active listing for a token the actor currently owns.
func (s *Service) ListItem(ctx context.Context, idempotencyKey string, actor string, tokenID int64, price int64) (entities.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return entities.Listing{}, false, domainerrors.ErrNotTokenOwner
	}
	if !entities.ValidPrice(price) {
		return entities.Listing{}, false, domainerrors.ErrInvalidPrice
	}

	now := s.now()
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	requestHash := hashRequest("list", actor, tokenID, price)
	if replayed, found, err := s.replay(ctx, idempotencyKey, requestHash, now); err != nil {
		return entities.Listing{}, false, err
	} else if found {
		return replayed, true, nil
	}

	owner, err := s.Registry.OwnerOf(ctx, tokenID)
	if err != nil {
		return entities.Listing{}, false, err
	}
	if owner != actor {
		return entities.Listing{}, false, domainerrors.ErrNotTokenOwner
	}
	if _, active, err := s.Repo.GetActiveListingByToken(ctx, tokenID); err != nil {
		return entities.Listing{}, false, err
	} else if active {
		return entities.Listing{}, false, domainerrors.ErrAlreadyListed
	}

	listing, err := s.Repo.CreateListing(ctx, entities.Listing{
		TokenID:   tokenID,
		Seller:    actor,
		Price:     price,
		Listed:    true,
		ListedAt:  now,
		UpdatedAt: now,
	})
	if err != nil {
		return entities.Listing{}, false, err
	}

	if err := s.appendEvent(ctx, "item.listed", listing.ItemID, map[string]any{
		"item_id":  listing.ItemID,
		"token_id": listing.TokenID,
		"seller":   listing.Seller,
		"price":    listing.Price,
	}, now); err != nil {
		return entities.Listing{}, false, err
	}
	if err := s.remember(ctx, idempotencyKey, requestHash, listing, now); err != nil {
		return entities.Listing{}, false, err
	}

	ResolveLogger(s.Logger).Info("item listed",
		"event", "item_listed",
		"module", "market-core/settlement-engine",
		"layer", "application",
		"item_id", listing.ItemID,
		"token_id", listing.TokenID,
		"seller", listing.Seller,
		"price", listing.Price,
	)
	return listing, false, nil
}

// DelistItem deactivates a listing. Seller only, active listings only.
func (s *Service) DelistItem(ctx context.Context, actor string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.Repo.GetListing(ctx, itemID)
	if err != nil {
		return err
	}
	if listing.Seller != strings.TrimSpace(actor) {
		return domainerrors.ErrNotItemOwner
	}
	if !listing.Listed {
		return domainerrors.ErrNotListed
	}

	now := s.now()
	if err := s.Repo.DelistListing(ctx, itemID, now); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, "item.delisted", itemID, map[string]any{
		"item_id":  itemID,
		"token_id": listing.TokenID,
		"seller":   listing.Seller,
	}, now); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("item delisted",
		"event", "item_delisted",
		"module", "market-core/settlement-engine",
		"layer", "application",
		"item_id", itemID,
	)
	return nil
}

// UpdateListingPrice changes the asking price of an active listing.
func (s *Service) UpdateListingPrice(ctx context.Context, actor string, itemID int64, newPrice int64) (entities.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !entities.ValidPrice(newPrice) {
		return entities.Listing{}, domainerrors.ErrInvalidPrice
	}
	listing, err := s.Repo.GetListing(ctx, itemID)
	if err != nil {
		return entities.Listing{}, err
	}
	if listing.Seller != strings.TrimSpace(actor) {
		return entities.Listing{}, domainerrors.ErrNotItemOwner
	}
	if !listing.Listed {
		return entities.Listing{}, domainerrors.ErrNotListed
	}

	now := s.now()
	if err := s.Repo.UpdateListingPrice(ctx, itemID, newPrice, now); err != nil {
		return entities.Listing{}, err
	}
	if err := s.appendEvent(ctx, "listing.price_updated", itemID, map[string]any{
		"item_id":   itemID,
		"old_price": listing.Price,
		"new_price": newPrice,
	}, now); err != nil {
		return entities.Listing{}, err
	}

	listing.Price = newPrice
	listing.UpdatedAt = now
	return listing, nil
}

// PurchaseItem settles a listing: exact payment in, ownership to the buyer,
// and the price split between marketplace owner, royalty receiver, and
// seller. Order of effects:
//  1. validate against current registry ownership and the fee/royalty split
//  2. close the listing and persist the purchase event in one transaction,
//     so re-entrant payees already see the sale as final
//  3. move ownership through the registry
//  4. pay out; any failure refunds payouts made so far, rolls the token
//     back to the seller, and reopens the listing.
//
// Payouts run with the engine mutex released. The listing is already closed
// and ownership moved, so a payee calling back into the engine observes the
// sale as final; it must not deadlock against the settlement lock.
func (s *Service) PurchaseItem(ctx context.Context, idempotencyKey string, buyer string, itemID int64, paidValue int64) (entities.Listing, bool, error) {
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		return entities.Listing{}, false, domainerrors.ErrInvalidBuyer
	}

	now := s.now()
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	requestHash := hashRequest("purchase", buyer, itemID, paidValue)

	listing, royaltyReceiver, split, replayed, err := s.settleUnderLock(ctx, idempotencyKey, requestHash, buyer, itemID, paidValue, now)
	if err != nil {
		return entities.Listing{}, false, err
	}
	if replayed {
		return listing, true, nil
	}

	payouts := []payout{
		{s.Owner, split.Fee},
		{royaltyReceiver, split.Royalty},
		{listing.Seller, split.SellerProceeds},
	}
	for i, p := range payouts {
		if p.amount == 0 {
			continue
		}
		if err := s.Ledger.Transfer(ctx, buyer, p.to, p.amount); err != nil {
			s.compensate(ctx, buyer, itemID, listing, payouts[:i], now)
			return entities.Listing{}, false, err
		}
	}

	listing.Listed = false
	listing.Buyer = buyer
	listing.UpdatedAt = now
	// The sale is fully settled at this point; a lost idempotency record
	// only costs replay protection, so it must not fail the purchase.
	if err := s.remember(ctx, idempotencyKey, requestHash, listing, now); err != nil {
		ResolveLogger(s.Logger).Error("idempotency record write failed",
			"event", "purchase_idempotency_write_failed",
			"module", "market-core/settlement-engine",
			"layer", "application",
			"item_id", itemID,
			"idempotency_key", idempotencyKey,
			"error", err.Error(),
		)
	}

	ResolveLogger(s.Logger).Info("item purchased",
		"event", "item_purchased",
		"module", "market-core/settlement-engine",
		"layer", "application",
		"item_id", itemID,
		"token_id", listing.TokenID,
		"seller", listing.Seller,
		"buyer", buyer,
		"price", listing.Price,
		"fee", split.Fee,
		"royalty", split.Royalty,
		"seller_proceeds", split.SellerProceeds,
	)
	return listing, false, nil
}

type payout struct {
	to     string
	amount int64
}

// settleUnderLock validates the purchase and finalizes engine state: listing
// closed with the purchase event, ownership moved to the buyer. Payment has
// not moved yet when it returns.
func (s *Service) settleUnderLock(ctx context.Context, idempotencyKey string, requestHash string, buyer string, itemID int64, paidValue int64, now time.Time) (entities.Listing, string, services.Split, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replayed, found, err := s.replay(ctx, idempotencyKey, requestHash, now); err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	} else if found {
		return replayed, "", services.Split{}, true, nil
	}

	listing, err := s.Repo.GetListing(ctx, itemID)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}
	if !listing.Listed {
		return entities.Listing{}, "", services.Split{}, false, domainerrors.ErrNotListed
	}
	if buyer == listing.Seller {
		return entities.Listing{}, "", services.Split{}, false, domainerrors.ErrInvalidBuyer
	}

	// Ownership may have moved through the registry since listing time.
	owner, err := s.Registry.OwnerOf(ctx, listing.TokenID)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}
	if owner != listing.Seller {
		return entities.Listing{}, "", services.Split{}, false, domainerrors.ErrNotTokenOwner
	}
	if paidValue != listing.Price {
		return entities.Listing{}, "", services.Split{}, false, domainerrors.ErrIncorrectPayment
	}

	feeBps, err := s.Repo.MarketplaceFee(ctx)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}
	royaltyReceiver, royaltyAmount, err := s.Registry.RoyaltyInfo(ctx, listing.TokenID, listing.Price)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}
	split, err := services.ComputeSplit(listing.Price, feeBps, royaltyAmount)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}

	event, err := s.buildEvent(ctx, "item.purchased", itemID, map[string]any{
		"item_id":          itemID,
		"token_id":         listing.TokenID,
		"seller":           listing.Seller,
		"buyer":            buyer,
		"price":            listing.Price,
		"fee":              split.Fee,
		"royalty":          split.Royalty,
		"royalty_receiver": royaltyReceiver,
		"seller_proceeds":  split.SellerProceeds,
	}, now)
	if err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}
	if err := s.Repo.CloseListing(ctx, itemID, buyer, now, event); err != nil {
		return entities.Listing{}, "", services.Split{}, false, err
	}

	if err := s.Registry.TransferToken(ctx, s.Operator, listing.Seller, buyer, listing.TokenID); err != nil {
		s.reopen(ctx, itemID, now, "transfer")
		return entities.Listing{}, "", services.Split{}, false, err
	}

	return listing, royaltyReceiver, split, false, nil
}

// compensate unwinds a purchase whose payouts failed partway: refunds the
// payouts already made, returns the token to the seller, and reactivates
// the listing. Refunds are ledger transfers like the forward payouts, so
// the buyer's receive hook may call back into the engine; they run before
// the settlement lock is re-acquired.
func (s *Service) compensate(ctx context.Context, buyer string, itemID int64, listing entities.Listing, completed []payout, now time.Time) {
	s.refund(ctx, buyer, completed)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Registry.RollbackTransfer(ctx, s.Operator, listing.TokenID, listing.Seller); err != nil {
		ResolveLogger(s.Logger).Error("ownership rollback failed",
			"event", "purchase_rollback_transfer_failed",
			"module", "market-core/settlement-engine",
			"layer", "application",
			"item_id", itemID,
			"token_id", listing.TokenID,
			"error", err.Error(),
		)
	}
	s.reopen(ctx, itemID, now, "payout")
}

// GetItemByID returns a listing regardless of state.
func (s *Service) GetItemByID(ctx context.Context, itemID int64) (entities.Listing, error) {
	return s.Repo.GetListing(ctx, itemID)
}

// ListActiveItems pages through active listings.
func (s *Service) ListActiveItems(ctx context.Context, cursor string, limit int) ([]entities.Listing, string, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Repo.ListActiveListings(ctx, cursor, limit)
}

// MarketplaceFee returns the current fee in basis points.
func (s *Service) MarketplaceFee(ctx context.Context) (int64, error) {
	return s.Repo.MarketplaceFee(ctx)
}

// SetMarketplaceFee updates the fee. Marketplace owner only.
func (s *Service) SetMarketplaceFee(ctx context.Context, actor string, bps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(actor) != s.Owner {
		return domainerrors.ErrNotMarketplaceOwner
	}
	if !entities.ValidFeeBasisPoints(bps) {
		return domainerrors.ErrInvalidFee
	}

	now := s.now()
	if err := s.Repo.SetMarketplaceFee(ctx, bps, now); err != nil {
		return err
	}
	return s.appendEvent(ctx, "marketplace.fee_updated", 0, map[string]any{
		"fee_basis_points": bps,
	}, now)
}

func (s *Service) reopen(ctx context.Context, itemID int64, at time.Time, stage string) {
	if err := s.Repo.ReopenListing(ctx, itemID, at); err != nil {
		ResolveLogger(s.Logger).Error("listing reopen failed",
			"event", "purchase_reopen_failed",
			"module", "market-core/settlement-engine",
			"layer", "application",
			"item_id", itemID,
			"stage", stage,
			"error", err.Error(),
		)
	}
}

func (s *Service) refund(ctx context.Context, buyer string, completed []payout) {
	for _, p := range completed {
		if p.amount == 0 {
			continue
		}
		if err := s.Ledger.Transfer(ctx, p.to, buyer, p.amount); err != nil {
			ResolveLogger(s.Logger).Error("payout refund failed",
				"event", "purchase_refund_failed",
				"module", "market-core/settlement-engine",
				"layer", "application",
				"payee", p.to,
				"amount", p.amount,
				"error", err.Error(),
			)
		}
	}
}

func (s *Service) replay(ctx context.Context, key string, requestHash string, now time.Time) (entities.Listing, bool, error) {
	if key == "" || s.Idempotency == nil {
		return entities.Listing{}, false, nil
	}
	record, found, err := s.Idempotency.Get(ctx, key, now)
	if err != nil {
		return entities.Listing{}, false, err
	}
	if !found {
		return entities.Listing{}, false, nil
	}
	if record.RequestHash != requestHash {
		return entities.Listing{}, false, domainerrors.ErrIdempotencyConflict
	}
	var listing entities.Listing
	if err := json.Unmarshal(record.Payload, &listing); err != nil {
		return entities.Listing{}, false, err
	}
	return listing, true, nil
}

func (s *Service) remember(ctx context.Context, key string, requestHash string, listing entities.Listing, now time.Time) error {
	if key == "" || s.Idempotency == nil {
		return nil
	}
	payload, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return s.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Payload:     payload,
		ExpiresAt:   now.Add(s.idempotencyTTL()),
	})
}

func (s *Service) appendEvent(ctx context.Context, eventType string, itemID int64, payload map[string]any, at time.Time) error {
	if s.Outbox == nil {
		return nil
	}
	event, err := s.buildEvent(ctx, eventType, itemID, payload, at)
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, event)
}

func (s *Service) buildEvent(ctx context.Context, eventType string, itemID int64, payload map[string]any, at time.Time) (ports.EventEnvelope, error) {
	eventID, err := s.newEventID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		OccurredAt:    at.UTC(),
		SourceService: sourceService,
		TraceID:       eventID,
		SchemaVersion: 1,
		PartitionKey:  "item-" + strconv.FormatInt(itemID, 10),
		Data:          data,
	}, nil
}

func (s *Service) newEventID(ctx context.Context) (string, error) {
	if s.IDGen == nil {
		return "", errors.New("id generator is required")
	}
	return s.IDGen.NewID(ctx)
}

func (s *Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func hashRequest(op string, actor string, id int64, amount int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", op, actor, id, amount)))
	return hex.EncodeToString(sum[:])
}
