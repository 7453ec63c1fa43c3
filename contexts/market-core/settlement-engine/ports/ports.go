package ports

import (
	"context"
	"time"

	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	"arkiv/internal/shared/events"
)

// TokenRegistry is the settlement engine's view of the asset registry,
// injected at construction. RollbackTransfer is the privileged revert path
// used when a payout fails after ownership already moved.
type TokenRegistry interface {
	OwnerOf(ctx context.Context, tokenID int64) (string, error)
	RoyaltyInfo(ctx context.Context, tokenID int64, salePrice int64) (string, int64, error)
	TransferToken(ctx context.Context, actor string, from string, to string, tokenID int64) error
	RollbackTransfer(ctx context.Context, actor string, tokenID int64, to string) error
}

// Ledger moves value between accounts. It is an opaque capability: payees
// may run arbitrary logic on receipt, including calls back into this
// engine, so the engine finalizes its own state before paying anyone.
type Ledger interface {
	Transfer(ctx context.Context, from string, to string, amount int64) error
}

// ListingRepository owns listing rows, the fee configuration, and the
// module outbox.
type ListingRepository interface {
	// CreateListing assigns the next sequential item id.
	CreateListing(ctx context.Context, listing entities.Listing) (entities.Listing, error)
	GetListing(ctx context.Context, itemID int64) (entities.Listing, error)
	GetActiveListingByToken(ctx context.Context, tokenID int64) (entities.Listing, bool, error)
	ListActiveListings(ctx context.Context, cursor string, limit int) ([]entities.Listing, string, error)
	// CloseListing flips the listing inactive, records the buyer, and
	// persists the purchase event atomically with the flip.
	CloseListing(ctx context.Context, itemID int64, buyer string, at time.Time, event events.Envelope) error
	// ReopenListing compensates a failed settlement after CloseListing.
	ReopenListing(ctx context.Context, itemID int64, at time.Time) error
	DelistListing(ctx context.Context, itemID int64, at time.Time) error
	UpdateListingPrice(ctx context.Context, itemID int64, price int64, at time.Time) error

	MarketplaceFee(ctx context.Context) (int64, error)
	SetMarketplaceFee(ctx context.Context, bps int64, at time.Time) error
}

// IdempotencyRecord captures dedupe metadata for mutating requests.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Payload     []byte
	ExpiresAt   time.Time
}

// IdempotencyStore abstracts idempotency persistence with TTL handling.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical envelope contract.
type EventEnvelope = events.Envelope

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
