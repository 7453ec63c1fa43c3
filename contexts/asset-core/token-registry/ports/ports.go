package ports

import (
	"context"
	"time"

	"arkiv/contexts/asset-core/token-registry/domain/entities"
	"arkiv/internal/shared/events"
)

// Repository owns token rows, approvals, the whitelist, and the module
// outbox. Mutations must be serialized by the adapter, and every token
// mutation persists its outbox event atomically with the row: the pair
// applies fully or not at all.
type Repository interface {
	// CreateToken assigns the next sequential token id and persists the row
	// together with its outbox event. The event callback runs after the id
	// is assigned so the envelope can carry it; a callback error aborts the
	// write and releases nothing.
	CreateToken(ctx context.Context, token entities.Token, event func(entities.Token) (EventEnvelope, error)) (entities.Token, error)
	// GetToken fails with ErrTokenNotFound for unknown and burned ids alike.
	GetToken(ctx context.Context, tokenID int64) (entities.Token, error)
	// TransferOwnership moves the token to `to` and clears the per-token
	// approval. Operator approvals are untouched.
	TransferOwnership(ctx context.Context, tokenID int64, from string, to string, at time.Time, event EventEnvelope) error
	// BurnToken retires the id permanently; the row stays so the id is never
	// reassigned, but every query on it fails afterwards.
	BurnToken(ctx context.Context, tokenID int64, at time.Time, event EventEnvelope) error
	UpdateTokenURI(ctx context.Context, tokenID int64, uri string, at time.Time, event EventEnvelope) error
	BalanceOf(ctx context.Context, owner string) (int, error)

	SetTokenApproval(ctx context.Context, tokenID int64, approved string, at time.Time) error
	GetTokenApproval(ctx context.Context, tokenID int64) (string, error)
	SetOperatorApproval(ctx context.Context, owner string, operator string, approved bool) error
	IsOperatorApproved(ctx context.Context, owner string, operator string) (bool, error)

	AddToWhitelist(ctx context.Context, address string) error
	RemoveFromWhitelist(ctx context.Context, address string) error
	IsWhitelisted(ctx context.Context, address string) (bool, error)
}

// Clock allows deterministic timestamps in tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event identifiers. Token ids are not drawn from
// here; they are sequential and owned by the repository.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical envelope contract.
type EventEnvelope = events.Envelope

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
