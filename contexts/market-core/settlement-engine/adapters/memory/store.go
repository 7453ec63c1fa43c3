package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	domainerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	"arkiv/contexts/market-core/settlement-engine/ports"
)

// Store is the in-memory listing repository used by tests and local runs.
type Store struct {
	mu sync.RWMutex

	listingsByID      map[int64]entities.Listing
	activeByToken     map[int64]int64
	nextItemID        int64
	feeBasisPoints    int64
	idempotencyByKey  map[string]ports.IdempotencyRecord
	outbox            []outboxRow
	sentOutboxByID    map[string]time.Time
	outboxIDGenerator func() string
}

type outboxRow struct {
	message ports.OutboxMessage
	sent    bool
}

func NewStore(feeBasisPoints int64) *Store {
	return &Store{
		listingsByID:      make(map[int64]entities.Listing),
		activeByToken:     make(map[int64]int64),
		nextItemID:        1,
		feeBasisPoints:    feeBasisPoints,
		idempotencyByKey:  make(map[string]ports.IdempotencyRecord),
		sentOutboxByID:    make(map[string]time.Time),
		outboxIDGenerator: uuid.NewString,
	}
}

func (s *Store) CreateListing(_ context.Context, listing entities.Listing) (entities.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.activeByToken[listing.TokenID]; taken {
		return entities.Listing{}, domainerrors.ErrAlreadyListed
	}

	listing.ItemID = s.nextItemID
	s.nextItemID++
	listing.Listed = true
	s.listingsByID[listing.ItemID] = listing
	s.activeByToken[listing.TokenID] = listing.ItemID
	return listing, nil
}

func (s *Store) GetListing(_ context.Context, itemID int64) (entities.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listingsByID[itemID]
	if !ok {
		return entities.Listing{}, domainerrors.ErrItemNotFound
	}
	return listing, nil
}

func (s *Store) GetActiveListingByToken(_ context.Context, tokenID int64) (entities.Listing, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	itemID, ok := s.activeByToken[tokenID]
	if !ok {
		return entities.Listing{}, false, nil
	}
	return s.listingsByID[itemID], true, nil
}

func (s *Store) ListActiveListings(_ context.Context, cursor string, limit int) ([]entities.Listing, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var after int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", domainerrors.ErrItemNotFound
		}
		after = parsed
	}

	ids := make([]int64, 0, len(s.activeByToken))
	for _, itemID := range s.activeByToken {
		if itemID > after {
			ids = append(ids, itemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	page := make([]entities.Listing, 0, limit)
	for _, id := range ids {
		if len(page) == limit {
			break
		}
		page = append(page, s.listingsByID[id])
	}

	next := ""
	if len(page) == limit && len(ids) > limit {
		next = strconv.FormatInt(page[len(page)-1].ItemID, 10)
	}
	return page, next, nil
}

func (s *Store) CloseListing(_ context.Context, itemID int64, buyer string, at time.Time, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listingsByID[itemID]
	if !ok {
		return domainerrors.ErrItemNotFound
	}
	if !listing.Listed {
		return domainerrors.ErrNotListed
	}

	listing.Listed = false
	listing.Buyer = buyer
	listing.UpdatedAt = at
	s.listingsByID[itemID] = listing
	delete(s.activeByToken, listing.TokenID)
	return s.appendOutboxLocked(event)
}

func (s *Store) ReopenListing(_ context.Context, itemID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listingsByID[itemID]
	if !ok {
		return domainerrors.ErrItemNotFound
	}
	if listing.Listed {
		return nil
	}
	if existing, taken := s.activeByToken[listing.TokenID]; taken && existing != itemID {
		return domainerrors.ErrAlreadyListed
	}

	listing.Listed = true
	listing.Buyer = ""
	listing.UpdatedAt = at
	s.listingsByID[itemID] = listing
	s.activeByToken[listing.TokenID] = itemID
	return nil
}

func (s *Store) DelistListing(_ context.Context, itemID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listingsByID[itemID]
	if !ok {
		return domainerrors.ErrItemNotFound
	}
	if !listing.Listed {
		return domainerrors.ErrNotListed
	}

	listing.Listed = false
	listing.UpdatedAt = at
	s.listingsByID[itemID] = listing
	delete(s.activeByToken, listing.TokenID)
	return nil
}

func (s *Store) UpdateListingPrice(_ context.Context, itemID int64, price int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listingsByID[itemID]
	if !ok {
		return domainerrors.ErrItemNotFound
	}
	if !listing.Listed {
		return domainerrors.ErrNotListed
	}

	listing.Price = price
	listing.UpdatedAt = at
	s.listingsByID[itemID] = listing
	return nil
}

func (s *Store) MarketplaceFee(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBasisPoints, nil
}

func (s *Store) SetMarketplaceFee(_ context.Context, bps int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBasisPoints = bps
	return nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotencyByKey[key]
	if !ok || now.After(record.ExpiresAt) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotencyByKey[record.Key] = record
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOutboxLocked(envelope)
}

func (s *Store) appendOutboxLocked(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.outbox = append(s.outbox, outboxRow{message: ports.OutboxMessage{
		OutboxID:     s.outboxIDGenerator(),
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAt,
	}})
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]ports.OutboxMessage, 0, limit)
	for _, row := range s.outbox {
		if row.sent {
			continue
		}
		pending = append(pending, row.message)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].message.OutboxID == outboxID {
			s.outbox[i].sent = true
			s.sentOutboxByID[outboxID] = sentAt
			return nil
		}
	}
	return domainerrors.ErrRepositoryInvariantBroke
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.ListingRepository = (*Store)(nil)
	_ ports.IdempotencyStore  = (*Store)(nil)
	_ ports.OutboxWriter      = (*Store)(nil)
	_ ports.OutboxRepository  = (*Store)(nil)
	_ ports.Clock             = (*Store)(nil)
	_ ports.IDGenerator       = (*Store)(nil)
)
