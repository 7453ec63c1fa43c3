package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"arkiv/contexts/asset-core/token-registry/domain/entities"
	domainerrors "arkiv/contexts/asset-core/token-registry/domain/errors"
	"arkiv/contexts/asset-core/token-registry/ports"
)

// Store is the in-memory repository used by tests and single-process runs.
// A single mutex serializes every mutation, matching the registry's
// one-operation-at-a-time execution model.
type Store struct {
	mu sync.RWMutex

	tokensByID       map[int64]entities.Token
	approvalByToken  map[int64]string
	operatorsByOwner map[string]map[string]bool
	whitelist        map[string]struct{}
	nextTokenID      int64

	outbox     []outboxRow
	sentOutbox map[string]time.Time
}

type outboxRow struct {
	message ports.OutboxMessage
	sent    bool
}

func NewStore() *Store {
	return &Store{
		tokensByID:       make(map[int64]entities.Token),
		approvalByToken:  make(map[int64]string),
		operatorsByOwner: make(map[string]map[string]bool),
		whitelist:        make(map[string]struct{}),
		nextTokenID:      1,
		sentOutbox:       make(map[string]time.Time),
	}
}

func (s *Store) CreateToken(ctx context.Context, token entities.Token, event func(entities.Token) (ports.EventEnvelope, error)) (entities.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.ID = s.nextTokenID
	envelope, err := event(token)
	if err != nil {
		return entities.Token{}, err
	}
	if err := s.appendOutboxLocked(envelope); err != nil {
		return entities.Token{}, err
	}
	s.nextTokenID++
	s.tokensByID[token.ID] = token
	return token, nil
}

func (s *Store) GetToken(ctx context.Context, tokenID int64) (entities.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveToken(tokenID)
}

func (s *Store) TransferOwnership(ctx context.Context, tokenID int64, from string, to string, at time.Time, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.liveToken(tokenID)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return domainerrors.ErrNotTokenOwner
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}
	token.Owner = to
	token.UpdatedAt = at.UTC()
	s.tokensByID[tokenID] = token
	delete(s.approvalByToken, tokenID)
	return nil
}

func (s *Store) BurnToken(ctx context.Context, tokenID int64, at time.Time, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.liveToken(tokenID)
	if err != nil {
		return err
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}
	// The row stays so the id is never reassigned; every later lookup fails.
	token.Owner = ""
	token.Burned = true
	token.UpdatedAt = at.UTC()
	s.tokensByID[tokenID] = token
	delete(s.approvalByToken, tokenID)
	return nil
}

func (s *Store) UpdateTokenURI(ctx context.Context, tokenID int64, uri string, at time.Time, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.liveToken(tokenID)
	if err != nil {
		return err
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}
	token.MetadataURI = uri
	token.UpdatedAt = at.UTC()
	s.tokensByID[tokenID] = token
	return nil
}

func (s *Store) BalanceOf(ctx context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, token := range s.tokensByID {
		if !token.Burned && token.Owner == owner {
			count++
		}
	}
	return count, nil
}

func (s *Store) SetTokenApproval(ctx context.Context, tokenID int64, approved string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveToken(tokenID); err != nil {
		return err
	}
	if approved == "" {
		delete(s.approvalByToken, tokenID)
		return nil
	}
	s.approvalByToken[tokenID] = approved
	return nil
}

func (s *Store) GetTokenApproval(ctx context.Context, tokenID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.liveToken(tokenID); err != nil {
		return "", err
	}
	return s.approvalByToken[tokenID], nil
}

func (s *Store) SetOperatorApproval(ctx context.Context, owner string, operator string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.operatorsByOwner[owner]; !ok {
		s.operatorsByOwner[owner] = make(map[string]bool)
	}
	if approved {
		s.operatorsByOwner[owner][operator] = true
	} else {
		delete(s.operatorsByOwner[owner], operator)
	}
	return nil
}

func (s *Store) IsOperatorApproved(ctx context.Context, owner string, operator string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operatorsByOwner[owner][operator], nil
}

func (s *Store) AddToWhitelist(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[address] = struct{}{}
	return nil
}

func (s *Store) RemoveFromWhitelist(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, address)
	return nil
}

func (s *Store) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[address]
	return ok, nil
}

func (s *Store) appendOutboxLocked(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.outbox = append(s.outbox, outboxRow{
		message: ports.OutboxMessage{
			OutboxID:     envelope.EventID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt,
		},
	})
	return nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.OutboxMessage, 0, limit)
	for _, row := range s.outbox {
		if row.sent {
			continue
		}
		items = append(items, row.message)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, row := range s.outbox {
		if row.message.OutboxID == outboxID {
			s.outbox[i].sent = true
			s.sentOutbox[outboxID] = sentAt.UTC()
			return nil
		}
	}
	return domainerrors.ErrRepositoryInvariantBroke
}

func (s *Store) NewID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) liveToken(tokenID int64) (entities.Token, error) {
	token, ok := s.tokensByID[tokenID]
	if !ok || token.Burned {
		return entities.Token{}, domainerrors.ErrTokenNotFound
	}
	return token, nil
}

var _ ports.Repository = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
