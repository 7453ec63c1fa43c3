package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"arkiv/contexts/asset-core/token-registry/domain/entities"
	domainerrors "arkiv/contexts/asset-core/token-registry/domain/errors"
	"arkiv/contexts/asset-core/token-registry/ports"
)

const (
	CollectionName   = "Arkiv"
	CollectionSymbol = "ARKV"

	sourceService = "token-registry"
)

// Service implements the asset registry operations. The acting principal is
// always passed explicitly; there is no ambient caller identity.
type Service struct {
	Repo  ports.Repository
	Clock ports.Clock
	IDGen ports.IDGenerator
	// Owner is the registry deployer; it administers the whitelist.
	Owner string
	// SettlementOperator is the marketplace identity allowed to roll back a
	// transfer when a settlement fails after ownership moved. Mirrors the
	// registry being constructed with the marketplace reference.
	SettlementOperator string
	// WhitelistEnabled gates minting to whitelisted addresses.
	WhitelistEnabled bool
	Logger           *slog.Logger
}

type MintInput struct {
	To                 string
	MetadataURI        string
	RoyaltyReceiver    string
	RoyaltyBasisPoints int64
}

func (s Service) Name() string   { return CollectionName }
func (s Service) Symbol() string { return CollectionSymbol }

// Mint creates a token owned by `to`. The creator is always the minter,
// independent of who receives the token.
func (s Service) Mint(ctx context.Context, actor string, input MintInput) (entities.Token, error) {
	actor = strings.TrimSpace(actor)
	to := strings.TrimSpace(input.To)
	if entities.IsZeroAddress(actor) || entities.IsZeroAddress(to) {
		return entities.Token{}, domainerrors.ErrZeroAddress
	}
	if !entities.ValidRoyaltyBasisPoints(input.RoyaltyBasisPoints) {
		return entities.Token{}, domainerrors.ErrInvalidRoyalty
	}
	receiver := strings.TrimSpace(input.RoyaltyReceiver)
	if input.RoyaltyBasisPoints > 0 && entities.IsZeroAddress(receiver) {
		return entities.Token{}, domainerrors.ErrZeroAddress
	}
	if strings.TrimSpace(input.MetadataURI) == "" {
		return entities.Token{}, domainerrors.ErrInvalidMetadataURI
	}

	if s.WhitelistEnabled {
		whitelisted, err := s.Repo.IsWhitelisted(ctx, actor)
		if err != nil {
			return entities.Token{}, err
		}
		if !whitelisted {
			return entities.Token{}, domainerrors.ErrNotWhitelisted
		}
	}

	now := s.now()
	token, err := s.Repo.CreateToken(ctx, entities.Token{
		Owner:              to,
		Creator:            actor,
		MetadataURI:        strings.TrimSpace(input.MetadataURI),
		RoyaltyReceiver:    receiver,
		RoyaltyBasisPoints: input.RoyaltyBasisPoints,
		MintedAt:           now,
		UpdatedAt:          now,
	}, func(created entities.Token) (ports.EventEnvelope, error) {
		return s.buildEvent(ctx, "token.minted", created.ID, map[string]any{
			"token_id":             created.ID,
			"owner":                created.Owner,
			"creator":              created.Creator,
			"metadata_uri":         created.MetadataURI,
			"royalty_receiver":     created.RoyaltyReceiver,
			"royalty_basis_points": created.RoyaltyBasisPoints,
		}, now)
	})
	if err != nil {
		return entities.Token{}, err
	}

	resolveLogger(s.Logger).Info("token minted",
		"event", "token_minted",
		"module", "asset-core/token-registry",
		"layer", "application",
		"token_id", token.ID,
		"owner", token.Owner,
		"creator", token.Creator,
	)
	return token, nil
}

// TransferToken moves ownership from `from` to `to`. The actor must be the
// owner, the per-token approved address, or an approved operator for the
// owner. The per-token approval is cleared on success.
func (s Service) TransferToken(ctx context.Context, actor string, from string, to string, tokenID int64) error {
	actor = strings.TrimSpace(actor)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if entities.IsZeroAddress(actor) || entities.IsZeroAddress(to) {
		return domainerrors.ErrZeroAddress
	}

	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != from {
		return domainerrors.ErrNotTokenOwner
	}
	authorized, err := s.isAuthorizedForToken(ctx, actor, token)
	if err != nil {
		return err
	}
	if !authorized {
		return domainerrors.ErrNotApproved
	}

	now := s.now()
	event, err := s.buildEvent(ctx, "token.transferred", tokenID, map[string]any{
		"token_id": tokenID,
		"from":     from,
		"to":       to,
		"actor":    actor,
	}, now)
	if err != nil {
		return err
	}
	if err := s.Repo.TransferOwnership(ctx, tokenID, from, to, now, event); err != nil {
		return err
	}

	resolveLogger(s.Logger).Info("token transferred",
		"event", "token_transferred",
		"module", "asset-core/token-registry",
		"layer", "application",
		"token_id", tokenID,
		"from", from,
		"to", to,
	)
	return nil
}

// Burn retires a token id permanently. Only the current owner may burn.
func (s Service) Burn(ctx context.Context, actor string, tokenID int64) error {
	actor = strings.TrimSpace(actor)
	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != actor {
		return domainerrors.ErrNotTokenOwner
	}

	now := s.now()
	event, err := s.buildEvent(ctx, "token.burned", tokenID, map[string]any{
		"token_id": tokenID,
		"owner":    token.Owner,
	}, now)
	if err != nil {
		return err
	}
	if err := s.Repo.BurnToken(ctx, tokenID, now, event); err != nil {
		return err
	}

	resolveLogger(s.Logger).Info("token burned",
		"event", "token_burned",
		"module", "asset-core/token-registry",
		"layer", "application",
		"token_id", tokenID,
		"owner", token.Owner,
	)
	return nil
}

// UpdateTokenMetadata replaces the metadata URI. The actor must be both the
// current owner and the original creator.
func (s Service) UpdateTokenMetadata(ctx context.Context, actor string, tokenID int64, newURI string) error {
	actor = strings.TrimSpace(actor)
	newURI = strings.TrimSpace(newURI)
	if newURI == "" {
		return domainerrors.ErrInvalidMetadataURI
	}

	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != actor {
		return domainerrors.ErrNotTokenOwner
	}
	if token.Creator != actor {
		return domainerrors.ErrNotCreator
	}

	now := s.now()
	event, err := s.buildEvent(ctx, "token.uri_updated", tokenID, map[string]any{
		"token_id":     tokenID,
		"metadata_uri": newURI,
	}, now)
	if err != nil {
		return err
	}
	return s.Repo.UpdateTokenURI(ctx, tokenID, newURI, now, event)
}

// RoyaltyInfo returns the royalty receiver and amount owed for a sale at
// salePrice, truncated toward zero.
func (s Service) RoyaltyInfo(ctx context.Context, tokenID int64, salePrice int64) (string, int64, error) {
	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return "", 0, err
	}
	return token.RoyaltyReceiver, token.RoyaltyAmount(salePrice), nil
}

// Approve grants a single address transfer rights over one token.
func (s Service) Approve(ctx context.Context, actor string, approved string, tokenID int64) error {
	actor = strings.TrimSpace(actor)
	approved = strings.TrimSpace(approved)

	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if approved == token.Owner {
		return domainerrors.ErrSelfApproval
	}
	if actor != token.Owner {
		operator, err := s.Repo.IsOperatorApproved(ctx, token.Owner, actor)
		if err != nil {
			return err
		}
		if !operator {
			return domainerrors.ErrNotApproved
		}
	}
	return s.Repo.SetTokenApproval(ctx, tokenID, approved, s.now())
}

// SetApprovalForAll grants or revokes operator rights over every token the
// actor owns now or later.
func (s Service) SetApprovalForAll(ctx context.Context, actor string, operator string, approved bool) error {
	actor = strings.TrimSpace(actor)
	operator = strings.TrimSpace(operator)
	if entities.IsZeroAddress(actor) || entities.IsZeroAddress(operator) {
		return domainerrors.ErrZeroAddress
	}
	if operator == actor {
		return domainerrors.ErrSelfApproval
	}
	return s.Repo.SetOperatorApproval(ctx, actor, operator, approved)
}

func (s Service) GetApproved(ctx context.Context, tokenID int64) (string, error) {
	if _, err := s.Repo.GetToken(ctx, tokenID); err != nil {
		return "", err
	}
	return s.Repo.GetTokenApproval(ctx, tokenID)
}

func (s Service) IsApprovedForAll(ctx context.Context, owner string, operator string) (bool, error) {
	return s.Repo.IsOperatorApproved(ctx, strings.TrimSpace(owner), strings.TrimSpace(operator))
}

func (s Service) OwnerOf(ctx context.Context, tokenID int64) (string, error) {
	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return token.Owner, nil
}

func (s Service) TokenCreator(ctx context.Context, tokenID int64) (string, error) {
	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return token.Creator, nil
}

func (s Service) TokenURI(ctx context.Context, tokenID int64) (string, error) {
	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return token.MetadataURI, nil
}

func (s Service) GetToken(ctx context.Context, tokenID int64) (entities.Token, error) {
	return s.Repo.GetToken(ctx, tokenID)
}

func (s Service) BalanceOf(ctx context.Context, owner string) (int, error) {
	return s.Repo.BalanceOf(ctx, strings.TrimSpace(owner))
}

// AddToWhitelist marks an address as an allowed minter. Registry owner only.
func (s Service) AddToWhitelist(ctx context.Context, actor string, address string) error {
	address = strings.TrimSpace(address)
	if entities.IsZeroAddress(address) {
		return domainerrors.ErrZeroAddress
	}
	if strings.TrimSpace(actor) != s.Owner {
		return domainerrors.ErrNotRegistryOwner
	}
	return s.Repo.AddToWhitelist(ctx, address)
}

func (s Service) RemoveFromWhitelist(ctx context.Context, actor string, address string) error {
	if strings.TrimSpace(actor) != s.Owner {
		return domainerrors.ErrNotRegistryOwner
	}
	return s.Repo.RemoveFromWhitelist(ctx, strings.TrimSpace(address))
}

// RollbackTransfer returns a token to `to` after a failed settlement. Only
// the configured settlement operator may call it; normal approval rules do
// not apply because the forward transfer it compensates was already
// authorized.
func (s Service) RollbackTransfer(ctx context.Context, actor string, tokenID int64, to string) error {
	actor = strings.TrimSpace(actor)
	to = strings.TrimSpace(to)
	if entities.IsZeroAddress(to) {
		return domainerrors.ErrZeroAddress
	}
	if s.SettlementOperator == "" || actor != s.SettlementOperator {
		return domainerrors.ErrNotSettlementOperator
	}

	token, err := s.Repo.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}

	now := s.now()
	event, err := s.buildEvent(ctx, "token.transferred", tokenID, map[string]any{
		"token_id": tokenID,
		"from":     token.Owner,
		"to":       to,
		"actor":    actor,
		"rollback": true,
	}, now)
	if err != nil {
		return err
	}
	if err := s.Repo.TransferOwnership(ctx, tokenID, token.Owner, to, now, event); err != nil {
		return err
	}

	resolveLogger(s.Logger).Warn("token transfer rolled back",
		"event", "token_transfer_rolled_back",
		"module", "asset-core/token-registry",
		"layer", "application",
		"token_id", tokenID,
		"returned_to", to,
	)
	return nil
}

func (s Service) isAuthorizedForToken(ctx context.Context, actor string, token entities.Token) (bool, error) {
	if actor == token.Owner {
		return true, nil
	}
	approved, err := s.Repo.GetTokenApproval(ctx, token.ID)
	if err != nil {
		return false, err
	}
	if approved != "" && approved == actor {
		return true, nil
	}
	return s.Repo.IsOperatorApproved(ctx, token.Owner, actor)
}

// buildEvent assembles the integration event a repository write persists
// alongside the token mutation.
func (s Service) buildEvent(ctx context.Context, eventType string, tokenID int64, payload map[string]any, at time.Time) (ports.EventEnvelope, error) {
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
		PartitionKey:  partitionKey(tokenID),
		Data:          data,
	}, nil
}

func (s Service) newEventID(ctx context.Context) (string, error) {
	if s.IDGen == nil {
		return "", errors.New("id generator is required")
	}
	return s.IDGen.NewID(ctx)
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func partitionKey(tokenID int64) string {
	return "token-" + strconv.FormatInt(tokenID, 10)
}
