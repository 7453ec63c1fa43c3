package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arkiv/contexts/asset-core/token-registry/domain/entities"
	domainerrors "arkiv/contexts/asset-core/token-registry/domain/errors"
	"arkiv/contexts/asset-core/token-registry/ports"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateToken(ctx context.Context, token entities.Token, event func(entities.Token) (ports.EventEnvelope, error)) (entities.Token, error) {
	row := tokenModelFromEntity(token)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		envelope, err := event(row.toEntity())
		if err != nil {
			return err
		}
		return appendOutboxTx(tx, envelope)
	})
	if err != nil {
		return entities.Token{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetToken(ctx context.Context, tokenID int64) (entities.Token, error) {
	row, err := r.liveToken(ctx, tokenID)
	if err != nil {
		return entities.Token{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) TransferOwnership(ctx context.Context, tokenID int64, from string, to string, at time.Time, event ports.EventEnvelope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&tokenModel{}).
			Where("token_id = ? AND owner = ? AND burned = FALSE", tokenID, from).
			Updates(map[string]any{
				"owner":      to,
				"approved":   "",
				"updated_at": at.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := liveTokenTx(tx, tokenID); err != nil {
				return err
			}
			return domainerrors.ErrNotTokenOwner
		}
		return appendOutboxTx(tx, event)
	})
}

func (r *Repository) BurnToken(ctx context.Context, tokenID int64, at time.Time, event ports.EventEnvelope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&tokenModel{}).
			Where("token_id = ? AND burned = FALSE", tokenID).
			Updates(map[string]any{
				"owner":      "",
				"approved":   "",
				"burned":     true,
				"updated_at": at.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrTokenNotFound
		}
		return appendOutboxTx(tx, event)
	})
}

func (r *Repository) UpdateTokenURI(ctx context.Context, tokenID int64, uri string, at time.Time, event ports.EventEnvelope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&tokenModel{}).
			Where("token_id = ? AND burned = FALSE", tokenID).
			Updates(map[string]any{
				"metadata_uri": uri,
				"updated_at":   at.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrTokenNotFound
		}
		return appendOutboxTx(tx, event)
	})
}

func (r *Repository) BalanceOf(ctx context.Context, owner string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&tokenModel{}).
		Where("owner = ? AND burned = FALSE", owner).
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Repository) SetTokenApproval(ctx context.Context, tokenID int64, approved string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&tokenModel{}).
		Where("token_id = ? AND burned = FALSE", tokenID).
		Updates(map[string]any{
			"approved":   approved,
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrTokenNotFound
	}
	return nil
}

func (r *Repository) GetTokenApproval(ctx context.Context, tokenID int64) (string, error) {
	row, err := r.liveToken(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return row.Approved, nil
}

func (r *Repository) SetOperatorApproval(ctx context.Context, owner string, operator string, approved bool) error {
	if !approved {
		return r.db.WithContext(ctx).
			Where("owner = ? AND operator = ?", owner, operator).
			Delete(&operatorApprovalModel{}).
			Error
	}

	row := operatorApprovalModel{
		Owner:    owner,
		Operator: operator,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "operator"}},
			DoNothing: true,
		}).
		Create(&row).
		Error
}

func (r *Repository) IsOperatorApproved(ctx context.Context, owner string, operator string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&operatorApprovalModel{}).
		Where("owner = ? AND operator = ?", owner, operator).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) AddToWhitelist(ctx context.Context, address string) error {
	row := whitelistModel{Address: address}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&row).
		Error
}

func (r *Repository) RemoveFromWhitelist(ctx context.Context, address string) error {
	return r.db.WithContext(ctx).
		Where("address = ?", address).
		Delete(&whitelistModel{}).
		Error
}

func (r *Repository) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&whitelistModel{}).
		Where("address = ?", address).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// appendOutboxTx inserts the event row inside the caller's transaction so
// the token mutation and its event commit or roll back together.
func appendOutboxTx(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	row := outboxModel{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) liveToken(ctx context.Context, tokenID int64) (tokenModel, error) {
	return liveTokenTx(r.db.WithContext(ctx), tokenID)
}

func liveTokenTx(tx *gorm.DB, tokenID int64) (tokenModel, error) {
	var row tokenModel
	err := tx.
		Where("token_id = ? AND burned = FALSE", tokenID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tokenModel{}, domainerrors.ErrTokenNotFound
		}
		return tokenModel{}, err
	}
	return row, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type tokenModel struct {
	TokenID            int64     `gorm:"column:token_id;primaryKey;autoIncrement"`
	Owner              string    `gorm:"column:owner"`
	Creator            string    `gorm:"column:creator"`
	MetadataURI        string    `gorm:"column:metadata_uri"`
	RoyaltyReceiver    string    `gorm:"column:royalty_receiver"`
	RoyaltyBasisPoints int64     `gorm:"column:royalty_basis_points"`
	Approved           string    `gorm:"column:approved"`
	Burned             bool      `gorm:"column:burned"`
	MintedAt           time.Time `gorm:"column:minted_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (tokenModel) TableName() string {
	return "tokens"
}

func tokenModelFromEntity(token entities.Token) tokenModel {
	return tokenModel{
		Owner:              token.Owner,
		Creator:            token.Creator,
		MetadataURI:        token.MetadataURI,
		RoyaltyReceiver:    token.RoyaltyReceiver,
		RoyaltyBasisPoints: token.RoyaltyBasisPoints,
		Burned:             token.Burned,
		MintedAt:           token.MintedAt.UTC(),
		UpdatedAt:          token.UpdatedAt.UTC(),
	}
}

func (m tokenModel) toEntity() entities.Token {
	return entities.Token{
		ID:                 m.TokenID,
		Owner:              m.Owner,
		Creator:            m.Creator,
		MetadataURI:        m.MetadataURI,
		RoyaltyReceiver:    m.RoyaltyReceiver,
		RoyaltyBasisPoints: m.RoyaltyBasisPoints,
		Burned:             m.Burned,
		MintedAt:           m.MintedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

type operatorApprovalModel struct {
	Owner    string `gorm:"column:owner;primaryKey"`
	Operator string `gorm:"column:operator;primaryKey"`
}

func (operatorApprovalModel) TableName() string {
	return "operator_approvals"
}

type whitelistModel struct {
	Address string `gorm:"column:address;primaryKey"`
}

func (whitelistModel) TableName() string {
	return "minter_whitelist"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "token_registry_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      m.Payload,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

var _ ports.Repository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
