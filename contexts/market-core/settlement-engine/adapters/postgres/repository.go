package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arkiv/contexts/market-core/settlement-engine/domain/entities"
	domainerrors "arkiv/contexts/market-core/settlement-engine/domain/errors"
	"arkiv/contexts/market-core/settlement-engine/ports"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"

	feeConfigKey = "marketplace_fee_basis_points"
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

func (r *Repository) CreateListing(ctx context.Context, listing entities.Listing) (entities.Listing, error) {
	row := listingModelFromEntity(listing)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&listingModel{}).
			Where("token_id = ? AND listed = TRUE", listing.TokenID).
			Count(&active).
			Error; err != nil {
			return err
		}
		if active > 0 {
			return domainerrors.ErrAlreadyListed
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return entities.Listing{}, domainerrors.ErrAlreadyListed
		}
		return entities.Listing{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetListing(ctx context.Context, itemID int64) (entities.Listing, error) {
	var row listingModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, domainerrors.ErrItemNotFound
		}
		return entities.Listing{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetActiveListingByToken(ctx context.Context, tokenID int64) (entities.Listing, bool, error) {
	var row listingModel
	err := r.db.WithContext(ctx).
		Where("token_id = ? AND listed = TRUE", tokenID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, false, nil
		}
		return entities.Listing{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListActiveListings(ctx context.Context, cursor string, limit int) ([]entities.Listing, string, error) {
	if limit <= 0 {
		limit = 20
	}
	var after int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", domainerrors.ErrItemNotFound
		}
		after = parsed
	}

	var rows []listingModel
	if err := r.db.WithContext(ctx).
		Where("listed = TRUE AND item_id > ?", after).
		Order("item_id ASC").
		Limit(limit + 1).
		Find(&rows).
		Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = strconv.FormatInt(rows[len(rows)-1].ItemID, 10)
	}
	listings := make([]entities.Listing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, row.toEntity())
	}
	return listings, next, nil
}

// CloseListing flips the row inactive and writes the purchase event in the
// same transaction, so the sale and its event record cannot diverge.
func (r *Repository) CloseListing(ctx context.Context, itemID int64, buyer string, at time.Time, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&listingModel{}).
			Where("item_id = ? AND listed = TRUE", itemID).
			Updates(map[string]any{
				"listed":     false,
				"buyer":      buyer,
				"updated_at": at.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&listingModel{}).
				Where("item_id = ?", itemID).
				Count(&exists).
				Error; err != nil {
				return err
			}
			if exists == 0 {
				return domainerrors.ErrItemNotFound
			}
			return domainerrors.ErrNotListed
		}

		row := outboxModel{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      payload,
			Status:       outboxStatusPending,
			CreatedAt:    event.OccurredAt.UTC(),
		}
		return tx.Create(&row).Error
	})
}

func (r *Repository) ReopenListing(ctx context.Context, itemID int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&listingModel{}).
		Where("item_id = ? AND listed = FALSE", itemID).
		Updates(map[string]any{
			"listed":     true,
			"buyer":      "",
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).
			Model(&listingModel{}).
			Where("item_id = ?", itemID).
			Count(&exists).
			Error; err != nil {
			return err
		}
		if exists == 0 {
			return domainerrors.ErrItemNotFound
		}
	}
	return nil
}

func (r *Repository) DelistListing(ctx context.Context, itemID int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&listingModel{}).
		Where("item_id = ? AND listed = TRUE", itemID).
		Updates(map[string]any{
			"listed":     false,
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotListed
	}
	return nil
}

func (r *Repository) UpdateListingPrice(ctx context.Context, itemID int64, price int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&listingModel{}).
		Where("item_id = ? AND listed = TRUE", itemID).
		Updates(map[string]any{
			"price":      price,
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotListed
	}
	return nil
}

func (r *Repository) MarketplaceFee(ctx context.Context) (int64, error) {
	var row configModel
	err := r.db.WithContext(ctx).
		Where("config_key = ?", feeConfigKey).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.ConfigValue, nil
}

func (r *Repository) SetMarketplaceFee(ctx context.Context, bps int64, at time.Time) error {
	row := configModel{
		ConfigKey:   feeConfigKey,
		ConfigValue: bps,
		UpdatedAt:   at.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_at"}),
		}).
		Create(&row).
		Error
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND expires_at > ?", key, now.UTC()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	return ports.IdempotencyRecord{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		Payload:     row.Payload,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		IdempotencyKey: record.Key,
		RequestHash:    record.RequestHash,
		Payload:        record.Payload,
		ExpiresAt:      record.ExpiresAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"request_hash", "payload", "expires_at"}),
		}).
		Create(&row).
		Error
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
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
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type listingModel struct {
	ItemID    int64     `gorm:"column:item_id;primaryKey;autoIncrement"`
	TokenID   int64     `gorm:"column:token_id"`
	Seller    string    `gorm:"column:seller"`
	Price     int64     `gorm:"column:price"`
	Listed    bool      `gorm:"column:listed"`
	Buyer     string    `gorm:"column:buyer"`
	ListedAt  time.Time `gorm:"column:listed_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (listingModel) TableName() string {
	return "listings"
}

func listingModelFromEntity(listing entities.Listing) listingModel {
	return listingModel{
		TokenID:   listing.TokenID,
		Seller:    listing.Seller,
		Price:     listing.Price,
		Listed:    listing.Listed,
		Buyer:     listing.Buyer,
		ListedAt:  listing.ListedAt.UTC(),
		UpdatedAt: listing.UpdatedAt.UTC(),
	}
}

func (m listingModel) toEntity() entities.Listing {
	return entities.Listing{
		ItemID:    m.ItemID,
		TokenID:   m.TokenID,
		Seller:    m.Seller,
		Price:     m.Price,
		Listed:    m.Listed,
		Buyer:     m.Buyer,
		ListedAt:  m.ListedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type configModel struct {
	ConfigKey   string    `gorm:"column:config_key;primaryKey"`
	ConfigValue int64     `gorm:"column:config_value"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (configModel) TableName() string {
	return "marketplace_config"
}

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Payload        []byte    `gorm:"column:payload"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "settlement_idempotency"
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
	return "settlement_outbox"
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

var _ ports.ListingRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
