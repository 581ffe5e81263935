package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Repository persists stock balances. Every mutation of an existing row is
// guarded by its version so a lost race surfaces as db.ErrStaleWrite.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, ownerID, productID uuid.UUID, bucket enums.StockBucket) (*models.StockBalance, error)
	Insert(ctx context.Context, balance *models.StockBalance) error
	UpdateVersioned(ctx context.Context, balance *models.StockBalance) error
	DeleteVersioned(ctx context.Context, balance *models.StockBalance) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, bucket *enums.StockBucket) ([]models.StockBalance, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a stock repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

// Find returns gorm.ErrRecordNotFound when the key has no row.
func (r *repository) Find(ctx context.Context, ownerID, productID uuid.UUID, bucket enums.StockBucket) (*models.StockBalance, error) {
	var row models.StockBalance
	err := r.base.DB(ctx).
		Where("owner_id = ? AND product_id = ? AND bucket = ?", ownerID, productID, bucket).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert creates the first row for a key. A concurrent insert of the same key
// fails on the unique index and is retried by the caller.
func (r *repository) Insert(ctx context.Context, balance *models.StockBalance) error {
	balance.Version = 1
	return r.base.DB(ctx).Create(balance).Error
}

// UpdateVersioned writes quantity, price and the product cache, bumping the
// version on success.
func (r *repository) UpdateVersioned(ctx context.Context, balance *models.StockBalance) error {
	now := time.Now().UTC()
	res := r.base.DB(ctx).
		Model(&models.StockBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]any{
			"quantity":     balance.Quantity,
			"unit_price":   balance.UnitPrice,
			"product_name": balance.ProductName,
			"sku":          balance.SKU,
			"unit":         balance.Unit,
			"version":      balance.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrStaleWrite
	}
	balance.Version++
	balance.UpdatedAt = now
	return nil
}

func (r *repository) DeleteVersioned(ctx context.Context, balance *models.StockBalance) error {
	res := r.base.DB(ctx).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Delete(&models.StockBalance{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrStaleWrite
	}
	return nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, bucket *enums.StockBucket) ([]models.StockBalance, error) {
	q := r.base.DB(ctx).Where("owner_id = ?", ownerID)
	if bucket != nil {
		q = q.Where("bucket = ?", *bucket)
	}
	var rows []models.StockBalance
	if err := q.Order("product_name ASC").Order("bucket ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
