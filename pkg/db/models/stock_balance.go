package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockBalanceKeyIndex is the unique index enforcing one row per
// (owner, product, bucket).
const StockBalanceKeyIndex = "ux_stock_balances_owner_product_bucket"

// StockBalance is the authoritative quantity and price an owner holds for a
// product in one bucket.
type StockBalance struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_stock_balances_owner_product_bucket,priority:1"`
	ProductID   uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_balances_owner_product_bucket,priority:2"`
	Bucket      enums.StockBucket `gorm:"column:bucket;type:varchar(16);not null;uniqueIndex:ux_stock_balances_owner_product_bucket,priority:3"`
	Quantity    decimal.Decimal   `gorm:"column:quantity;type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:decimal(18,4);not null"`
	ProductName string            `gorm:"column:product_name;not null"`
	SKU         string            `gorm:"column:sku;not null"`
	Unit        string            `gorm:"column:unit;not null"`
	Version     int64             `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockBalance) TableName() string { return "stock_balances" }

func (b *StockBalance) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
