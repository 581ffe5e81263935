package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is the line snapshot shared by orders, transactions and invoices.
// Product fields are copied at write time so records survive catalog edits.
type LineItem struct {
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName  string          `gorm:"column:product_name;not null"`
	SKU          string          `gorm:"column:sku;not null"`
	Unit         string          `gorm:"column:unit;not null"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(18,4);not null"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:decimal(18,4);not null"`
	VATRate      decimal.Decimal `gorm:"column:vat_rate;type:decimal(5,2);not null"`
	LineSubtotal decimal.Decimal `gorm:"column:line_subtotal;type:decimal(18,4);not null"`
	LineVAT      decimal.Decimal `gorm:"column:line_vat;type:decimal(18,4);not null"`
	LineTotal    decimal.Decimal `gorm:"column:line_total;type:decimal(18,4);not null"`
}
