package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// OrderNumberIndex guards order_number uniqueness.
const OrderNumberIndex = "ux_orders_order_number"

// Order is a buyer-initiated agreement awaiting or having received seller action.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	SellerID        uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerRole      enums.Role        `gorm:"column:seller_role;type:varchar(32);not null"`
	SellerName      string            `gorm:"column:seller_name;not null"`
	BuyerID         uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	BuyerRole       enums.Role        `gorm:"column:buyer_role;type:varchar(32);not null"`
	BuyerName       string            `gorm:"column:buyer_name;not null"`
	Subtotal        decimal.Decimal   `gorm:"column:subtotal;type:decimal(18,4);not null"`
	TotalVAT        decimal.Decimal   `gorm:"column:total_vat;type:decimal(18,4);not null"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount;type:decimal(18,4);not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(16);not null"`
	Notes           *string           `gorm:"column:notes"`
	RejectionReason *string           `gorm:"column:rejection_reason"`
	TransactionID   *uuid.UUID        `gorm:"column:transaction_id;type:uuid"`
	InvoiceID       *uuid.UUID        `gorm:"column:invoice_id;type:uuid"`
	ConfirmedAt     *time.Time        `gorm:"column:confirmed_at"`
	RejectedAt      *time.Time        `gorm:"column:rejected_at"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Position int       `gorm:"column:position;not null"`
	LineItem `gorm:"embedded"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
