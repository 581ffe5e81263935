package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// InvoiceNumberIndex guards invoice_number uniqueness.
const InvoiceNumberIndex = "ux_invoices_invoice_number"

// Invoice is the billing artifact derived 1:1 from a transaction.
type Invoice struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber string                     `gorm:"column:invoice_number;not null;uniqueIndex:ux_invoices_invoice_number"`
	TransactionID uuid.UUID                  `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`
	OrderID       *uuid.UUID                 `gorm:"column:order_id;type:uuid"`
	SellerID      uuid.UUID                  `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerName    string                     `gorm:"column:seller_name;not null"`
	SellerRole    enums.Role                 `gorm:"column:seller_role;type:varchar(32);not null"`
	BuyerID       *uuid.UUID                 `gorm:"column:buyer_id;type:uuid;index"`
	BuyerName     string                     `gorm:"column:buyer_name;not null"`
	BuyerRole     enums.Role                 `gorm:"column:buyer_role;type:varchar(32);not null"`
	Subtotal      decimal.Decimal            `gorm:"column:subtotal;type:decimal(18,4);not null"`
	TotalVAT      decimal.Decimal            `gorm:"column:total_vat;type:decimal(18,4);not null"`
	TotalAmount   decimal.Decimal            `gorm:"column:total_amount;type:decimal(18,4);not null"`
	Status        enums.InvoiceStatus        `gorm:"column:status;type:varchar(16);not null"`
	PaymentStatus enums.InvoicePaymentStatus `gorm:"column:payment_status;type:varchar(16);not null"`
	GeneratedAt   time.Time                  `gorm:"column:generated_at;not null"`
	DueDate       time.Time                  `gorm:"column:due_date;not null"`
	PaidAt        *time.Time                 `gorm:"column:paid_at"`
	Notes         *string                    `gorm:"column:notes"`
	Items         []InvoiceItem              `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceID uuid.UUID `gorm:"column:invoice_id;type:uuid;not null;index"`
	Position  int       `gorm:"column:position;not null"`
	LineItem  `gorm:"embedded"`
}

func (i *InvoiceItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
