package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Transaction is the immutable record of a completed trade. Only Status and
// the cancellation columns change, and only on an explicit reversal.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerName  string                  `gorm:"column:seller_name;not null"`
	SellerRole  enums.Role              `gorm:"column:seller_role;type:varchar(32);not null"`
	BuyerID     *uuid.UUID              `gorm:"column:buyer_id;type:uuid;index"`
	BuyerName   string                  `gorm:"column:buyer_name;not null"`
	BuyerRole   enums.Role              `gorm:"column:buyer_role;type:varchar(32);not null"`
	Type        enums.TransactionType   `gorm:"column:type;type:varchar(16);not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:varchar(16);not null"`
	Subtotal    decimal.Decimal         `gorm:"column:subtotal;type:decimal(18,4);not null"`
	TotalVAT    decimal.Decimal         `gorm:"column:total_vat;type:decimal(18,4);not null"`
	TotalAmount decimal.Decimal         `gorm:"column:total_amount;type:decimal(18,4);not null"`
	OrderID     *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	ReversalOf  *uuid.UUID              `gorm:"column:reversal_of;type:uuid"`
	OccurredAt  time.Time               `gorm:"column:occurred_at;not null"`
	CancelledAt *time.Time              `gorm:"column:cancelled_at"`
	CancelledBy *uuid.UUID              `gorm:"column:cancelled_by;type:uuid"`
	Items       []TransactionItem       `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsWalkIn reports whether the buyer has no account.
func (t *Transaction) IsWalkIn() bool {
	return t.BuyerID == nil || t.BuyerRole == enums.RoleWalkInCustomer
}

// TransactionItem is one line of a transaction.
type TransactionItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;index"`
	Position      int       `gorm:"column:position;not null"`
	LineItem      `gorm:"embedded"`
}

func (i *TransactionItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
