package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockAdjustedEvent is emitted after an owner changes a balance directly.
type StockAdjustedEvent struct {
	OwnerID       uuid.UUID         `json:"owner_id"`
	ProductID     uuid.UUID         `json:"product_id"`
	Bucket        enums.StockBucket `json:"bucket"`
	Delta         decimal.Decimal   `json:"delta"`
	FinalQuantity decimal.Decimal   `json:"final_quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Deleted       bool              `json:"deleted"`
}

// StockTransferredEvent is emitted for each committed seller to buyer movement.
type StockTransferredEvent struct {
	SellerID        uuid.UUID         `json:"seller_id"`
	BuyerID         uuid.UUID         `json:"buyer_id"`
	ProductID       uuid.UUID         `json:"product_id"`
	Quantity        decimal.Decimal   `json:"quantity"`
	BuyerBucket     enums.StockBucket `json:"buyer_bucket"`
	SellerRemaining decimal.Decimal   `json:"seller_remaining"`
	BuyerQuantity   decimal.Decimal   `json:"buyer_quantity"`
}

// OrderCreatedEvent announces a new pending order to the seller.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	SellerID    uuid.UUID       `json:"seller_id"`
	BuyerID     uuid.UUID       `json:"buyer_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderStatusEvent covers confirm, reject and cancel.
type OrderStatusEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	OrderNumber     string            `json:"order_number"`
	SellerID        uuid.UUID         `json:"seller_id"`
	BuyerID         uuid.UUID         `json:"buyer_id"`
	Status          enums.OrderStatus `json:"status"`
	TransactionID   *uuid.UUID        `json:"transaction_id,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// TransactionEvent covers recorded and cancelled transactions.
type TransactionEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	BuyerID       *uuid.UUID              `json:"buyer_id,omitempty"`
	OrderID       *uuid.UUID              `json:"order_id,omitempty"`
	Type          enums.TransactionType   `json:"type"`
	Status        enums.TransactionStatus `json:"status"`
	TotalAmount   decimal.Decimal         `json:"total_amount"`
}

// InvoiceEvent covers generation, payment and status changes.
type InvoiceEvent struct {
	InvoiceID     uuid.UUID                  `json:"invoice_id"`
	InvoiceNumber string                     `json:"invoice_number"`
	TransactionID uuid.UUID                  `json:"transaction_id"`
	SellerID      uuid.UUID                  `json:"seller_id"`
	BuyerID       *uuid.UUID                 `json:"buyer_id,omitempty"`
	Status        enums.InvoiceStatus        `json:"status"`
	PaymentStatus enums.InvoicePaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal            `json:"total_amount"`
	DueDate       time.Time                  `json:"due_date"`
}
