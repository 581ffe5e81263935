package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// ItemInput is one requested line of a new order.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// CreateOrderInput is what a buyer submits from the cart.
type CreateOrderInput struct {
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Items    []ItemInput
	Notes    *string
}

// ConfirmOrderInput carries the seller's decision. ResalePrice, when set,
// seeds the buyer's balance instead of each line's unit price.
type ConfirmOrderInput struct {
	OrderID     uuid.UUID
	ActorID     uuid.UUID
	ResalePrice *decimal.Decimal
}

// ConfirmResult is returned by ConfirmOrder. Degraded means the stock moved
// and the transaction was recorded but the invoice could not be written.
type ConfirmResult struct {
	Order       Order                     `json:"order"`
	Transaction *transactions.Transaction `json:"transaction"`
	Invoice     *invoices.Invoice         `json:"invoice"`
	Degraded    bool                      `json:"degraded"`
}

// ListFilter narrows an order listing to one side of the trade.
type ListFilter struct {
	SellerID *uuid.UUID
	BuyerID  *uuid.UUID
	Status   *enums.OrderStatus
}

// Order is the transport shape of an order.
type Order struct {
	ID              uuid.UUID         `json:"id"`
	OrderNumber     string            `json:"order_number"`
	SellerID        uuid.UUID         `json:"seller_id"`
	SellerRole      enums.Role        `json:"seller_role"`
	SellerName      string            `json:"seller_name"`
	BuyerID         uuid.UUID         `json:"buyer_id"`
	BuyerRole       enums.Role        `json:"buyer_role"`
	BuyerName       string            `json:"buyer_name"`
	Items           []lineitems.Line  `json:"items"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	TotalVAT        decimal.Decimal   `json:"total_vat"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Status          enums.OrderStatus `json:"status"`
	Notes           *string           `json:"notes,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	TransactionID   *uuid.UUID        `json:"transaction_id,omitempty"`
	InvoiceID       *uuid.UUID        `json:"invoice_id,omitempty"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	RejectedAt      *time.Time        `json:"rejected_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FromModel maps an order row and its preloaded items.
func FromModel(row models.Order) Order {
	items := make([]lineitems.Line, 0, len(row.Items))
	for _, item := range row.Items {
		items = append(items, lineitems.View(item.LineItem))
	}
	return Order{
		ID:              row.ID,
		OrderNumber:     row.OrderNumber,
		SellerID:        row.SellerID,
		SellerRole:      row.SellerRole,
		SellerName:      row.SellerName,
		BuyerID:         row.BuyerID,
		BuyerRole:       row.BuyerRole,
		BuyerName:       row.BuyerName,
		Items:           items,
		Subtotal:        row.Subtotal,
		TotalVAT:        row.TotalVAT,
		TotalAmount:     row.TotalAmount,
		Status:          row.Status,
		Notes:           row.Notes,
		RejectionReason: row.RejectionReason,
		TransactionID:   row.TransactionID,
		InvoiceID:       row.InvoiceID,
		ConfirmedAt:     row.ConfirmedAt,
		RejectedAt:      row.RejectedAt,
		CancelledAt:     row.CancelledAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
