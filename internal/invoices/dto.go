package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Invoice is the transport shape of an invoice with its lines.
type Invoice struct {
	ID            uuid.UUID                  `json:"id"`
	InvoiceNumber string                     `json:"invoice_number"`
	TransactionID uuid.UUID                  `json:"transaction_id"`
	OrderID       *uuid.UUID                 `json:"order_id,omitempty"`
	SellerID      uuid.UUID                  `json:"seller_id"`
	SellerName    string                     `json:"seller_name"`
	SellerRole    enums.Role                 `json:"seller_role"`
	BuyerID       *uuid.UUID                 `json:"buyer_id,omitempty"`
	BuyerName     string                     `json:"buyer_name"`
	BuyerRole     enums.Role                 `json:"buyer_role"`
	Items         []lineitems.Line           `json:"items"`
	Subtotal      decimal.Decimal            `json:"subtotal"`
	TotalVAT      decimal.Decimal            `json:"total_vat"`
	TotalAmount   decimal.Decimal            `json:"total_amount"`
	Status        enums.InvoiceStatus        `json:"status"`
	PaymentStatus enums.InvoicePaymentStatus `json:"payment_status"`
	GeneratedAt   time.Time                  `json:"generated_at"`
	DueDate       time.Time                  `json:"due_date"`
	PaidAt        *time.Time                 `json:"paid_at,omitempty"`
	Notes         *string                    `json:"notes,omitempty"`
}

// FromModel maps an invoice row and its preloaded items.
func FromModel(row models.Invoice) Invoice {
	items := make([]lineitems.Line, 0, len(row.Items))
	for _, item := range row.Items {
		items = append(items, lineitems.View(item.LineItem))
	}
	return Invoice{
		ID:            row.ID,
		InvoiceNumber: row.InvoiceNumber,
		TransactionID: row.TransactionID,
		OrderID:       row.OrderID,
		SellerID:      row.SellerID,
		SellerName:    row.SellerName,
		SellerRole:    row.SellerRole,
		BuyerID:       row.BuyerID,
		BuyerName:     row.BuyerName,
		BuyerRole:     row.BuyerRole,
		Items:         items,
		Subtotal:      row.Subtotal,
		TotalVAT:      row.TotalVAT,
		TotalAmount:   row.TotalAmount,
		Status:        row.Status,
		PaymentStatus: row.PaymentStatus,
		GeneratedAt:   row.GeneratedAt,
		DueDate:       row.DueDate,
		PaidAt:        row.PaidAt,
		Notes:         row.Notes,
	}
}

// GenerateInput derives an invoice from a recorded transaction.
type GenerateInput struct {
	Transaction *models.Transaction
	OrderID     *uuid.UUID
	// WalkIn invoices are due and settled at generation.
	WalkIn bool
	Notes  *string
}
