package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Party is one side of a trade as stamped on the record. ID is nil for a
// walk-in customer.
type Party struct {
	ID   *uuid.UUID
	Name string
	Role enums.Role
}

// RecordInput describes a completed trade. Items only need product, quantity,
// price and rate; derived amounts are recomputed.
type RecordInput struct {
	Seller  Party
	Buyer   Party
	Items   []models.LineItem
	Type    enums.TransactionType
	OrderID *uuid.UUID
}

// Transaction is the transport shape of a transaction record.
type Transaction struct {
	ID          uuid.UUID               `json:"id"`
	SellerID    uuid.UUID               `json:"seller_id"`
	SellerName  string                  `json:"seller_name"`
	SellerRole  enums.Role              `json:"seller_role"`
	BuyerID     *uuid.UUID              `json:"buyer_id,omitempty"`
	BuyerName   string                  `json:"buyer_name"`
	BuyerRole   enums.Role              `json:"buyer_role"`
	Type        enums.TransactionType   `json:"type"`
	Status      enums.TransactionStatus `json:"status"`
	Items       []lineitems.Line        `json:"items"`
	Subtotal    decimal.Decimal         `json:"subtotal"`
	TotalVAT    decimal.Decimal         `json:"total_vat"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	OrderID     *uuid.UUID              `json:"order_id,omitempty"`
	IsWalkIn    bool                    `json:"is_walk_in"`
	OccurredAt  time.Time               `json:"occurred_at"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
	CancelledBy *uuid.UUID              `json:"cancelled_by,omitempty"`
}

// FromModel maps a transaction row and its preloaded items.
func FromModel(row models.Transaction) Transaction {
	items := make([]lineitems.Line, 0, len(row.Items))
	for _, item := range row.Items {
		items = append(items, lineitems.View(item.LineItem))
	}
	return Transaction{
		ID:          row.ID,
		SellerID:    row.SellerID,
		SellerName:  row.SellerName,
		SellerRole:  row.SellerRole,
		BuyerID:     row.BuyerID,
		BuyerName:   row.BuyerName,
		BuyerRole:   row.BuyerRole,
		Type:        row.Type,
		Status:      row.Status,
		Items:       items,
		Subtotal:    row.Subtotal,
		TotalVAT:    row.TotalVAT,
		TotalAmount: row.TotalAmount,
		OrderID:     row.OrderID,
		IsWalkIn:    row.IsWalkIn(),
		OccurredAt:  row.OccurredAt,
		CancelledAt: row.CancelledAt,
		CancelledBy: row.CancelledBy,
	}
}

// Stats summarizes a user's completed trades.
type Stats struct {
	TotalTransactions int64           `json:"total_transactions"`
	SalesCount        int64           `json:"sales_count"`
	PurchasesCount    int64           `json:"purchases_count"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalPurchases    decimal.Decimal `json:"total_purchases"`
	SalesRevenue      decimal.Decimal `json:"sales_revenue"`
	PurchasesExpense  decimal.Decimal `json:"purchases_expense"`
	NetRevenue        decimal.Decimal `json:"net_revenue"`
}
