package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Balance is the transport shape of a stock balance.
type Balance struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	ProductID   uuid.UUID         `json:"product_id"`
	Bucket      enums.StockBucket `json:"bucket"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	ProductName string            `json:"product_name"`
	SKU         string            `json:"sku"`
	Unit        string            `json:"unit"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// FromModel maps a stock_balances row.
func FromModel(row models.StockBalance) Balance {
	return Balance{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		ProductID:   row.ProductID,
		Bucket:      row.Bucket,
		Quantity:    row.Quantity,
		UnitPrice:   row.UnitPrice,
		ProductName: row.ProductName,
		SKU:         row.SKU,
		Unit:        row.Unit,
		UpdatedAt:   row.UpdatedAt,
	}
}

// AdjustInput applies a signed delta to one balance.
type AdjustInput struct {
	OwnerID   uuid.UUID
	ProductID uuid.UUID
	Delta     decimal.Decimal
	// UnitPrice replaces the owner's price when set; required to open a balance.
	UnitPrice *decimal.Decimal
	Bucket    enums.StockBucket
}

// AdjustResult reports the balance after the write. Balance is nil when the
// row was deleted.
type AdjustResult struct {
	Balance       *Balance        `json:"balance,omitempty"`
	Deleted       bool            `json:"deleted"`
	FinalQuantity decimal.Decimal `json:"final_quantity"`
}

// TransferInput moves quantity from the seller's INVENTORY to the buyer.
type TransferInput struct {
	SellerID  uuid.UUID
	BuyerID   uuid.UUID
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	// BuyerUnitPrice seeds the buyer's price only when the buyer has no
	// balance yet.
	BuyerUnitPrice decimal.Decimal
}

// TransferResult describes both sides of a committed transfer.
type TransferResult struct {
	SellerRemaining decimal.Decimal   `json:"seller_remaining"`
	SellerDeleted   bool              `json:"seller_deleted"`
	BuyerBucket     enums.StockBucket `json:"buyer_bucket"`
	BuyerQuantity   decimal.Decimal   `json:"buyer_quantity"`
	BuyerCreated    bool              `json:"buyer_created"`
}

// ReturnInput moves quantity back into the seller's INVENTORY when a trade
// is reversed. FromOwnerID is nil for walk-in sales, whose goods left the
// ledger entirely.
type ReturnInput struct {
	FromOwnerID *uuid.UUID
	FromBucket  enums.StockBucket
	ToOwnerID   uuid.UUID
	ProductID   uuid.UUID
	Quantity    decimal.Decimal
	// UnitPrice seeds the seller's balance only if it was drained meanwhile.
	UnitPrice decimal.Decimal
}

// Availability is the answer to "can owner ship qty of product". UnitPrice
// is the owner's current selling price, zero when nothing is held.
type Availability struct {
	Sufficient bool            `json:"sufficient"`
	Available  decimal.Decimal `json:"available"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}
