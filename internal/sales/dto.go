package sales

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
)

// WalkInCustomerName is stamped on the record when the seller leaves the
// customer anonymous.
const WalkInCustomerName = "Walk-in Customer"

// ItemInput is one line of a counter sale. UnitPrice overrides the seller's
// balance price when set.
type ItemInput struct {
	ProductID uuid.UUID        `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// DirectSaleInput sells goods from the seller's inventory to a customer who
// has no account.
type DirectSaleInput struct {
	SellerID      uuid.UUID
	Items         []ItemInput
	CustomerName  *string
	CustomerPhone *string
}

// AccountItemInput is one line sold to an account holder. UnitPrice is the
// sale price and defaults to the seller's balance price. BuyerUnitPrice
// seeds the buyer's own selling price and defaults to the sale price.
type AccountItemInput struct {
	ProductID      uuid.UUID        `json:"product_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	BuyerUnitPrice *decimal.Decimal `json:"buyer_unit_price,omitempty"`
}

// AccountSaleInput sells goods from the seller's inventory straight to
// another account, without an order.
type AccountSaleInput struct {
	SellerID uuid.UUID
	BuyerID  uuid.UUID
	Items    []AccountItemInput
	Notes    *string
}

// Result is the outcome of a direct sale.
type Result struct {
	Transaction transactions.Transaction `json:"transaction"`
	Invoice     invoices.Invoice         `json:"invoice"`
}
