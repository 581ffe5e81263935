package stock

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

// Reasons carried in details.reason so callers can tell the ledger's
// failure modes apart without new HTTP codes.
const (
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonPriceRequired     = "price_required"
	ReasonInvalidPrice      = "invalid_price"
	ReasonSellerHasNoStock  = "seller_has_no_stock"
	ReasonInsufficientStock = "insufficient_stock"
)

func errInvalidQuantity(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"reason": ReasonInvalidQuantity})
}

func errPriceRequired() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unit price required to open a balance").
		WithDetails(map[string]any{"reason": ReasonPriceRequired})
}

func errInvalidPrice() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unit price below minimum").
		WithDetails(map[string]any{"reason": ReasonInvalidPrice, "minimum": minPriceString})
}

func errSellerHasNoStock(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "seller does not hold this product in inventory").
		WithDetails(map[string]any{
			"reason":     ReasonSellerHasNoStock,
			"product_id": productID,
			"available":  decimal.Zero,
		})
}

func errInsufficientStock(productID uuid.UUID, available, requested decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"reason":     ReasonInsufficientStock,
			"product_id": productID,
			"available":  available,
			"requested":  requested,
		})
}

// Reason extracts details.reason from a ledger error, or "".
func Reason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
