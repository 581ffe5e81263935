package sales

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	internalsales "github.com/angelmondragon/stockledger-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const (
	maxCustomerNameLength  = 120
	maxCustomerPhoneLength = 32
	maxNotesLength         = 1000
)

type saleItem struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type directSaleRequest struct {
	Items         []saleItem `json:"items" validate:"required,min=1,dive"`
	CustomerName  *string    `json:"customer_name"`
	CustomerPhone *string    `json:"customer_phone"`
}

// DirectSale records a counter sale to a walk-in customer out of the
// caller's inventory.
func DirectSale(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		sellerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload directSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalsales.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalsales.ItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}

		result, err := svc.DirectSale(r.Context(), internalsales.DirectSaleInput{
			SellerID:      sellerID,
			Items:         items,
			CustomerName:  trimmed(payload.CustomerName, maxCustomerNameLength),
			CustomerPhone: trimmed(payload.CustomerPhone, maxCustomerPhoneLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type accountSaleItem struct {
	ProductID      uuid.UUID        `json:"product_id" validate:"required"`
	Quantity       decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	BuyerUnitPrice *decimal.Decimal `json:"buyer_unit_price"`
}

type accountSaleRequest struct {
	BuyerID uuid.UUID         `json:"buyer_id" validate:"required"`
	Items   []accountSaleItem `json:"items" validate:"required,min=1,dive"`
	Notes   *string           `json:"notes"`
}

// SellToAccount sells out of the caller's inventory straight to another
// account holder.
func SellToAccount(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		sellerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload accountSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalsales.AccountItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalsales.AccountItemInput{
				ProductID:      item.ProductID,
				Quantity:       item.Quantity,
				UnitPrice:      item.UnitPrice,
				BuyerUnitPrice: item.BuyerUnitPrice,
			})
		}

		result, err := svc.SellToAccount(r.Context(), internalsales.AccountSaleInput{
			SellerID: sellerID,
			BuyerID:  payload.BuyerID,
			Items:    items,
			Notes:    trimmed(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func trimmed(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	if clean == "" {
		return nil
	}
	return &clean
}
