package stock

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	internalstock "github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type adjustRequest struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	Delta     decimal.Decimal  `json:"delta"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Bucket    string           `json:"bucket" validate:"required,oneof=INVENTORY RAW_MATERIAL"`
}

// Balances lists an owner's balances. owner_id defaults to the caller.
func Balances(svc internalstock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		ownerID, err := ownerFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var bucket *enums.StockBucket
		if raw := strings.TrimSpace(r.URL.Query().Get("bucket")); raw != "" {
			parsed, err := enums.ParseStockBucket(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bucket"))
				return
			}
			bucket = &parsed
		}

		balances, err := svc.GetOwnerBalances(r.Context(), ownerID, bucket)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}

// Availability answers whether an owner can ship a quantity of a product.
func Availability(svc internalstock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		ownerID, err := ownerFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, ok, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required").
				WithDetails(map[string]any{"field": "product_id"}))
			return
		}
		quantity, err := validators.ParseQueryDecimal(r, "quantity")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !quantity.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"field": "quantity"}))
			return
		}

		responses.WriteSuccess(w, svc.CheckAvailability(r.Context(), ownerID, productID, quantity))
	}
}

// Adjust applies a signed delta to one of the caller's own balances. The
// bucket must be one the caller's role may hold.
func Adjust(svc internalstock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		ownerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bucket := enums.StockBucket(payload.Bucket)

		role := middleware.RoleFromContext(r.Context())
		if !roleHolds(role, bucket) {
			if logg != nil {
				ctx := logg.WithFields(r.Context(), map[string]any{"role": role.String(), "bucket": bucket.String()})
				logg.Security(ctx, "stock.adjust.bucket_denied")
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot hold this bucket").
				WithDetails(map[string]any{"role": role, "bucket": bucket}))
			return
		}

		result, err := svc.AdjustBalance(r.Context(), internalstock.AdjustInput{
			OwnerID:   ownerID,
			ProductID: payload.ProductID,
			Delta:     payload.Delta,
			UnitPrice: payload.UnitPrice,
			Bucket:    bucket,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func roleHolds(role enums.Role, bucket enums.StockBucket) bool {
	switch bucket {
	case enums.StockBucketInventory:
		return role.HasInventory()
	case enums.StockBucketRawMaterial:
		return role.HasRawMaterials()
	}
	return false
}

func ownerFromQuery(r *http.Request) (uuid.UUID, error) {
	ownerID, ok, err := validators.ParseQueryUUID(r, "owner_id")
	if err != nil {
		return uuid.Nil, err
	}
	if ok {
		return ownerID, nil
	}
	return middleware.ActorID(r.Context())
}
