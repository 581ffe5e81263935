package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	internalorders "github.com/angelmondragon/stockledger-backend/internal/orders"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

const (
	maxNotesLength  = 1000
	maxReasonLength = 500

	viewSeller = "seller"
	viewBuyer  = "buyer"
)

type createOrderItem struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type createOrderRequest struct {
	SellerID uuid.UUID         `json:"seller_id" validate:"required"`
	Items    []createOrderItem `json:"items" validate:"required,min=1,dive"`
	Notes    *string           `json:"notes"`
}

type confirmOrderRequest struct {
	ResalePrice *decimal.Decimal `json:"resale_price"`
}

type rejectOrderRequest struct {
	Reason *string `json:"reason"`
}

// Create places a PENDING order from the caller to the named seller.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		buyerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalorders.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalorders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			BuyerID:  buyerID,
			SellerID: payload.SellerID,
			Items:    items,
			Notes:    sanitized(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List pages through the caller's orders as seller (default) or buyer.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		var page pagination.Page[internalorders.Order]
		switch view := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view"))); view {
		case "", viewSeller:
			page, err = svc.ListSellerOrders(r.Context(), actorID, status, params)
		case viewBuyer:
			page, err = svc.ListBuyerOrders(r.Context(), actorID, status, params)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "view must be seller or buyer").
				WithDetails(map[string]any{"field": "view"}))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order to its seller or buyer.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actorID, ok := orderAndActor(w, r, svc, logg)
		if !ok {
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Confirm moves the stock, records the sale and issues the invoice.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actorID, ok := orderAndActor(w, r, svc, logg)
		if !ok {
			return
		}

		var payload confirmOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.ConfirmOrder(r.Context(), internalorders.ConfirmOrderInput{
			OrderID:     orderID,
			ActorID:     actorID,
			ResalePrice: payload.ResalePrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// IssueInvoice lets the seller generate the invoice of a confirmed order when
// the confirmation itself could not.
func IssueInvoice(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actorID, ok := orderAndActor(w, r, svc, logg)
		if !ok {
			return
		}
		invoice, err := svc.IssueInvoice(r.Context(), orderID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// Reject closes a pending order on the seller side.
func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actorID, ok := orderAndActor(w, r, svc, logg)
		if !ok {
			return
		}

		var payload rejectOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.RejectOrder(r.Context(), orderID, actorID, sanitized(payload.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel withdraws a pending order on the buyer side.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actorID, ok := orderAndActor(w, r, svc, logg)
		if !ok {
			return
		}
		order, err := svc.CancelOrder(r.Context(), orderID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func orderAndActor(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return uuid.Nil, uuid.Nil, false
	}
	actorID, err := middleware.ActorID(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := validators.ParseURLUUID(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return orderID, actorID, true
}

func sanitized(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	if clean == "" {
		return nil
	}
	return &clean
}
