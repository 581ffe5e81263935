package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/docnumber"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/money"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// ReasonRoleNotPermitted marks a trade the capability matrix forbids.
const ReasonRoleNotPermitted = "role_not_permitted"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the order state machine. Every transition starts from PENDING.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	ConfirmOrder(ctx context.Context, input ConfirmOrderInput) (*ConfirmResult, error)
	RejectOrder(ctx context.Context, orderID, actorID uuid.UUID, reason *string) (*Order, error)
	CancelOrder(ctx context.Context, orderID, actorID uuid.UUID) (*Order, error)
	IssueInvoice(ctx context.Context, orderID, actorID uuid.UUID) (*invoices.Invoice, error)
	GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*Order, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (pagination.Page[Order], error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (pagination.Page[Order], error)
}

// ServiceParams wires the order state machine.
type ServiceParams struct {
	Repo         Repository
	Ledger       Ledger
	Transactions TransactionRecorder
	Invoices     InvoiceGenerator
	Catalog      catalog.Reader
	Users        users.Reader
	Tx           txRunner
	Outbox       outboxPublisher
	Retry        db.RetryPolicy
	Metrics      *metrics.LedgerMetrics
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	ledger       Ledger
	transactions TransactionRecorder
	invoices     InvoiceGenerator
	catalog      catalog.Reader
	users        users.Reader
	tx           txRunner
	outbox       outboxPublisher
	retry        db.RetryPolicy
	metrics      *metrics.LedgerMetrics
	logg         *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction recorder required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice generator required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retry := params.Retry
	if retry.Attempts == 0 {
		retry = db.DefaultRetryPolicy()
	}
	return &service{
		repo:         params.Repo,
		ledger:       params.Ledger,
		transactions: params.Transactions,
		invoices:     params.Invoices,
		catalog:      params.Catalog,
		users:        params.Users,
		tx:           params.Tx,
		outbox:       params.Outbox,
		retry:        retry,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// CreateOrder validates the cart against the capability matrix and the
// seller's stock and persists a PENDING order. Stock is not moved.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.withRetry(ctx, "create_order", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			people := s.users.WithTx(tx)
			buyer, err := people.GetUserProfile(ctx, input.BuyerID)
			if err != nil {
				return err
			}
			seller, err := people.GetUserProfile(ctx, input.SellerID)
			if err != nil {
				return err
			}
			if !buyer.Role.CanBuyFrom(seller.Role) {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a %s cannot buy from a %s", buyer.Role, seller.Role)).
					WithDetails(map[string]any{
						"reason":      ReasonRoleNotPermitted,
						"seller_role": seller.Role,
						"buyer_role":  buyer.Role,
					})
			}

			products := s.catalog.WithTx(tx)
			lines := make([]models.LineItem, 0, len(input.Items))
			for i, item := range input.Items {
				product, err := products.GetProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				avail := s.ledger.CheckAvailabilityTx(ctx, tx, seller.ID, product.ID, item.Quantity)
				if !avail.Sufficient {
					return errItemUnavailable(i, product, avail, item)
				}
				lines = append(lines, lineitems.Build(product, item.Quantity, avail.UnitPrice))
			}
			totals := lineitems.Totals(lines)

			store := s.repo.WithTx(tx)
			number, err := docnumber.Allocate(ctx, docnumber.PrefixOrder, time.Now().UTC(), store.NumberExists)
			if err != nil {
				return err
			}
			order := &models.Order{
				OrderNumber: number,
				SellerID:    seller.ID,
				SellerRole:  seller.Role,
				SellerName:  seller.Name,
				BuyerID:     buyer.ID,
				BuyerRole:   buyer.Role,
				BuyerName:   buyer.Name,
				Subtotal:    totals.Subtotal,
				TotalVAT:    totals.TotalVAT,
				TotalAmount: totals.TotalAmount,
				Status:      enums.OrderStatusPending,
				Notes:       input.Notes,
			}
			order.Items = make([]models.OrderItem, 0, len(lines))
			for i, line := range lines {
				order.Items = append(order.Items, models.OrderItem{Position: i, LineItem: line})
			}
			if err := store.Create(ctx, order); err != nil {
				if db.IsRetryable(err) {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: buyer.ID, Role: buyer.Role.String()},
				Data: payloads.OrderCreatedEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					SellerID:    order.SellerID,
					BuyerID:     order.BuyerID,
					ItemCount:   len(order.Items),
					TotalAmount: order.TotalAmount,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
			}
			created = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     created.ID.String(),
		"order_number": created.OrderNumber,
		"seller_id":    created.SellerID.String(),
		"buyer_id":     created.BuyerID.String(),
	})
	s.logg.Info(logCtx, "order created")
	view := FromModel(*created)
	return &view, nil
}

// ConfirmOrder moves every line from seller to buyer, records the SALE and
// marks the order CONFIRMED in one database transaction. The invoice is
// written afterwards; if that fails the confirmation stands and the result is
// flagged Degraded.
func (s *service) ConfirmOrder(ctx context.Context, input ConfirmOrderInput) (*ConfirmResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ResalePrice != nil && input.ResalePrice.LessThan(money.MinPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resale price below minimum").
			WithDetails(map[string]any{"minimum": money.MinPrice.String()})
	}

	var (
		order *models.Order
		txn   *models.Transaction
	)
	err := s.withRetry(ctx, "confirm_order", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := s.loadPending(ctx, tx, input.OrderID, input.ActorID, sellerSide, enums.OrderStatusConfirmed)
			if err != nil {
				return err
			}

			for i, item := range current.Items {
				price := item.UnitPrice
				if input.ResalePrice != nil {
					price = *input.ResalePrice
				}
				_, err := s.ledger.TransferStockTx(ctx, tx, stock.TransferInput{
					SellerID:       current.SellerID,
					BuyerID:        current.BuyerID,
					ProductID:      item.ProductID,
					Quantity:       item.Quantity,
					BuyerUnitPrice: price,
				})
				if err != nil {
					return errForItem(err, i, item)
				}
			}

			lines := make([]models.LineItem, 0, len(current.Items))
			for _, item := range current.Items {
				lines = append(lines, item.LineItem)
			}
			sellerID, buyerID, orderID := current.SellerID, current.BuyerID, current.ID
			recorded, err := s.transactions.RecordTransaction(ctx, tx, transactions.RecordInput{
				Seller:  transactions.Party{ID: &sellerID, Name: current.SellerName, Role: current.SellerRole},
				Buyer:   transactions.Party{ID: &buyerID, Name: current.BuyerName, Role: current.BuyerRole},
				Items:   lines,
				Type:    enums.TransactionTypeSale,
				OrderID: &orderID,
			})
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			err = s.repo.WithTx(tx).TransitionFromPending(ctx, current.ID, enums.OrderStatusConfirmed, map[string]any{
				"confirmed_at":   now,
				"transaction_id": recorded.ID,
			})
			if err != nil {
				return err
			}
			current.Status = enums.OrderStatusConfirmed
			current.ConfirmedAt = &now
			current.TransactionID = &recorded.ID
			current.UpdatedAt = now

			if err := s.emitStatus(ctx, tx, current, input.ActorID); err != nil {
				return err
			}
			order, txn = current, recorded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"order_number":   order.OrderNumber,
		"transaction_id": txn.ID.String(),
	})
	s.logg.Info(logCtx, "order confirmed")

	txnView := transactions.FromModel(*txn)
	result := &ConfirmResult{Transaction: &txnView}

	inv, err := s.attachInvoice(ctx, order, txn)
	if err != nil {
		s.logg.Error(logCtx, "invoice generation failed after confirmation", err)
		result.Degraded = true
	} else {
		order.InvoiceID = &inv.ID
		invView := invoices.FromModel(*inv)
		result.Invoice = &invView
	}
	result.Order = FromModel(*order)
	return result, nil
}

func (s *service) attachInvoice(ctx context.Context, order *models.Order, txn *models.Transaction) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.withRetry(ctx, "generate_invoice", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			generated, err := s.invoices.GenerateInvoiceFromOrder(ctx, tx, order.ID, txn)
			if err != nil {
				return err
			}
			if err := s.repo.WithTx(tx).SetInvoice(ctx, order.ID, generated.ID); err != nil {
				return err
			}
			inv = generated
			return nil
		})
	})
	return inv, err
}

// IssueInvoice generates the invoice a degraded confirmation left missing.
// An order that already has one gets it back unchanged. A confirmed order
// whose transaction was cancelled keeps its CONFIRMED status and cannot be
// invoiced again.
func (s *service) IssueInvoice(ctx context.Context, orderID, actorID uuid.UUID) (*invoices.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		inv     *models.Invoice
		created bool
	)
	err := s.withRetry(ctx, "issue_invoice", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			store := s.repo.WithTx(tx)
			order, err := store.FindForUpdate(ctx, orderID)
			if err != nil {
				return repo.MapLookupError(err, "order")
			}
			if actorID != order.SellerID {
				return s.denied(ctx, order, actorID, "issue invoice")
			}
			if order.Status != enums.OrderStatusConfirmed || order.TransactionID == nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not confirmed").
					WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
			}
			txn, err := s.transactions.FindTransactionTx(ctx, tx, *order.TransactionID)
			if err != nil {
				return err
			}
			if txn.Status == enums.TransactionStatusCancelled {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order transaction was cancelled").
					WithDetails(map[string]any{"order_id": order.ID, "transaction_id": txn.ID})
			}
			generated, err := s.invoices.GenerateInvoiceFromOrder(ctx, tx, order.ID, txn)
			if err != nil {
				return err
			}
			if order.InvoiceID == nil || *order.InvoiceID != generated.ID {
				if err := store.SetInvoice(ctx, order.ID, generated.ID); err != nil {
					return err
				}
				created = true
			}
			inv = generated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if created {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":   orderID.String(),
			"invoice_id": inv.ID.String(),
		})
		s.logg.Info(logCtx, "order invoice issued")
	}
	view := invoices.FromModel(*inv)
	return &view, nil
}

// RejectOrder lets the seller decline a PENDING order. Stock is untouched.
func (s *service) RejectOrder(ctx context.Context, orderID, actorID uuid.UUID, reason *string) (*Order, error) {
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if trimmed == "" {
			reason = nil
		} else {
			reason = &trimmed
		}
	}
	return s.finish(ctx, orderID, actorID, sellerSide, enums.OrderStatusRejected, func(order *models.Order, now time.Time) map[string]any {
		order.RejectedAt = &now
		order.RejectionReason = reason
		return map[string]any{"rejected_at": now, "rejection_reason": reason}
	})
}

// CancelOrder lets the buyer withdraw a PENDING order.
func (s *service) CancelOrder(ctx context.Context, orderID, actorID uuid.UUID) (*Order, error) {
	return s.finish(ctx, orderID, actorID, buyerSide, enums.OrderStatusCancelled, func(order *models.Order, now time.Time) map[string]any {
		order.CancelledAt = &now
		return map[string]any{"cancelled_at": now}
	})
}

func (s *service) finish(ctx context.Context, orderID, actorID uuid.UUID, side partySide, next enums.OrderStatus, apply func(*models.Order, time.Time) map[string]any) (*Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var out *models.Order
	err := s.withRetry(ctx, "order_"+strings.ToLower(next.String()), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.loadPending(ctx, tx, orderID, actorID, side, next)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			updates := apply(order, now)
			if err := s.repo.WithTx(tx).TransitionFromPending(ctx, order.ID, next, updates); err != nil {
				return err
			}
			order.Status = next
			order.UpdatedAt = now
			if err := s.emitStatus(ctx, tx, order, actorID); err != nil {
				return err
			}
			out = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": out.ID.String(),
		"status":   next.String(),
	})
	s.logg.Info(logCtx, "order status changed")
	view := FromModel(*out)
	return &view, nil
}

func (s *service) GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, repo.MapLookupError(err, "order")
	}
	if actorID != order.SellerID && actorID != order.BuyerID {
		return nil, s.denied(ctx, order, actorID, "read order")
	}
	view := FromModel(*order)
	return &view, nil
}

func (s *service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (pagination.Page[Order], error) {
	return s.list(ctx, ListFilter{SellerID: &sellerID, Status: status}, params)
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (pagination.Page[Order], error) {
	return s.list(ctx, ListFilter{BuyerID: &buyerID, Status: status}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[Order], error) {
	if (filter.SellerID != nil && *filter.SellerID == uuid.Nil) || (filter.BuyerID != nil && *filter.BuyerID == uuid.Nil) {
		return pagination.Page[Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return pagination.Page[Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return pagination.Page[Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.Order) pagination.Cursor {
		return pagination.Cursor{At: row.CreatedAt, ID: row.ID}
	})
	items := make([]Order, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, FromModel(row))
	}
	return pagination.Page[Order]{Items: items, NextCursor: page.NextCursor}, nil
}

type partySide int

const (
	sellerSide partySide = iota
	buyerSide
)

// loadPending locks the order and checks that actor is on side and that the
// order may still move to next.
func (s *service) loadPending(ctx context.Context, tx *gorm.DB, orderID, actorID uuid.UUID, side partySide, next enums.OrderStatus) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
	if err != nil {
		return nil, repo.MapLookupError(err, "order")
	}
	owner := order.SellerID
	if side == buyerSide {
		owner = order.BuyerID
	}
	if actorID != owner {
		return nil, s.denied(ctx, order, actorID, "transition order to "+next.String())
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending").
			WithDetails(map[string]any{
				"order_id":  order.ID,
				"status":    order.Status,
				"requested": next,
			})
	}
	return order, nil
}

func (s *service) denied(ctx context.Context, order *models.Order, actorID uuid.UUID, action string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"actor_id": actorID.String(),
		"action":   action,
	})
	s.logg.Security(logCtx, "order access denied")
	return pkgerrors.New(pkgerrors.CodeForbidden, "not permitted for this order")
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error {
	var eventType enums.OutboxEventType
	switch order.Status {
	case enums.OrderStatusConfirmed:
		eventType = enums.EventOrderConfirmed
	case enums.OrderStatusRejected:
		eventType = enums.EventOrderRejected
	case enums.OrderStatusCancelled:
		eventType = enums.EventOrderCancelled
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "no event for order status "+order.Status.String())
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.OrderStatusEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			SellerID:        order.SellerID,
			BuyerID:         order.BuyerID,
			Status:          order.Status,
			TransactionID:   order.TransactionID,
			RejectionReason: order.RejectionReason,
			OccurredAt:      order.UpdatedAt,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
	}
	return nil
}

func (s *service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	policy := s.retry
	policy.OnRetry = func(attempt int, err error) {
		s.metrics.IncRetry(operation)
		logCtx := s.logg.WithFields(ctx, map[string]any{"operation": operation, "attempt": attempt})
		s.logg.Debug(logCtx, "retrying after concurrent update: "+err.Error())
	}
	return policy.Do(ctx, fn)
}

func validateCreate(input CreateOrderInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if input.SellerID == input.BuyerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot order from yourself")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"item": i})
		}
		if _, dup := seen[item.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "product listed more than once").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
		seen[item.ProductID] = struct{}{}
		if item.Quantity.LessThan(money.MinQuantity) {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity below minimum").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID, "minimum": money.MinQuantity.String()})
		}
		if !money.FitsQuantityScale(item.Quantity) {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity has too many decimal places").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
	}
	return nil
}

func errItemUnavailable(index int, product *catalog.Product, avail stock.Availability, item ItemInput) error {
	reason := stock.ReasonInsufficientStock
	if avail.Available.IsZero() {
		reason = stock.ReasonSellerHasNoStock
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", product.Name)).
		WithDetails(map[string]any{
			"reason":       reason,
			"item":         index,
			"product_id":   product.ID,
			"product_name": product.Name,
			"available":    avail.Available,
			"requested":    item.Quantity,
		})
}

// errForItem names the order line a ledger failure belongs to. Conflicts
// pass through untouched so the retry policy still sees them.
func errForItem(err error, index int, item models.OrderItem) error {
	if db.IsRetryable(err) {
		return err
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("transfer item %d", index))
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	details["item"] = index
	details["product_id"] = item.ProductID
	details["product_name"] = item.ProductName
	return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("%s: %s", item.ProductName, typed.Message())).
		WithDetails(details)
}
