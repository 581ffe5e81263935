package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/money"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockReturner puts goods back into the seller's inventory.
type StockReturner interface {
	ReturnStockTx(ctx context.Context, tx *gorm.DB, input stock.ReturnInput) error
}

// InvoiceCanceller voids the invoice attached to a transaction, if any.
type InvoiceCanceller interface {
	CancelForTransactionTx(ctx context.Context, tx *gorm.DB, transactionID, actorID uuid.UUID) error
}

// Service records trades and reverses them on request.
type Service interface {
	RecordTransaction(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error)
	FindTransactionTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error)
	CancelTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*Transaction, error)
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	Get(ctx context.Context, transactionID, actorID uuid.UUID) (*Transaction, error)
	List(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[Transaction], error)
}

// ServiceParams wires the transaction recorder.
type ServiceParams struct {
	Repo     Repository
	Stock    StockReturner
	Invoices InvoiceCanceller
	Tx       txRunner
	Outbox   outboxPublisher
	Retry    db.RetryPolicy
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	stock    StockReturner
	invoices InvoiceCanceller
	tx       txRunner
	outbox   outboxPublisher
	retry    db.RetryPolicy
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
}

// NewService builds the transaction recorder with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock returner required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice canceller required")
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
		repo:     params.Repo,
		stock:    params.Stock,
		invoices: params.Invoices,
		tx:       params.Tx,
		outbox:   params.Outbox,
		retry:    retry,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// RecordTransaction persists a completed trade inside tx.
func (s *service) RecordTransaction(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error) {
	if err := validateRecord(input); err != nil {
		return nil, err
	}

	items := make([]models.TransactionItem, 0, len(input.Items))
	priced := make([]models.LineItem, 0, len(input.Items))
	for i, item := range input.Items {
		line := lineitems.Price(item)
		priced = append(priced, line)
		items = append(items, models.TransactionItem{Position: i, LineItem: line})
	}
	totals := lineitems.Totals(priced)

	txn := &models.Transaction{
		SellerID:    *input.Seller.ID,
		SellerName:  input.Seller.Name,
		SellerRole:  input.Seller.Role,
		BuyerID:     input.Buyer.ID,
		BuyerName:   input.Buyer.Name,
		BuyerRole:   input.Buyer.Role,
		Type:        input.Type,
		Status:      enums.TransactionStatusCompleted,
		Subtotal:    totals.Subtotal,
		TotalVAT:    totals.TotalVAT,
		TotalAmount: totals.TotalAmount,
		OrderID:     input.OrderID,
		OccurredAt:  time.Now().UTC(),
		Items:       items,
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		if db.IsRetryable(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}
	if err := s.emit(ctx, tx, enums.EventTransactionRecorded, txn, txn.SellerID); err != nil {
		return nil, err
	}
	return txn, nil
}

// FindTransactionTx loads a transaction with its items inside tx.
func (s *service) FindTransactionTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error) {
	return s.load(ctx, tx, transactionID)
}

// CancelTransaction reverses a completed trade: goods go back to the
// seller's inventory and the invoice is voided.
func (s *service) CancelTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*Transaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var out *Transaction
	err := s.withRetry(ctx, "cancel_transaction", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			txn, err := s.load(ctx, tx, transactionID)
			if err != nil {
				return err
			}
			if actorID != txn.SellerID {
				return s.denied(ctx, txn, actorID, "cancel transaction")
			}
			if txn.Status == enums.TransactionStatusCancelled {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already cancelled").
					WithDetails(map[string]any{"transaction_id": txn.ID})
			}

			for _, item := range txn.Items {
				input := stock.ReturnInput{
					ToOwnerID: txn.SellerID,
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					UnitPrice: item.UnitPrice,
				}
				if !txn.IsWalkIn() {
					input.FromOwnerID = txn.BuyerID
					input.FromBucket = txn.BuyerRole.IncomingBucket()
				}
				if err := s.stock.ReturnStockTx(ctx, tx, input); err != nil {
					return err
				}
			}

			now := time.Now().UTC()
			if err := s.repo.WithTx(tx).MarkCancelled(ctx, txn.ID, actorID, now); err != nil {
				return err
			}
			txn.Status = enums.TransactionStatusCancelled
			txn.CancelledAt = &now
			txn.CancelledBy = &actorID

			if err := s.invoices.CancelForTransactionTx(ctx, tx, txn.ID, actorID); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, enums.EventTransactionCancelled, txn, actorID); err != nil {
				return err
			}
			view := FromModel(*txn)
			out = &view
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": transactionID.String(),
		"actor_id":       actorID.String(),
	})
	s.logg.Info(logCtx, "transaction cancelled")
	return out, nil
}

// Stats totals completed sales and purchases for userID. TotalSales and
// TotalPurchases are item quantities; a user never trades with itself, so
// TotalTransactions is the sum of both counts.
func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	sales, err := s.repo.SumCompleted(ctx, "seller_id", userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sales")
	}
	purchases, err := s.repo.SumCompleted(ctx, "buyer_id", userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum purchases")
	}
	revenue := sales.Amount.Round(money.Scale)
	expense := purchases.Amount.Round(money.Scale)
	return &Stats{
		TotalTransactions: sales.Count + purchases.Count,
		SalesCount:        sales.Count,
		PurchasesCount:    purchases.Count,
		TotalSales:        sales.Quantity,
		TotalPurchases:    purchases.Quantity,
		SalesRevenue:      revenue,
		PurchasesExpense:  expense,
		NetRevenue:        revenue.Sub(expense),
	}, nil
}

func (s *service) Get(ctx context.Context, transactionID, actorID uuid.UUID) (*Transaction, error) {
	txn, err := s.load(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if actorID != txn.SellerID && (txn.BuyerID == nil || *txn.BuyerID != actorID) {
		return nil, s.denied(ctx, txn, actorID, "read transaction")
	}
	view := FromModel(*txn)
	return &view, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[Transaction], error) {
	if userID == uuid.Nil {
		return pagination.Page[Transaction]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if side == "" {
		side = enums.TradeSideAll
	}
	if !side.IsValid() {
		return pagination.Page[Transaction]{}, pkgerrors.New(pkgerrors.CodeValidation, "view must be seller, buyer or all").
			WithDetails(map[string]any{"field": "view"})
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[Transaction]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, userID, side, cursor, params.Limit)
	if err != nil {
		return pagination.Page[Transaction]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.Transaction) pagination.Cursor {
		return pagination.Cursor{At: row.OccurredAt, ID: row.ID}
	})
	items := make([]Transaction, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, FromModel(row))
	}
	return pagination.Page[Transaction]{Items: items, NextCursor: page.NextCursor}, nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.WithTx(tx).FindByID(ctx, transactionID)
	if err != nil {
		return nil, repo.MapLookupError(err, "transaction")
	}
	return txn, nil
}

func (s *service) denied(ctx context.Context, txn *models.Transaction, actorID uuid.UUID, action string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"actor_id":       actorID.String(),
		"action":         action,
	})
	s.logg.Security(logCtx, "transaction access denied")
	return pkgerrors.New(pkgerrors.CodeForbidden, "not permitted for this transaction")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.Transaction, actorID uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.TransactionEvent{
			TransactionID: txn.ID,
			SellerID:      txn.SellerID,
			BuyerID:       txn.BuyerID,
			OrderID:       txn.OrderID,
			Type:          txn.Type,
			Status:        txn.Status,
			TotalAmount:   txn.TotalAmount,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transaction event")
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

func validateRecord(input RecordInput) error {
	if input.Seller.ID == nil || *input.Seller.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller required")
	}
	if !input.Seller.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid seller role")
	}
	if input.Buyer.ID == nil && input.Buyer.Role != enums.RoleWalkInCustomer {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer required")
	}
	if input.Buyer.ID != nil && *input.Buyer.ID == *input.Seller.ID {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller and buyer must differ")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"item": i})
		}
		if item.Quantity.LessThan(money.MinQuantity) {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity below minimum").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
		if item.UnitPrice.LessThan(money.MinPrice) {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price below minimum").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
		if !money.ValidVATRate(item.VATRate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "vat rate out of range").
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
	}
	return nil
}
