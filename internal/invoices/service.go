package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/docnumber"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// DefaultDueDays is the payment term for trade invoices.
const DefaultDueDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service derives invoices from transactions and tracks their settlement.
type Service interface {
	GenerateInvoice(ctx context.Context, tx *gorm.DB, input GenerateInput) (*models.Invoice, error)
	GenerateInvoiceFromOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, transaction *models.Transaction) (*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID, actorID uuid.UUID) (*Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID, actorID uuid.UUID, status enums.InvoiceStatus) (*Invoice, error)
	CancelForTransactionTx(ctx context.Context, tx *gorm.DB, transactionID, actorID uuid.UUID) error
	Get(ctx context.Context, invoiceID, actorID uuid.UUID) (*Invoice, error)
	List(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[Invoice], error)
}

// ServiceParams wires the invoice service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Retry   db.RetryPolicy
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	DueDays int
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	retry   db.RetryPolicy
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	dueDays int
	now     func() time.Time
}

// NewService builds an invoice service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoices repository required")
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
	dueDays := params.DueDays
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		retry:   retry,
		metrics: params.Metrics,
		logg:    params.Logger,
		dueDays: dueDays,
		now:     now,
	}, nil
}

// GenerateInvoice writes the invoice for input.Transaction inside tx. A
// transaction that already has an invoice gets that invoice back.
func (s *service) GenerateInvoice(ctx context.Context, tx *gorm.DB, input GenerateInput) (*models.Invoice, error) {
	txn := input.Transaction
	if txn == nil || txn.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction required")
	}
	if len(txn.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction has no items")
	}
	store := s.repo.WithTx(tx)

	existing, err := store.FindByTransaction(ctx, txn.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	generatedAt := s.now()
	number, err := docnumber.Allocate(ctx, docnumber.PrefixInvoice, generatedAt, store.NumberExists)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		InvoiceNumber: number,
		TransactionID: txn.ID,
		OrderID:       input.OrderID,
		SellerID:      txn.SellerID,
		SellerName:    txn.SellerName,
		SellerRole:    txn.SellerRole,
		BuyerID:       txn.BuyerID,
		BuyerName:     txn.BuyerName,
		BuyerRole:     txn.BuyerRole,
		Subtotal:      txn.Subtotal,
		TotalVAT:      txn.TotalVAT,
		TotalAmount:   txn.TotalAmount,
		Status:        enums.InvoiceStatusGenerated,
		PaymentStatus: enums.InvoicePaymentPending,
		GeneratedAt:   generatedAt,
		DueDate:       generatedAt.AddDate(0, 0, s.dueDays),
		Notes:         input.Notes,
	}
	if input.WalkIn {
		invoice.DueDate = generatedAt
		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaymentStatus = enums.InvoicePaymentPaid
		invoice.PaidAt = &generatedAt
	}
	invoice.Items = make([]models.InvoiceItem, 0, len(txn.Items))
	for i, item := range txn.Items {
		invoice.Items = append(invoice.Items, models.InvoiceItem{Position: i, LineItem: item.LineItem})
	}

	if err := store.Create(ctx, invoice); err != nil {
		if db.IsRetryable(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}
	if err := s.emit(ctx, tx, enums.EventInvoiceGenerated, invoice, txn.SellerID); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *service) GenerateInvoiceFromOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, transaction *models.Transaction) (*models.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.GenerateInvoice(ctx, tx, GenerateInput{Transaction: transaction, OrderID: &orderID})
}

// MarkInvoicePaid settles the invoice. Either party may record the payment;
// a second call is a no-op.
func (s *service) MarkInvoicePaid(ctx context.Context, invoiceID, actorID uuid.UUID) (*Invoice, error) {
	var out *Invoice
	err := s.withRetry(ctx, "mark_invoice_paid", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			invoice, err := s.load(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if actorID != invoice.SellerID && !isBuyer(invoice, actorID) {
				return s.denied(ctx, invoice, actorID, "mark invoice paid")
			}
			if err := s.markPaid(ctx, tx, invoice, actorID); err != nil {
				return err
			}
			view := FromModel(*invoice)
			out = &view
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus lets the seller move the invoice through its lifecycle.
// CANCELLED is final and a PAID invoice can only be cancelled.
func (s *service) UpdateStatus(ctx context.Context, invoiceID, actorID uuid.UUID, status enums.InvoiceStatus) (*Invoice, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status").
			WithDetails(map[string]any{"status": status})
	}
	var out *Invoice
	err := s.withRetry(ctx, "update_invoice_status", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			invoice, err := s.load(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if actorID != invoice.SellerID {
				return s.denied(ctx, invoice, actorID, "update invoice status")
			}
			if status == enums.InvoiceStatusPaid {
				err = s.markPaid(ctx, tx, invoice, actorID)
			} else {
				err = s.transition(ctx, tx, invoice, status, actorID)
			}
			if err != nil {
				return err
			}
			view := FromModel(*invoice)
			out = &view
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelForTransactionTx voids the invoice of a reversed transaction. A
// transaction without an invoice is left alone.
func (s *service) CancelForTransactionTx(ctx context.Context, tx *gorm.DB, transactionID, actorID uuid.UUID) error {
	invoice, err := s.repo.WithTx(tx).FindByTransaction(ctx, transactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return s.transition(ctx, tx, invoice, enums.InvoiceStatusCancelled, actorID)
}

func (s *service) Get(ctx context.Context, invoiceID, actorID uuid.UUID) (*Invoice, error) {
	invoice, err := s.load(ctx, nil, invoiceID)
	if err != nil {
		return nil, err
	}
	if actorID != invoice.SellerID && !isBuyer(invoice, actorID) {
		return nil, s.denied(ctx, invoice, actorID, "read invoice")
	}
	view := FromModel(*invoice)
	return &view, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, side enums.TradeSide, params pagination.Params) (pagination.Page[Invoice], error) {
	if userID == uuid.Nil {
		return pagination.Page[Invoice]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if side == "" {
		side = enums.TradeSideAll
	}
	if !side.IsValid() {
		return pagination.Page[Invoice]{}, pkgerrors.New(pkgerrors.CodeValidation, "view must be seller, buyer or all").
			WithDetails(map[string]any{"field": "view"})
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[Invoice]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, userID, side, cursor, params.Limit)
	if err != nil {
		return pagination.Page[Invoice]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.Invoice) pagination.Cursor {
		return pagination.Cursor{At: row.GeneratedAt, ID: row.ID}
	})
	items := make([]Invoice, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, FromModel(row))
	}
	return pagination.Page[Invoice]{Items: items, NextCursor: page.NextCursor}, nil
}

func (s *service) markPaid(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, actorID uuid.UUID) error {
	switch invoice.Status {
	case enums.InvoiceStatusPaid:
		return nil
	case enums.InvoiceStatusCancelled:
		return errInvalidState(invoice, enums.InvoiceStatusPaid)
	}
	paidAt := s.now()
	err := s.repo.WithTx(tx).UpdateFromStatus(ctx, invoice.ID, invoice.Status, map[string]any{
		"status":         enums.InvoiceStatusPaid,
		"payment_status": enums.InvoicePaymentPaid,
		"paid_at":        paidAt,
	})
	if err != nil {
		return err
	}
	invoice.Status = enums.InvoiceStatusPaid
	invoice.PaymentStatus = enums.InvoicePaymentPaid
	invoice.PaidAt = &paidAt
	return s.emit(ctx, tx, enums.EventInvoicePaid, invoice, actorID)
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, next enums.InvoiceStatus, actorID uuid.UUID) error {
	if invoice.Status == next {
		return nil
	}
	if invoice.Status == enums.InvoiceStatusCancelled ||
		(invoice.Status == enums.InvoiceStatusPaid && next != enums.InvoiceStatusCancelled) {
		return errInvalidState(invoice, next)
	}
	err := s.repo.WithTx(tx).UpdateFromStatus(ctx, invoice.ID, invoice.Status, map[string]any{"status": next})
	if err != nil {
		return err
	}
	invoice.Status = next
	return s.emit(ctx, tx, enums.EventInvoiceStatusChanged, invoice, actorID)
}

func (s *service) load(ctx context.Context, tx *gorm.DB, invoiceID uuid.UUID) (*models.Invoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	invoice, err := s.repo.WithTx(tx).FindByID(ctx, invoiceID)
	if err != nil {
		return nil, repo.MapLookupError(err, "invoice")
	}
	return invoice, nil
}

func (s *service) denied(ctx context.Context, invoice *models.Invoice, actorID uuid.UUID, action string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_id": invoice.ID.String(),
		"actor_id":   actorID.String(),
		"action":     action,
	})
	s.logg.Security(logCtx, "invoice access denied")
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this invoice")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, invoice *models.Invoice, actorID uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.InvoiceEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			TransactionID: invoice.TransactionID,
			SellerID:      invoice.SellerID,
			BuyerID:       invoice.BuyerID,
			Status:        invoice.Status,
			PaymentStatus: invoice.PaymentStatus,
			TotalAmount:   invoice.TotalAmount,
			DueDate:       invoice.DueDate,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit invoice event")
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

func isBuyer(invoice *models.Invoice, actorID uuid.UUID) bool {
	return invoice.BuyerID != nil && *invoice.BuyerID == actorID
}

func errInvalidState(invoice *models.Invoice, next enums.InvoiceStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice status change not allowed").
		WithDetails(map[string]any{
			"invoice_id": invoice.ID,
			"status":     invoice.Status,
			"requested":  next,
		})
}
