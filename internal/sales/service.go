// Package sales records sales made without an order: counter sales to
// walk-in customers, where stock leaves the ledger and the invoice is settled
// on the spot, and direct sales to another account holder, where stock moves
// into the buyer's ledger and the invoice runs on trade terms.
package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/money"
)

// ReasonRoleNotPermitted marks a sale the capability matrix forbids.
const ReasonRoleNotPermitted = "role_not_permitted"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger is the slice of the stock ledger a sale needs.
type Ledger interface {
	CheckAvailabilityTx(ctx context.Context, tx *gorm.DB, ownerID, productID uuid.UUID, requested decimal.Decimal) stock.Availability
	AdjustBalanceTx(ctx context.Context, tx *gorm.DB, input stock.AdjustInput) (*stock.AdjustResult, error)
	TransferStockTx(ctx context.Context, tx *gorm.DB, input stock.TransferInput) (*stock.TransferResult, error)
}

// TransactionRecorder writes the SALE record.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, tx *gorm.DB, input transactions.RecordInput) (*models.Transaction, error)
}

// InvoiceGenerator writes the sale invoice.
type InvoiceGenerator interface {
	GenerateInvoice(ctx context.Context, tx *gorm.DB, input invoices.GenerateInput) (*models.Invoice, error)
}

// Service sells to walk-in customers and to account holders.
type Service interface {
	DirectSale(ctx context.Context, input DirectSaleInput) (*Result, error)
	SellToAccount(ctx context.Context, input AccountSaleInput) (*Result, error)
}

type ServiceParams struct {
	Ledger       Ledger
	Transactions TransactionRecorder
	Invoices     InvoiceGenerator
	Catalog      catalog.Reader
	Users        users.Reader
	Tx           txRunner
	Retry        db.RetryPolicy
	Metrics      *metrics.LedgerMetrics
	Logger       *logger.Logger
}

type service struct {
	ledger       Ledger
	transactions TransactionRecorder
	invoices     InvoiceGenerator
	catalog      catalog.Reader
	users        users.Reader
	tx           txRunner
	retry        db.RetryPolicy
	metrics      *metrics.LedgerMetrics
	logg         *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
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
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retry := params.Retry
	if retry.Attempts == 0 {
		retry = db.DefaultRetryPolicy()
	}
	return &service{
		ledger:       params.Ledger,
		transactions: params.Transactions,
		invoices:     params.Invoices,
		catalog:      params.Catalog,
		users:        params.Users,
		tx:           params.Tx,
		retry:        retry,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// DirectSale drains the seller's INVENTORY, records the SALE and writes a
// paid invoice in one database transaction.
func (s *service) DirectSale(ctx context.Context, input DirectSaleInput) (*Result, error) {
	if err := validateSale(input); err != nil {
		return nil, err
	}
	buyerName := WalkInCustomerName
	if input.CustomerName != nil && strings.TrimSpace(*input.CustomerName) != "" {
		buyerName = strings.TrimSpace(*input.CustomerName)
	}
	phone := "N/A"
	if input.CustomerPhone != nil && strings.TrimSpace(*input.CustomerPhone) != "" {
		phone = strings.TrimSpace(*input.CustomerPhone)
	}
	notes := "Walk-in customer sale. Phone: " + phone

	var (
		txn *models.Transaction
		inv *models.Invoice
	)
	err := s.withRetry(ctx, "direct_sale", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			seller, err := s.users.WithTx(tx).GetUserProfile(ctx, input.SellerID)
			if err != nil {
				return err
			}
			if !seller.Role.HasInventory() {
				return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("a %s holds no inventory to sell", seller.Role))
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
					return errItemUnavailable(i, product, avail, item.Quantity)
				}
				price := avail.UnitPrice
				if item.UnitPrice != nil {
					price = *item.UnitPrice
				}
				if _, err := s.ledger.AdjustBalanceTx(ctx, tx, stock.AdjustInput{
					OwnerID:   seller.ID,
					ProductID: product.ID,
					Delta:     item.Quantity.Neg(),
					Bucket:    enums.StockBucketInventory,
				}); err != nil {
					return err
				}
				lines = append(lines, lineitems.Build(product, item.Quantity, price))
			}

			sellerID := seller.ID
			recorded, err := s.transactions.RecordTransaction(ctx, tx, transactions.RecordInput{
				Seller: transactions.Party{ID: &sellerID, Name: seller.Name, Role: seller.Role},
				Buyer:  transactions.Party{Name: buyerName, Role: enums.RoleWalkInCustomer},
				Items:  lines,
				Type:   enums.TransactionTypeSale,
			})
			if err != nil {
				return err
			}
			generated, err := s.invoices.GenerateInvoice(ctx, tx, invoices.GenerateInput{
				Transaction: recorded,
				WalkIn:      true,
				Notes:       &notes,
			})
			if err != nil {
				return err
			}
			txn, inv = recorded, generated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"seller_id":      txn.SellerID.String(),
		"transaction_id": txn.ID.String(),
		"invoice_number": inv.InvoiceNumber,
	})
	s.logg.Info(logCtx, "direct sale recorded")
	return &Result{
		Transaction: transactions.FromModel(*txn),
		Invoice:     invoices.FromModel(*inv),
	}, nil
}

// SellToAccount moves stock from the seller's INVENTORY into the buyer's
// ledger, records the SALE and writes a trade invoice in one database
// transaction. The first failing item aborts the whole sale.
func (s *service) SellToAccount(ctx context.Context, input AccountSaleInput) (*Result, error) {
	if err := validateAccountSale(input); err != nil {
		return nil, err
	}

	var (
		txn *models.Transaction
		inv *models.Invoice
	)
	err := s.withRetry(ctx, "account_sale", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			people := s.users.WithTx(tx)
			seller, err := people.GetUserProfile(ctx, input.SellerID)
			if err != nil {
				return err
			}
			buyer, err := people.GetUserProfile(ctx, input.BuyerID)
			if err != nil {
				return err
			}
			if !seller.Role.CanSellTo(buyer.Role) {
				return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("a %s cannot sell to a %s", seller.Role, buyer.Role)).
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
					return errItemUnavailable(i, product, avail, item.Quantity)
				}
				price := avail.UnitPrice
				if item.UnitPrice != nil {
					price = *item.UnitPrice
				}
				resale := price
				if item.BuyerUnitPrice != nil {
					resale = *item.BuyerUnitPrice
				}
				if _, err := s.ledger.TransferStockTx(ctx, tx, stock.TransferInput{
					SellerID:       seller.ID,
					BuyerID:        buyer.ID,
					ProductID:      product.ID,
					Quantity:       item.Quantity,
					BuyerUnitPrice: resale,
				}); err != nil {
					return errForItem(err, i, product)
				}
				lines = append(lines, lineitems.Build(product, item.Quantity, price))
			}

			sellerID, buyerID := seller.ID, buyer.ID
			recorded, err := s.transactions.RecordTransaction(ctx, tx, transactions.RecordInput{
				Seller: transactions.Party{ID: &sellerID, Name: seller.Name, Role: seller.Role},
				Buyer:  transactions.Party{ID: &buyerID, Name: buyer.Name, Role: buyer.Role},
				Items:  lines,
				Type:   enums.TransactionTypeSale,
			})
			if err != nil {
				return err
			}
			generated, err := s.invoices.GenerateInvoice(ctx, tx, invoices.GenerateInput{
				Transaction: recorded,
				Notes:       input.Notes,
			})
			if err != nil {
				return err
			}
			txn, inv = recorded, generated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"seller_id":      txn.SellerID.String(),
		"buyer_id":       input.BuyerID.String(),
		"transaction_id": txn.ID.String(),
		"invoice_number": inv.InvoiceNumber,
	})
	s.logg.Info(logCtx, "account sale recorded")
	return &Result{
		Transaction: transactions.FromModel(*txn),
		Invoice:     invoices.FromModel(*inv),
	}, nil
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

func validateSale(input DirectSaleInput) error {
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
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
				WithDetails(map[string]any{"item": i, "minimum": money.MinQuantity.String()})
		}
		if item.UnitPrice != nil && item.UnitPrice.LessThan(money.MinPrice) {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price below minimum").
				WithDetails(map[string]any{"item": i, "minimum": money.MinPrice.String()})
		}
	}
	return nil
}

func validateAccountSale(input AccountSaleInput) error {
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.BuyerID == input.SellerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot sell to yourself")
	}
	items := make([]ItemInput, 0, len(input.Items))
	for i, item := range input.Items {
		if item.BuyerUnitPrice != nil && item.BuyerUnitPrice.LessThan(money.MinPrice) {
			return pkgerrors.New(pkgerrors.CodeValidation, "buyer unit price below minimum").
				WithDetails(map[string]any{"item": i, "minimum": money.MinPrice.String()})
		}
		items = append(items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return validateSale(DirectSaleInput{SellerID: input.SellerID, Items: items})
}

// errForItem tags a ledger failure with the item that caused it.
func errForItem(err error, index int, product *catalog.Product) error {
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
	details["product_id"] = product.ID
	details["product_name"] = product.Name
	return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("%s: %s", product.Name, typed.Message())).
		WithDetails(details)
}

func errItemUnavailable(index int, product *catalog.Product, avail stock.Availability, requested decimal.Decimal) error {
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
			"requested":    requested,
		})
}
