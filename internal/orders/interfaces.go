package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	TransitionFromPending(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, updates map[string]any) error
	SetInvoice(ctx context.Context, orderID, invoiceID uuid.UUID) error
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

// Ledger is the slice of the stock ledger orders rely on.
type Ledger interface {
	CheckAvailabilityTx(ctx context.Context, tx *gorm.DB, ownerID, productID uuid.UUID, requested decimal.Decimal) stock.Availability
	TransferStockTx(ctx context.Context, tx *gorm.DB, input stock.TransferInput) (*stock.TransferResult, error)
}

// TransactionRecorder writes the SALE record of a confirmed order and reads
// it back when the invoice is issued later.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, tx *gorm.DB, input transactions.RecordInput) (*models.Transaction, error)
	FindTransactionTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error)
}

// InvoiceGenerator derives the invoice of a confirmed order.
type InvoiceGenerator interface {
	GenerateInvoiceFromOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, transaction *models.Transaction) (*models.Invoice, error)
}
