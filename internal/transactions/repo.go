package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists transaction records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	MarkCancelled(ctx context.Context, id, actorID uuid.UUID, at time.Time) error
	ListForUser(ctx context.Context, userID uuid.UUID, side enums.TradeSide, cursor *pagination.Cursor, limit int) ([]models.Transaction, error)
	SumCompleted(ctx context.Context, column string, userID uuid.UUID) (Summary, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.base.DB(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var row models.Transaction
	err := r.base.DB(ctx).
		Preload("Items", orderedItems).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkCancelled flips a completed record. A record already cancelled by a
// concurrent call yields db.ErrStaleWrite.
func (r *repository) MarkCancelled(ctx context.Context, id, actorID uuid.UUID, at time.Time) error {
	res := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusCompleted).
		Updates(map[string]any{
			"status":       enums.TransactionStatusCancelled,
			"cancelled_at": at,
			"cancelled_by": actorID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrStaleWrite
	}
	return nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, side enums.TradeSide, cursor *pagination.Cursor, limit int) ([]models.Transaction, error) {
	q := repo.ForParty(r.base.DB(ctx).
		Model(&models.Transaction{}).
		Preload("Items", orderedItems), userID, side)
	var rows []models.Transaction
	if err := pagination.Apply(q, "occurred_at", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Summary aggregates completed records on one side of a trade.
type Summary struct {
	Count    int64
	Amount   decimal.Decimal
	Quantity decimal.Decimal
}

type sumRow struct {
	Count int64
	Total decimal.NullDecimal
}

// SumCompleted counts completed records where column equals userID and totals
// their amounts and item quantities. column is seller_id or buyer_id.
func (r *repository) SumCompleted(ctx context.Context, column string, userID uuid.UUID) (Summary, error) {
	var amounts sumRow
	err := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Select("COUNT(*) AS count, SUM(total_amount) AS total").
		Where(column+" = ? AND status = ?", userID, enums.TransactionStatusCompleted).
		Scan(&amounts).Error
	if err != nil {
		return Summary{}, err
	}

	var quantities sumRow
	err = r.base.DB(ctx).
		Table("transaction_items AS ti").
		Select("COUNT(DISTINCT t.id) AS count, SUM(ti.quantity) AS total").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Where("t."+column+" = ? AND t.status = ?", userID, enums.TransactionStatusCompleted).
		Scan(&quantities).Error
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Count:    amounts.Count,
		Amount:   orZero(amounts.Total),
		Quantity: orZero(quantities.Total),
	}, nil
}

func orZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
