package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Invoice, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	UpdateFromStatus(ctx context.Context, id uuid.UUID, from enums.InvoiceStatus, updates map[string]any) error
	ListForUser(ctx context.Context, userID uuid.UUID, side enums.TradeSide, cursor *pagination.Cursor, limit int) ([]models.Invoice, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds an invoices repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.base.DB(ctx).Create(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var row models.Invoice
	err := r.base.DB(ctx).
		Preload("Items", orderedItems).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Invoice, error) {
	var row models.Invoice
	err := r.base.DB(ctx).
		Preload("Items", orderedItems).
		First(&row, "transaction_id = ?", transactionID).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.Invoice{}).
		Where("invoice_number = ?", number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateFromStatus applies updates only while the row still has status from.
// Losing that race returns db.ErrStaleWrite.
func (r *repository) UpdateFromStatus(ctx context.Context, id uuid.UUID, from enums.InvoiceStatus, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.base.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrStaleWrite
	}
	return nil
}

// ListForUser returns invoices where the user sits on side, newest first.
func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, side enums.TradeSide, cursor *pagination.Cursor, limit int) ([]models.Invoice, error) {
	q := repo.ForParty(r.base.DB(ctx).
		Model(&models.Invoice{}).
		Preload("Items", orderedItems), userID, side)
	var rows []models.Invoice
	if err := pagination.Apply(q, "generated_at", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
