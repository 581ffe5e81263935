// Package catalog is the read-only view of the product catalog the ledger
// needs: identity, SKU, unit and VAT rate.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

// Product is the catalog snapshot copied onto balances and document lines.
type Product struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	SKU     string          `json:"sku"`
	Unit    string          `json:"unit"`
	VATRate decimal.Decimal `json:"vat_rate"`
}

// Reader resolves products by id.
type Reader interface {
	WithTx(tx *gorm.DB) Reader
	GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a Reader over the products table.
func NewRepository(db *gorm.DB) Reader {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Reader {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

// GetProduct returns NOT_FOUND when the id is unknown.
func (r *repository) GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	var row models.Product
	if err := r.base.DB(ctx).First(&row, "id = ?", productID).Error; err != nil {
		return nil, repo.MapLookupError(err, "product")
	}
	return FromModel(row), nil
}

// FromModel copies the catalog row into the ledger's snapshot.
func FromModel(row models.Product) *Product {
	return &Product{
		ID:      row.ID,
		Name:    row.Name,
		SKU:     row.SKU,
		Unit:    row.Unit,
		VATRate: row.VATRate,
	}
}
