package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a copy that runs against tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// MapLookupError turns a failed single-row read into the API taxonomy:
// a missing row is NOT_FOUND, anything else is a dependency failure.
func MapLookupError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

// ForParty restricts q to rows where userID sits on the given side. The
// table must carry seller_id and buyer_id columns.
func ForParty(q *gorm.DB, userID uuid.UUID, side enums.TradeSide) *gorm.DB {
	switch side {
	case enums.TradeSideSeller:
		return q.Where("seller_id = ?", userID)
	case enums.TradeSideBuyer:
		return q.Where("buyer_id = ?", userID)
	default:
		return q.Where("seller_id = ? OR buyer_id = ?", userID, userID)
	}
}
