// Package users reads the identity service's users table for names and roles.
package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/repo"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

// Profile is the identity snapshot stamped onto orders and documents.
type Profile struct {
	ID    uuid.UUID  `json:"id"`
	Name  string     `json:"name"`
	Role  enums.Role `json:"role"`
	Phone *string    `json:"phone,omitempty"`
}

// Reader resolves users by id.
type Reader interface {
	WithTx(tx *gorm.DB) Reader
	GetUserRole(ctx context.Context, userID uuid.UUID) (enums.Role, error)
	GetUserProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

type repository struct {
	base repo.Base
}

// NewRepository constructs a users reader bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Reader {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Reader {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) GetUserRole(ctx context.Context, userID uuid.UUID) (enums.Role, error) {
	profile, err := r.GetUserProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}

// GetUserProfile fails with DEPENDENCY_ERROR when the stored role is not one
// the ledger understands.
func (r *repository) GetUserProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	var user models.User
	if err := r.base.DB(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, repo.MapLookupError(err, "user")
	}
	if !user.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user has unknown role").
			WithDetails(map[string]any{"user_id": user.ID, "role": user.Role})
	}
	return &Profile{ID: user.ID, Name: user.Name, Role: user.Role, Phone: user.Phone}, nil
}
