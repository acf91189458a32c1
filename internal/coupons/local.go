package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/pkg/db/models"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

// CouponFinder is the persistence surface the local validator needs.
type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

type localValidator struct {
	repo CouponFinder
	now  func() time.Time
}

// NewLocalValidator validates coupons against the local coupon table.
func NewLocalValidator(repo CouponFinder) (Validator, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &localValidator{repo: repo, now: time.Now}, nil
}

// Validate checks the code's existence, active flag, validity window and
// redemption cap, then returns its terms.
func (v *localValidator) Validate(ctx context.Context, code string) (*Details, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	row, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	if !row.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid")
	}

	now := v.now()
	if row.StartsAt != nil && now.Before(*row.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid")
	}
	if row.ExpiresAt != nil && now.After(*row.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon code has expired")
	}
	if row.MaxUses > 0 && row.Uses >= row.MaxUses {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon code has expired")
	}

	return &Details{
		Code:  row.Code,
		Type:  row.Type,
		Value: row.Value,
	}, nil
}
