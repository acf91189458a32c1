package coupons

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/pkg/db/models"
)

// Repository exposes persistence operations for coupon definitions.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a coupon repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode loads a coupon by its (case-insensitive) code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var row models.Coupon
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(code)).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// IncrementUses bumps the redemption counter inside the caller's transaction.
func (r *Repository) IncrementUses(tx *gorm.DB, code string) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Coupon{}).
		Where("UPPER(code) = ?", strings.ToUpper(code)).
		Update("uses", gorm.Expr("uses + 1")).Error
}
