package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/pkg/db/models"
)

// Repository exposes persistence operations for the catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListActive loads active products with their tiers, storefront order.
func (r *Repository) ListActive(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// FindBySlug loads a single product with tiers by its storefront slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("slug = ?", slug).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByID loads a single product with tiers by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
