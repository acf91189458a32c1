package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/pkg/db/models"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

// ProductRepository is the persistence surface the service needs.
type ProductRepository interface {
	ListActive(ctx context.Context) ([]models.Product, error)
	FindBySlug(ctx context.Context, slug string) (*models.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// TierDetail is the canonical pricing record for one product tier. The
// cart builds its lines from this, never from client-supplied prices.
type TierDetail struct {
	ProductID uuid.UUID
	Slug      string
	Name      string
	Game      string
	Image     string
	Duration  string
	PriceUSD  decimal.Decimal
}

// Service exposes catalog reads for the storefront and the cart.
type Service interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, slug string) (*models.Product, error)
	GetTier(ctx context.Context, productID uuid.UUID, duration string) (*TierDetail, error)
}

type service struct {
	repo ProductRepository
}

// NewService builds the catalog service.
func NewService(repo ProductRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

// ListProducts returns the active catalog.
func (s *service) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return rows, nil
}

// GetProduct returns one product by slug, active or not.
func (s *service) GetProduct(ctx context.Context, slug string) (*models.Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required")
	}
	row, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return row, nil
}

// GetTier resolves the canonical price for a (product, duration) pair.
// Inactive products and unknown durations both come back not-found.
func (s *service) GetTier(ctx context.Context, productID uuid.UUID, duration string) (*TierDetail, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration is required")
	}

	row, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !row.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	for _, tier := range row.Tiers {
		if tier.Duration == duration {
			return &TierDetail{
				ProductID: row.ID,
				Slug:      row.Slug,
				Name:      row.Name,
				Game:      row.Game,
				Image:     row.Image,
				Duration:  tier.Duration,
				PriceUSD:  tier.PriceUSD,
			}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product tier not found")
}
