package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/armorylabs/armory-backend/api/responses"
	"github.com/armorylabs/armory-backend/api/validators"
	productsvc "github.com/armorylabs/armory-backend/internal/products"
	"github.com/armorylabs/armory-backend/pkg/db/models"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type priceFormatter interface {
	Format(ctx context.Context, amountUSD decimal.Decimal, cur enums.Currency, loc language.Tag) (string, error)
}

type productTierResponse struct {
	Duration string `json:"duration"`
	PriceUSD string `json:"price_usd"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type productResponse struct {
	ID          string                `json:"id"`
	Slug        string                `json:"slug"`
	Name        string                `json:"name"`
	Game        string                `json:"game"`
	Image       string                `json:"image,omitempty"`
	Description string                `json:"description,omitempty"`
	Tiers       []productTierResponse `json:"tiers"`
}

// ListProducts returns the active catalog with prices rendered in the
// requested display currency.
func ListProducts(svc productsvc.Service, prices priceFormatter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		ccy, err := validators.ParseCurrencyQuery(r, "currency")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loc := validators.ParseLocale(r, "locale")

		items, err := svc.ListProducts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]productResponse, 0, len(items))
		for i := range items {
			dto, err := toProductResponse(r.Context(), &items[i], prices, ccy, loc)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out = append(out, *dto)
		}
		responses.WriteSuccess(w, out)
	}
}

// GetProduct returns one product by slug.
func GetProduct(svc productsvc.Service, prices priceFormatter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required"))
			return
		}

		ccy, err := validators.ParseCurrencyQuery(r, "currency")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loc := validators.ParseLocale(r, "locale")

		product, err := svc.GetProduct(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := toProductResponse(r.Context(), product, prices, ccy, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func toProductResponse(ctx context.Context, product *models.Product, prices priceFormatter, ccy enums.Currency, loc language.Tag) (*productResponse, error) {
	dto := &productResponse{
		ID:          product.ID.String(),
		Slug:        product.Slug,
		Name:        product.Name,
		Game:        product.Game,
		Image:       product.Image,
		Description: product.Description,
		Tiers:       make([]productTierResponse, 0, len(product.Tiers)),
	}
	for _, tier := range product.Tiers {
		display := ""
		if prices != nil {
			formatted, err := prices.Format(ctx, tier.PriceUSD, ccy, loc)
			if err != nil {
				return nil, err
			}
			display = formatted
		}
		dto.Tiers = append(dto.Tiers, productTierResponse{
			Duration: tier.Duration,
			PriceUSD: tier.PriceUSD.StringFixed(2),
			Price:    display,
			Currency: ccy.String(),
		})
	}
	return dto, nil
}
