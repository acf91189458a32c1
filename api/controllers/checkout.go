package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armorylabs/armory-backend/api/middleware"
	"github.com/armorylabs/armory-backend/api/responses"
	"github.com/armorylabs/armory-backend/api/validators"
	"github.com/armorylabs/armory-backend/internal/checkout"
	"github.com/armorylabs/armory-backend/pkg/db/models"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type checkoutRequest struct {
	Email         string `json:"email" validate:"required,email"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card crypto"`
	PayCurrency   string `json:"pay_currency" validate:"omitempty,min=3,max=4"`
}

type checkoutResponse struct {
	OrderID       string `json:"order_id"`
	Reference     string `json:"reference"`
	TotalUSD      string `json:"total_usd"`
	PaymentMethod string `json:"payment_method"`
	ClientSecret  string `json:"client_secret,omitempty"`
	InvoiceURL    string `json:"invoice_url,omitempty"`
	PayAddress    string `json:"pay_address,omitempty"`
	PayAmount     string `json:"pay_amount,omitempty"`
	PayCurrency   string `json:"pay_currency,omitempty"`
}

type orderLineItemResponse struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductSlug  string `json:"product_slug"`
	Game         string `json:"game"`
	Duration     string `json:"duration"`
	UnitPriceUSD string `json:"unit_price_usd"`
	Quantity     int    `json:"quantity"`
	LineTotalUSD string `json:"line_total_usd"`
}

type orderResponse struct {
	Reference     string                  `json:"reference"`
	Status        string                  `json:"status"`
	Email         string                  `json:"email"`
	PaymentMethod string                  `json:"payment_method"`
	CouponCode    string                  `json:"coupon_code,omitempty"`
	SubtotalUSD   string                  `json:"subtotal_usd"`
	DiscountUSD   string                  `json:"discount_usd"`
	TotalUSD      string                  `json:"total_usd"`
	LineItems     []orderLineItemResponse `json:"line_items"`
	PaidAt        *time.Time              `json:"paid_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// CheckoutController exposes checkout and order lookup over HTTP.
type CheckoutController struct {
	svc  checkout.Service
	logg *logger.Logger
}

func NewCheckoutController(svc checkout.Service, logg *logger.Logger) (*CheckoutController, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &CheckoutController{svc: svc, logg: logg}, nil
}

// Checkout converts the session's cart into a pending order and returns
// the client-side payment handle.
func (c *CheckoutController) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
			return
		}

		result, err := c.svc.Checkout(r.Context(), sessionID, checkout.Input{
			Email:         payload.Email,
			PaymentMethod: method,
			PayCurrency:   payload.PayCurrency,
		})
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}

		resp := checkoutResponse{
			OrderID:       result.OrderID.String(),
			Reference:     result.Reference,
			TotalUSD:      result.TotalUSD.StringFixed(2),
			PaymentMethod: string(result.PaymentMethod),
			ClientSecret:  result.ClientSecret,
			InvoiceURL:    result.InvoiceURL,
			PayAddress:    result.PayAddress,
			PayCurrency:   result.PayCurrency,
		}
		if !result.PayAmount.IsZero() {
			resp.PayAmount = result.PayAmount.String()
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// GetOrder returns an order by its public reference.
func (c *CheckoutController) GetOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := chi.URLParam(r, "reference")

		order, err := c.svc.GetOrder(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		Reference:     order.Reference,
		Status:        string(order.Status),
		Email:         order.Email,
		PaymentMethod: string(order.PaymentMethod),
		SubtotalUSD:   order.SubtotalUSD.StringFixed(2),
		DiscountUSD:   order.DiscountUSD.StringFixed(2),
		TotalUSD:      order.TotalUSD.StringFixed(2),
		LineItems:     make([]orderLineItemResponse, 0, len(order.LineItems)),
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
	}
	if order.CouponCode != nil {
		resp.CouponCode = *order.CouponCode
	}
	for _, item := range order.LineItems {
		resp.LineItems = append(resp.LineItems, orderLineItemResponse{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductSlug:  item.ProductSlug,
			Game:         item.Game,
			Duration:     item.Duration,
			UnitPriceUSD: item.UnitPriceUSD.StringFixed(2),
			Quantity:     item.Quantity,
			LineTotalUSD: item.LineTotalUSD.StringFixed(2),
		})
	}
	return resp
}
