package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorylabs/armory-backend/api/middleware"
	"github.com/armorylabs/armory-backend/internal/checkout"
	"github.com/armorylabs/armory-backend/pkg/db/models"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type stubCheckoutService struct {
	checkoutFn func(ctx context.Context, sessionID string, input checkout.Input) (*checkout.Result, error)
	getOrderFn func(ctx context.Context, reference string) (*models.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, sessionID string, input checkout.Input) (*checkout.Result, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, sessionID, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubCheckoutService) ConfirmPayment(context.Context, string) error { return nil }

func (s *stubCheckoutService) FailPayment(context.Context, string) error { return nil }

func (s *stubCheckoutService) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	if s.getOrderFn != nil {
		return s.getOrderFn(ctx, reference)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func checkoutTestController(t *testing.T, svc checkout.Service) *CheckoutController {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "checkout-ctrl-test", Output: io.Discard})
	ctrl, err := NewCheckoutController(svc, logg)
	require.NoError(t, err)
	return ctrl
}

func checkoutSessionRequest(target, sessionID string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req = req.WithContext(middleware.WithSessionID(req.Context(), sessionID))
	}
	return req
}

func TestCheckoutCard(t *testing.T) {
	orderID := uuid.New()
	var gotInput checkout.Input
	ctrl := checkoutTestController(t, &stubCheckoutService{
		checkoutFn: func(_ context.Context, sessionID string, input checkout.Input) (*checkout.Result, error) {
			gotInput = input
			return &checkout.Result{
				OrderID:       orderID,
				Reference:     "ARM-AB12CD34",
				TotalUSD:      decimal.RequireFromString("119.98"),
				PaymentMethod: enums.PaymentMethodCard,
				ClientSecret:  "pi_123_secret_456",
			}, nil
		},
	})

	body := []byte(`{"email":"buyer@armorylabs.gg","payment_method":"card"}`)
	rec := httptest.NewRecorder()
	ctrl.Checkout()(rec, checkoutSessionRequest("/api/v1/checkout", "sess-1", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "buyer@armorylabs.gg", gotInput.Email)
	assert.Equal(t, enums.PaymentMethodCard, gotInput.PaymentMethod)

	var envelope struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ARM-AB12CD34", envelope.Data.Reference)
	assert.Equal(t, "119.98", envelope.Data.TotalUSD)
	assert.Equal(t, "pi_123_secret_456", envelope.Data.ClientSecret)
	assert.Empty(t, envelope.Data.InvoiceURL)
	assert.Empty(t, envelope.Data.PayAmount)
}

func TestCheckoutCrypto(t *testing.T) {
	ctrl := checkoutTestController(t, &stubCheckoutService{
		checkoutFn: func(_ context.Context, _ string, input checkout.Input) (*checkout.Result, error) {
			return &checkout.Result{
				OrderID:       uuid.New(),
				Reference:     "ARM-EF56GH78",
				TotalUSD:      decimal.RequireFromString("59.99"),
				PaymentMethod: enums.PaymentMethodCrypto,
				InvoiceURL:    "https://pay.example.com/inv_42",
				PayAddress:    "bc1q000",
				PayAmount:     decimal.RequireFromString("0.00094"),
				PayCurrency:   "BTC",
			}, nil
		},
	})

	body := []byte(`{"email":"buyer@armorylabs.gg","payment_method":"crypto","pay_currency":"BTC"}`)
	rec := httptest.NewRecorder()
	ctrl.Checkout()(rec, checkoutSessionRequest("/api/v1/checkout", "sess-1", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	var envelope struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "https://pay.example.com/inv_42", envelope.Data.InvoiceURL)
	assert.Equal(t, "0.00094", envelope.Data.PayAmount)
	assert.Equal(t, "BTC", envelope.Data.PayCurrency)
	assert.Empty(t, envelope.Data.ClientSecret)
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing email", body: `{"payment_method":"card"}`},
		{name: "bad email", body: `{"email":"not-an-email","payment_method":"card"}`},
		{name: "unknown method", body: `{"email":"buyer@armorylabs.gg","payment_method":"wire"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			ctrl := checkoutTestController(t, &stubCheckoutService{
				checkoutFn: func(context.Context, string, checkout.Input) (*checkout.Result, error) {
					called = true
					return nil, nil
				},
			})

			rec := httptest.NewRecorder()
			ctrl.Checkout()(rec, checkoutSessionRequest("/api/v1/checkout", "sess-1", []byte(tc.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	ctrl := checkoutTestController(t, &stubCheckoutService{
		checkoutFn: func(context.Context, string, checkout.Input) (*checkout.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		},
	})

	body := []byte(`{"email":"buyer@armorylabs.gg","payment_method":"card"}`)
	rec := httptest.NewRecorder()
	ctrl.Checkout()(rec, checkoutSessionRequest("/api/v1/checkout", "sess-1", body))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart is empty")
}

func TestGetOrder(t *testing.T) {
	paidAt := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	coupon := "LAUNCH10"
	ctrl := checkoutTestController(t, &stubCheckoutService{
		getOrderFn: func(_ context.Context, reference string) (*models.Order, error) {
			require.Equal(t, "ARM-AB12CD34", reference)
			return &models.Order{
				ID:            uuid.New(),
				Reference:     "ARM-AB12CD34",
				SessionID:     "sess-1",
				Email:         "buyer@armorylabs.gg",
				PaymentMethod: enums.PaymentMethodCard,
				Status:        enums.OrderStatusPaid,
				CouponCode:    &coupon,
				SubtotalUSD:   decimal.RequireFromString("119.98"),
				DiscountUSD:   decimal.RequireFromString("12.00"),
				TotalUSD:      decimal.RequireFromString("107.98"),
				PaidAt:        &paidAt,
				LineItems: []models.OrderLineItem{{
					ProductID:    "6f1f7db8-9f8a-4f5d-9f5e-0e6c3a6a9c11",
					ProductName:  "Aegis Pro",
					ProductSlug:  "aegis-pro",
					Game:         "rust",
					Duration:     "30d",
					UnitPriceUSD: decimal.RequireFromString("59.99"),
					Quantity:     2,
					LineTotalUSD: decimal.RequireFromString("119.98"),
				}},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ARM-AB12CD34", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("reference", "ARM-AB12CD34")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	ctrl.GetOrder()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "paid", envelope.Data.Status)
	assert.Equal(t, "LAUNCH10", envelope.Data.CouponCode)
	assert.Equal(t, "107.98", envelope.Data.TotalUSD)
	require.Len(t, envelope.Data.LineItems, 1)
	assert.Equal(t, "119.98", envelope.Data.LineItems[0].LineTotalUSD)
	require.NotNil(t, envelope.Data.PaidAt)
	assert.True(t, envelope.Data.PaidAt.Equal(paidAt))
}

func TestGetOrderNotFound(t *testing.T) {
	ctrl := checkoutTestController(t, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ARM-MISSING1", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("reference", "ARM-MISSING1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	ctrl.GetOrder()(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
