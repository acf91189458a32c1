package cartctrl

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/armorylabs/armory-backend/api/middleware"
	"github.com/armorylabs/armory-backend/api/responses"
	"github.com/armorylabs/armory-backend/api/validators"
	cartsvc "github.com/armorylabs/armory-backend/internal/cart"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

// Controller groups the cart endpoints around their shared dependencies.
type Controller struct {
	svc    cartsvc.Service
	prices priceFormatter
	logg   *logger.Logger
}

func NewController(svc cartsvc.Service, prices priceFormatter, logg *logger.Logger) (*Controller, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Controller{svc: svc, prices: prices, logg: logg}, nil
}

// Get returns the session's cart.
func (c *Controller) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}
		cart, err := c.svc.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// AddItem adds a product tier to the cart.
func (c *Controller) AddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}

		cart, err := c.svc.AddItem(r.Context(), sessionID, input)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// UpdateQuantity replaces a line's quantity; zero removes the line.
func (c *Controller) UpdateQuantity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		cart, err := c.svc.UpdateQuantity(r.Context(), sessionID, productID, payload.Duration, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// RemoveItem drops a line from the cart. Unknown lines are a no-op.
func (c *Controller) RemoveItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}

		productID, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		duration := strings.TrimSpace(chi.URLParam(r, "duration"))
		if duration == "" {
			responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "duration is required"))
			return
		}

		cart, err := c.svc.RemoveItem(r.Context(), sessionID, productID, duration)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// ApplyCoupon validates and attaches a coupon; an existing coupon is replaced.
func (c *Controller) ApplyCoupon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}

		cart, err := c.svc.ApplyCoupon(r.Context(), sessionID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// RemoveCoupon detaches any applied coupon.
func (c *Controller) RemoveCoupon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}
		cart, err := c.svc.ClearCoupon(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

// Clear empties the cart entirely.
func (c *Controller) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := c.sessionID(w, r)
		if !ok {
			return
		}
		if err := c.svc.Clear(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		cart, err := c.svc.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), c.logg, w, err)
			return
		}
		c.writeCart(w, r, cart)
	}
}

func (c *Controller) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
		return "", false
	}
	return sessionID, true
}

func (c *Controller) writeCart(w http.ResponseWriter, r *http.Request, cart *cartsvc.Cart) {
	ccy, err := validators.ParseCurrencyQuery(r, "currency")
	if err != nil {
		responses.WriteError(r.Context(), c.logg, w, err)
		return
	}
	loc := validators.ParseLocale(r, "locale")
	dto, err := toCartResponse(r.Context(), cart, c.prices, ccy, loc)
	if err != nil {
		responses.WriteError(r.Context(), c.logg, w, err)
		return
	}
	responses.WriteSuccess(w, dto)
}
