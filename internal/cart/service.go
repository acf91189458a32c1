package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/internal/coupons"
	"github.com/armorylabs/armory-backend/internal/products"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type couponValidator interface {
	Validate(ctx context.Context, code string) (*coupons.Details, error)
}

type tierLoader interface {
	GetTier(ctx context.Context, productID uuid.UUID, duration string) (*products.TierDetail, error)
}

// Service exposes the session cart operations.
type Service interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	AddItem(ctx context.Context, sessionID string, input AddItemInput) (*Cart, error)
	RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID, duration string) (*Cart, error)
	UpdateQuantity(ctx context.Context, sessionID string, productID uuid.UUID, duration string, quantity int) (*Cart, error)
	ApplyCoupon(ctx context.Context, sessionID, code string) (*Cart, error)
	ClearCoupon(ctx context.Context, sessionID string) (*Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) (*Snapshot, error)
}

// AddItemInput identifies the product tier to add. Pricing and product
// metadata come from the catalog, never from the client.
type AddItemInput struct {
	ProductID uuid.UUID
	Duration  string
	Quantity  int
}

// Snapshot is the immutable view handed to checkout. Totals are fixed at
// the moment it is taken; later cart edits do not affect it.
type Snapshot struct {
	SessionID  string
	Items      []Item
	Coupon     *AppliedCoupon
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	ItemCount  int
	CapturedAt time.Time
}

type service struct {
	store   Store
	catalog tierLoader
	coupons couponValidator
	locks   *sessionLocks
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(store Store, catalog tierLoader, validator couponValidator, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if validator == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:   store,
		catalog: catalog,
		coupons: validator,
		locks:   newSessionLocks(),
		logg:    logg,
	}, nil
}

// Get returns the session's cart, creating an empty one if none exists.
func (s *service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return s.store.Load(ctx, sessionID)
}

// AddItem adds a product tier to the cart, merging quantities when the
// same (product, duration) pair is already present.
func (s *service) AddItem(ctx context.Context, sessionID string, input AddItemInput) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(input.Duration) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	tier, err := s.catalog.GetTier(ctx, input.ProductID, input.Duration)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cart.upsertLine(Item{
		ProductID:    tier.ProductID,
		Slug:         tier.Slug,
		Name:         tier.Name,
		Game:         tier.Game,
		Image:        tier.Image,
		Duration:     tier.Duration,
		UnitPriceUSD: tier.PriceUSD,
		Quantity:     input.Quantity,
	})

	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"session_id": sessionID,
		"product_id": input.ProductID.String(),
		"duration":   input.Duration,
		"item_count": cart.ItemCount(),
	})
	s.logg.Info(logCtx, "cart item added")
	return cart, nil
}

// RemoveItem drops the matching line. Removing a line that is not in the
// cart is a no-op, not an error.
func (s *service) RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID, duration string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cart.removeLine(productID, duration)
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateQuantity replaces a line's quantity. A quantity of zero or less
// removes the line.
func (s *service) UpdateQuantity(ctx context.Context, sessionID string, productID uuid.UUID, duration string, quantity int) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !cart.setQuantity(productID, duration, quantity) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ApplyCoupon validates the code and stores the coupon snapshot on the
// cart. An applied coupon is replaced, not stacked.
func (s *service) ApplyCoupon(ctx context.Context, sessionID, code string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	details, err := s.coupons.Validate(ctx, code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cart.Coupon = &AppliedCoupon{
		Code:  details.Code,
		Type:  details.Type,
		Value: details.Value,
	}

	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"session_id": sessionID,
		"coupon":     details.Code,
	})
	s.logg.Info(logCtx, "coupon applied")
	return cart, nil
}

// ClearCoupon removes any applied coupon; clearing when none is applied
// is a no-op.
func (s *service) ClearCoupon(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cart.Coupon = nil
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear wipes the session's cart, items and coupon both.
func (s *service) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	return s.store.Delete(ctx, sessionID)
}

// Snapshot captures the cart state for checkout. The snapshot is a copy;
// cart edits after this point do not change it.
func (s *service) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}

	items := make([]Item, len(cart.Items))
	copy(items, cart.Items)

	var coupon *AppliedCoupon
	if cart.Coupon != nil {
		c := *cart.Coupon
		coupon = &c
	}

	return &Snapshot{
		SessionID:  sessionID,
		Items:      items,
		Coupon:     coupon,
		Subtotal:   cart.Subtotal(),
		Discount:   cart.Discount(),
		Total:      cart.Total(),
		ItemCount:  cart.ItemCount(),
		CapturedAt: time.Now().UTC(),
	}, nil
}
