package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/enums"
)

// Item is a single line in a session's cart. Lines are keyed by
// (ProductID, Duration): adding the same tier twice merges quantities.
type Item struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Game         string          `json:"game"`
	Image        string          `json:"image,omitempty"`
	Duration     string          `json:"duration"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	Quantity     int             `json:"quantity"`
}

// LineTotal returns unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPriceUSD.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AppliedCoupon is the coupon snapshot stored alongside the cart. The
// discount is recomputed from it on every read so it tracks cart changes.
type AppliedCoupon struct {
	Code  string           `json:"code"`
	Type  enums.CouponType `json:"type"`
	Value decimal.Decimal  `json:"value"`
}

// Cart is the session-scoped aggregate persisted as a single blob.
type Cart struct {
	SessionID string         `json:"session_id"`
	Items     []Item         `json:"items"`
	Coupon    *AppliedCoupon `json:"coupon,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New returns an empty cart for the session.
func New(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Items: []Item{}}
}

// Subtotal sums the line totals before any discount.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// Discount derives the coupon discount from the current subtotal.
// Percentage coupons round to cents; fixed coupons never exceed the subtotal.
func (c *Cart) Discount() decimal.Decimal {
	if c.Coupon == nil {
		return decimal.Zero
	}
	subtotal := c.Subtotal()
	switch c.Coupon.Type {
	case enums.CouponTypePercentage:
		return subtotal.Mul(c.Coupon.Value).Div(decimal.NewFromInt(100)).Round(2)
	case enums.CouponTypeFixed:
		if c.Coupon.Value.GreaterThan(subtotal) {
			return subtotal
		}
		return c.Coupon.Value
	default:
		return decimal.Zero
	}
}

// Total is subtotal minus discount, floored at zero.
func (c *Cart) Total() decimal.Decimal {
	total := c.Subtotal().Sub(c.Discount())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// ItemCount is the sum of all line quantities.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) findLine(productID uuid.UUID, duration string) int {
	for i, item := range c.Items {
		if item.ProductID == productID && item.Duration == duration {
			return i
		}
	}
	return -1
}

// upsertLine merges the incoming item into an existing line or appends it.
// A negative unit price is corrupt catalog data, not a credit; it is
// clamped to zero before the line enters the cart.
func (c *Cart) upsertLine(item Item) {
	if item.UnitPriceUSD.IsNegative() {
		item.UnitPriceUSD = decimal.Zero
	}
	if idx := c.findLine(item.ProductID, item.Duration); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

// removeLine drops the matching line; missing lines are a no-op.
func (c *Cart) removeLine(productID uuid.UUID, duration string) {
	if idx := c.findLine(productID, duration); idx >= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	}
}

// setQuantity replaces the quantity on the matching line. A quantity of
// zero or less removes the line. Returns false when the line is missing.
func (c *Cart) setQuantity(productID uuid.UUID, duration string, quantity int) bool {
	idx := c.findLine(productID, duration)
	if idx < 0 {
		return false
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return true
	}
	c.Items[idx].Quantity = quantity
	return true
}
