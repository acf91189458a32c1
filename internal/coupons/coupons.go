package coupons

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/enums"
)

// Details is the validated coupon snapshot handed back to callers.
type Details struct {
	Code  string
	Type  enums.CouponType
	Value decimal.Decimal
}

// Validator checks a coupon code and returns its terms. Failures carry
// typed codes: invalid codes, expired codes, and upstream outages are
// distinguishable by the caller.
type Validator interface {
	Validate(ctx context.Context, code string) (*Details, error)
}
