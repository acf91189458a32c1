package models

import (
	"time"

	"github.com/armorylabs/armory-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon grants a percentage or fixed USD discount. Codes are stored
// upper-cased; lookups normalize before comparing.
type Coupon struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code      string           `gorm:"column:code;not null;uniqueIndex"`
	Type      enums.CouponType `gorm:"column:type;type:coupon_type;not null"`
	Value     decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	StartsAt  *time.Time       `gorm:"column:starts_at"`
	ExpiresAt *time.Time       `gorm:"column:expires_at"`
	MaxUses   int              `gorm:"column:max_uses;not null;default:0"`
	Uses      int              `gorm:"column:uses;not null;default:0"`
	IsActive  bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
