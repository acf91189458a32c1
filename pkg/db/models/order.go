package models

import (
	"time"

	"github.com/armorylabs/armory-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order captures the cart snapshot handed to the payment provider at
// checkout. Totals are frozen here; later catalog changes never touch them.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference     string              `gorm:"column:reference;not null;uniqueIndex"`
	SessionID     string              `gorm:"column:session_id;not null;index"`
	Email         string              `gorm:"column:email;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	CouponCode    *string             `gorm:"column:coupon_code"`
	SubtotalUSD   decimal.Decimal     `gorm:"column:subtotal_usd;type:numeric(12,2);not null"`
	DiscountUSD   decimal.Decimal     `gorm:"column:discount_usd;type:numeric(12,2);not null"`
	TotalUSD      decimal.Decimal     `gorm:"column:total_usd;type:numeric(12,2);not null"`
	PaymentRef    *string             `gorm:"column:payment_ref"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	LineItems     []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
