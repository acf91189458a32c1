package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem persists the denormalized product snapshot of one cart line.
type OrderLineItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID    string          `gorm:"column:product_id;not null"`
	ProductName  string          `gorm:"column:product_name;not null"`
	ProductSlug  string          `gorm:"column:product_slug"`
	Game         string          `gorm:"column:game"`
	Image        string          `gorm:"column:image"`
	Duration     string          `gorm:"column:duration;not null"`
	UnitPriceUSD decimal.Decimal `gorm:"column:unit_price_usd;type:numeric(12,2);not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	LineTotalUSD decimal.Decimal `gorm:"column:line_total_usd;type:numeric(12,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
