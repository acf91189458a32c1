package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry; its pricing lives on ProductTier rows so the
// same product can be sold at multiple durations.
type Product struct {
	ID          uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug        string        `gorm:"column:slug;not null;uniqueIndex"`
	Name        string        `gorm:"column:name;not null"`
	Game        string        `gorm:"column:game;not null"`
	Image       string        `gorm:"column:image"`
	Description string        `gorm:"column:description"`
	IsActive    bool          `gorm:"column:is_active;not null;default:true"`
	Tiers       []ProductTier `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
