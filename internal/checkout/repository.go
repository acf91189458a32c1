package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/pkg/db/models"
	"github.com/armorylabs/armory-backend/pkg/enums"
)

// Repository exposes persistence operations for orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts the order and its line items inside the transaction.
func (r *Repository) CreateTx(tx *gorm.DB, order *models.Order) (*models.Order, error) {
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// FindByReference loads an order and its lines by customer-facing reference.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	var row models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("reference = ?", reference).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByPaymentRef loads an order by the processor's payment reference.
func (r *Repository) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	var row models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("payment_ref = ?", paymentRef).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SetPaymentRef records the processor reference after payment initiation.
func (r *Repository) SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("payment_ref", paymentRef).Error
}

// MarkPaidTx transitions a pending order to paid inside the transaction.
func (r *Repository) MarkPaidTx(tx *gorm.DB, id uuid.UUID, paidAt time.Time) error {
	return tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": paidAt,
		}).Error
}

// MarkFailedTx transitions a pending order to failed inside the transaction.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("status", enums.OrderStatusFailed).Error
}
