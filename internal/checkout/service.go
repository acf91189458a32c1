package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/armorylabs/armory-backend/internal/cart"
	"github.com/armorylabs/armory-backend/pkg/db/models"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
	"github.com/armorylabs/armory-backend/pkg/outbox"
	"github.com/armorylabs/armory-backend/pkg/payments"
)

const eventVersion = 1

type cartManager interface {
	Snapshot(ctx context.Context, sessionID string) (*cart.Snapshot, error)
	Clear(ctx context.Context, sessionID string) error
}

type orderStore interface {
	CreateTx(tx *gorm.DB, order *models.Order) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error
	MarkPaidTx(tx *gorm.DB, id uuid.UUID, paidAt time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponRedeemer interface {
	IncrementUses(tx *gorm.DB, code string) error
}

type cardProcessor interface {
	CreatePaymentIntent(ctx context.Context, charge payments.CardCharge) (string, string, error)
}

type cryptoProcessor interface {
	CreateInvoice(ctx context.Context, req payments.InvoiceRequest) (*payments.Invoice, error)
}

// Service turns a session cart into a persisted order and hands the total
// to the selected payment processor.
type Service interface {
	Checkout(ctx context.Context, sessionID string, input Input) (*Result, error)
	ConfirmPayment(ctx context.Context, paymentRef string) error
	FailPayment(ctx context.Context, paymentRef string) error
	GetOrder(ctx context.Context, reference string) (*models.Order, error)
}

// Input carries the buyer details collected at checkout. Totals and line
// items come from the cart snapshot, never from the client.
type Input struct {
	Email         string
	PaymentMethod enums.PaymentMethod
	PayCurrency   string
}

// Result is what the storefront needs to finish paying: the Stripe client
// secret for card orders, the hosted invoice for crypto orders.
type Result struct {
	OrderID       uuid.UUID
	Reference     string
	TotalUSD      decimal.Decimal
	PaymentMethod enums.PaymentMethod
	ClientSecret  string
	InvoiceURL    string
	PayAddress    string
	PayAmount     decimal.Decimal
	PayCurrency   string
}

type orderEventData struct {
	OrderID       string `json:"order_id"`
	Reference     string `json:"reference"`
	Email         string `json:"email"`
	PaymentMethod string `json:"payment_method"`
	TotalUSD      string `json:"total_usd"`
	ItemCount     int    `json:"item_count"`
}

type service struct {
	carts   cartManager
	orders  orderStore
	tx      txRunner
	events  eventEmitter
	coupons couponRedeemer
	card    cardProcessor
	crypto  cryptoProcessor
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the checkout orchestration. Payment processors are
// optional individually, but at least one must be present.
func NewService(
	carts cartManager,
	orders orderStore,
	tx txRunner,
	events eventEmitter,
	coupons couponRedeemer,
	card cardProcessor,
	crypto cryptoProcessor,
	logg *logger.Logger,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if coupons == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if card == nil && crypto == nil {
		return nil, fmt.Errorf("at least one payment processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		carts:   carts,
		orders:  orders,
		tx:      tx,
		events:  events,
		coupons: coupons,
		card:    card,
		crypto:  crypto,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Checkout snapshots the cart, persists the order with its line items and
// outbox event in one transaction, then opens the payment with the
// configured processor. The cart stays intact until payment confirms.
func (s *service) Checkout(ctx context.Context, sessionID string, input Input) (*Result, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if input.PaymentMethod == enums.PaymentMethodCard && s.card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "card payments are not enabled")
	}
	if input.PaymentMethod == enums.PaymentMethodCrypto && s.crypto == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "crypto payments are not enabled")
	}

	payCcy := ""
	if input.PaymentMethod == enums.PaymentMethodCrypto && input.PayCurrency != "" {
		ccy, err := enums.ParseCurrency(input.PayCurrency)
		if err != nil || !ccy.IsCrypto() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pay currency must be a supported cryptocurrency")
		}
		payCcy = ccy.String()
	}

	snap, err := s.carts.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	order, err := orderFromSnapshot(snap, email, input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.CreateTx(tx, order); err != nil {
			return err
		}
		if snap.Coupon != nil {
			if err := s.coupons.IncrementUses(tx, snap.Coupon.Code); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutInitiated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			SessionID:     sessionID,
			Version:       eventVersion,
			Data:          s.eventData(order, snap.ItemCount),
		})
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		OrderID:       order.ID,
		Reference:     order.Reference,
		TotalUSD:      order.TotalUSD,
		PaymentMethod: input.PaymentMethod,
	}

	paymentRef, err := s.openPayment(ctx, order, email, payCcy, result)
	if err != nil {
		s.failNewOrder(ctx, order, snap.ItemCount, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment could not be initiated")
	}

	if err := s.orders.SetPaymentRef(ctx, order.ID, paymentRef); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"reference":      order.Reference,
		"payment_method": string(input.PaymentMethod),
		"total_usd":      order.TotalUSD.StringFixed(2),
	})
	s.logg.Info(logCtx, "checkout initiated")
	return result, nil
}

// openPayment calls the processor for the order's method and fills the
// result's payment fields. Returns the processor's payment reference.
func (s *service) openPayment(ctx context.Context, order *models.Order, email, payCcy string, result *Result) (string, error) {
	switch order.PaymentMethod {
	case enums.PaymentMethodCard:
		cents := order.TotalUSD.Shift(2).IntPart()
		intentID, clientSecret, err := s.card.CreatePaymentIntent(ctx, payments.CardCharge{
			AmountCents:  cents,
			Currency:     "usd",
			ReceiptEmail: email,
			OrderRef:     order.Reference,
		})
		if err != nil {
			return "", err
		}
		result.ClientSecret = clientSecret
		return intentID, nil
	case enums.PaymentMethodCrypto:
		invoice, err := s.crypto.CreateInvoice(ctx, payments.InvoiceRequest{
			OrderRef:    order.Reference,
			PriceAmount: order.TotalUSD,
			PriceCcy:    "USD",
			PayCcy:      payCcy,
			Email:       email,
		})
		if err != nil {
			return "", err
		}
		result.InvoiceURL = invoice.InvoiceURL
		result.PayAddress = invoice.PayAddress
		result.PayAmount = invoice.PayAmount
		result.PayCurrency = invoice.PayCcy
		return invoice.ID, nil
	default:
		return "", fmt.Errorf("no processor for payment method %q", order.PaymentMethod)
	}
}

// failNewOrder marks a just-created order failed when the processor call
// did not go through. Best effort; the original error is what the caller sees.
func (s *service) failNewOrder(ctx context.Context, order *models.Order, itemCount int, cause error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.MarkFailedTx(tx, order.ID); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			SessionID:     order.SessionID,
			Version:       eventVersion,
			Data:          s.eventData(order, itemCount),
		})
	})
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"reference": order.Reference,
	})
	if err != nil {
		s.logg.Error(logCtx, "failed to mark order failed", err)
		return
	}
	s.logg.Warn(logCtx, fmt.Sprintf("payment initiation failed: %v", cause))
}

// ConfirmPayment settles the order matching the processor's payment
// reference. Replayed confirmations are a no-op.
func (s *service) ConfirmPayment(ctx context.Context, paymentRef string) error {
	if strings.TrimSpace(paymentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	order, err := s.orders.FindByPaymentRef(ctx, paymentRef)
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusPaid {
		return nil
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s is %s, cannot mark paid", order.Reference, order.Status))
	}

	paidAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.MarkPaidTx(tx, order.ID, paidAt); err != nil {
			return err
		}
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			SessionID:     order.SessionID,
			Version:       eventVersion,
			Data:          s.eventData(order, len(order.LineItems)),
		})
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"reference": order.Reference,
	})
	if err := s.carts.Clear(ctx, order.SessionID); err != nil {
		s.logg.Error(logCtx, "failed to clear cart after payment", err)
	}
	s.logg.Info(logCtx, "order paid")
	return nil
}

// FailPayment marks the order failed after the processor reported the
// payment dead. Replays and already-settled orders are a no-op.
func (s *service) FailPayment(ctx context.Context, paymentRef string) error {
	if strings.TrimSpace(paymentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	order, err := s.orders.FindByPaymentRef(ctx, paymentRef)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusPending {
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.MarkFailedTx(tx, order.ID); err != nil {
			return err
		}
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			SessionID:     order.SessionID,
			Version:       eventVersion,
			Data:          s.eventData(order, len(order.LineItems)),
		})
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"reference": order.Reference,
	})
	s.logg.Info(logCtx, "order failed")
	return nil
}

// GetOrder looks an order up by its customer-facing reference.
func (s *service) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	return s.orders.FindByReference(ctx, reference)
}

func (s *service) eventData(order *models.Order, itemCount int) orderEventData {
	return orderEventData{
		OrderID:       order.ID.String(),
		Reference:     order.Reference,
		Email:         order.Email,
		PaymentMethod: string(order.PaymentMethod),
		TotalUSD:      order.TotalUSD.StringFixed(2),
		ItemCount:     itemCount,
	}
}

// orderFromSnapshot freezes the snapshot into an order row with line items.
func orderFromSnapshot(snap *cart.Snapshot, email string, method enums.PaymentMethod) (*models.Order, error) {
	reference, err := payments.NewOrderReference()
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		ID:            uuid.New(),
		Reference:     reference,
		SessionID:     snap.SessionID,
		Email:         email,
		PaymentMethod: method,
		Status:        enums.OrderStatusPending,
		SubtotalUSD:   snap.Subtotal,
		DiscountUSD:   snap.Discount,
		TotalUSD:      snap.Total,
	}
	if snap.Coupon != nil {
		code := snap.Coupon.Code
		order.CouponCode = &code
	}
	order.LineItems = make([]models.OrderLineItem, 0, len(snap.Items))
	for _, item := range snap.Items {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			OrderID:      order.ID,
			ProductID:    item.ProductID.String(),
			ProductName:  item.Name,
			ProductSlug:  item.Slug,
			Game:         item.Game,
			Image:        item.Image,
			Duration:     item.Duration,
			UnitPriceUSD: item.UnitPriceUSD,
			Quantity:     item.Quantity,
			LineTotalUSD: item.LineTotal(),
		})
	}
	return order, nil
}
