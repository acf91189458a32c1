package paymentwebhooks

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type paymentSettler interface {
	ConfirmPayment(ctx context.Context, paymentRef string) error
	FailPayment(ctx context.Context, paymentRef string) error
}

// CryptoNotification is the status callback posted by the crypto invoice
// processor.
type CryptoNotification struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
	OrderRef  string `json:"order_id"`
	Status    string `json:"status" validate:"required"`
}

// Service maps processor notifications onto order settlement.
type Service struct {
	checkout paymentSettler
	logg     *logger.Logger
}

func NewService(checkout paymentSettler, logg *logger.Logger) (*Service, error) {
	if checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{checkout: checkout, logg: logg}, nil
}

// HandleStripeEvent settles the order backing a PaymentIntent. Event types
// outside the payment lifecycle are acknowledged and dropped.
func (s *Service) HandleStripeEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_event": string(event.Type),
		"payment_ref":  intent.ID,
	})

	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		s.logg.Info(logCtx, "stripe payment succeeded")
		return s.checkout.ConfirmPayment(ctx, intent.ID)
	}
	s.logg.Info(logCtx, "stripe payment failed")
	return s.checkout.FailPayment(ctx, intent.ID)
}

// HandleCryptoNotification settles the order backing a crypto invoice.
// Intermediate statuses (waiting, confirming, partially paid) are dropped.
func (s *Service) HandleCryptoNotification(ctx context.Context, note CryptoNotification) error {
	if strings.TrimSpace(note.InvoiceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}

	status := strings.ToLower(strings.TrimSpace(note.Status))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_id":     note.InvoiceID,
		"invoice_status": status,
	})

	switch status {
	case "finished", "confirmed":
		s.logg.Info(logCtx, "crypto invoice settled")
		return s.checkout.ConfirmPayment(ctx, note.InvoiceID)
	case "failed", "expired", "refunded":
		s.logg.Info(logCtx, "crypto invoice dead")
		return s.checkout.FailPayment(ctx, note.InvoiceID)
	default:
		s.logg.Info(logCtx, "crypto invoice status ignored")
		return nil
	}
}
