package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// StripeClient wraps Stripe's API client plus env-specific metadata.
type StripeClient struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

// CardCharge describes a charge to collect via Stripe.
type CardCharge struct {
	AmountCents  int64
	Currency     string
	ReceiptEmail string
	OrderRef     string
}

// NewStripeClient initializes Stripe once with the configured secrets and env.
func NewStripeClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*StripeClient, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &StripeClient{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

// CreatePaymentIntent opens a PaymentIntent for the charge and returns its ID
// plus the client secret the storefront needs to confirm the payment.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, charge CardCharge) (string, string, error) {
	if c == nil || c.api == nil {
		return "", "", errors.New("stripe client not initialized")
	}
	if charge.AmountCents <= 0 {
		return "", "", errors.New("charge amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(charge.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(charge.AmountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if charge.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(charge.ReceiptEmail)
	}
	if charge.OrderRef != "" {
		params.AddMetadata("order_reference", charge.OrderRef)
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create payment intent: %w", err)
	}
	return intent.ID, intent.ClientSecret, nil
}

// API returns the underlying Stripe API client.
func (c *StripeClient) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *StripeClient) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *StripeClient) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
