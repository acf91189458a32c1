package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/config"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
)

const (
	invoiceBodyReadLimit int64 = 1024
	defaultCryptoTimeout       = 15 * time.Second
)

var errCryptoBaseURLRequired = errors.New("crypto payment base url is required")

// CryptoClient wraps the hosted crypto payment processor's invoice API.
type CryptoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// CryptoOption configures optional client behavior.
type CryptoOption func(*CryptoClient)

// WithCryptoHTTPClient overrides the default HTTP client.
func WithCryptoHTTPClient(client *http.Client) CryptoOption {
	return func(c *CryptoClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewCryptoClient builds the crypto invoice client from config.
func NewCryptoClient(cfg config.CryptoConfig, opts ...CryptoOption) (*CryptoClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errCryptoBaseURLRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultCryptoTimeout
	}

	client := &CryptoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// InvoiceRequest describes the payload sent to the invoice API.
type InvoiceRequest struct {
	OrderRef    string          `json:"order_id"`
	PriceAmount decimal.Decimal `json:"price_amount"`
	PriceCcy    string          `json:"price_currency"`
	PayCcy      string          `json:"pay_currency,omitempty"`
	Email       string          `json:"customer_email,omitempty"`
}

// Invoice holds the normalized data returned by the invoice API.
type Invoice struct {
	ID         string
	InvoiceURL string
	PayAddress string
	PayAmount  decimal.Decimal
	PayCcy     string
	Status     string
}

// CreateInvoice opens a hosted crypto invoice for the given order.
func (c *CryptoClient) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "crypto payment client not configured")
	}
	if strings.TrimSpace(req.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if req.PriceAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal invoice request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoice", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build invoice request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute invoice request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, invoiceBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "invoice request failed")
	}

	var apiResp struct {
		ID         string          `json:"id"`
		InvoiceURL string          `json:"invoice_url"`
		PayAddress string          `json:"pay_address"`
		PayAmount  decimal.Decimal `json:"pay_amount"`
		PayCcy     string          `json:"pay_currency"`
		Status     string          `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice response")
	}

	return &Invoice{
		ID:         apiResp.ID,
		InvoiceURL: apiResp.InvoiceURL,
		PayAddress: apiResp.PayAddress,
		PayAmount:  apiResp.PayAmount,
		PayCcy:     apiResp.PayCcy,
		Status:     apiResp.Status,
	}, nil
}
