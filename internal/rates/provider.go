package rates

import (
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
	"github.com/armorylabs/armory-backend/pkg/enums"
)

const providerBodyReadLimit int64 = 1024

var errProviderURLRequired = errors.New("rates provider url is required")

// Provider fetches the FX rate table from the upstream rates API.
// Rates are quoted as units of the target currency per 1 USD.
type Provider struct {
	httpClient *http.Client
	baseURL    string
}

// NewProvider builds the rates provider client from config.
func NewProvider(cfg config.RatesConfig, httpClient *http.Client) (*Provider, error) {
	baseURL := strings.TrimSpace(cfg.ProviderURL)
	if baseURL == "" {
		return nil, errProviderURLRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Provider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// FetchRates pulls the current table, dropping currencies the storefront
// does not offer and any non-positive quotes.
func (p *Provider) FetchRates(ctx context.Context) (map[enums.Currency]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rates?base=USD", nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute rates request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, providerBodyReadLimit))
		return nil, fmt.Errorf("rates provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var apiResp struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode rates response: %w", err)
	}

	table := make(map[enums.Currency]decimal.Decimal, len(apiResp.Rates))
	for raw, rate := range apiResp.Rates {
		cur, err := enums.ParseCurrency(raw)
		if err != nil {
			continue
		}
		if rate.LessThanOrEqual(decimal.Zero) {
			continue
		}
		table[cur] = rate
	}
	if len(table) == 0 {
		return nil, errors.New("rates provider returned no usable rates")
	}
	return table, nil
}
