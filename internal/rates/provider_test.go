package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/enums"
)

func TestFetchRatesFiltersUnknownAndInvalid(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("base") != "USD" {
			t.Errorf("expected base=USD, got %s", r.URL.Query().Get("base"))
		}
		_, _ = w.Write([]byte(`{"rates":{"EUR":"0.92","GBP":"0.79","JPY":"151.2","BTC":"-1"}}`))
	}))
	defer server.Close()

	provider, err := NewProvider(config.RatesConfig{
		ProviderURL:    server.URL,
		RequestTimeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	table, err := provider.FetchRates(context.Background())
	if err != nil {
		t.Fatalf("fetch rates: %v", err)
	}

	if len(table) != 2 {
		t.Fatalf("expected 2 usable rates, got %d: %v", len(table), table)
	}
	if !table[enums.CurrencyEUR].Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("unexpected EUR rate %s", table[enums.CurrencyEUR])
	}
	if _, ok := table[enums.CurrencyBTC]; ok {
		t.Fatalf("negative rate must be dropped")
	}
}

func TestFetchRatesEmptyTableFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{}}`))
	}))
	defer server.Close()

	provider, err := NewProvider(config.RatesConfig{ProviderURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.FetchRates(context.Background()); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestFetchRatesProviderErrorSurfaces(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, err := NewProvider(config.RatesConfig{ProviderURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.FetchRates(context.Background()); err == nil {
		t.Fatalf("expected error for upstream failure")
	}
}
