package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/pkg/enums"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

// defaultRates keep display conversion working when neither the cache
// nor the provider has ever been reachable. They are deliberately stale
// and overwritten by the first successful refresh.
var defaultRates = map[enums.Currency]decimal.Decimal{
	enums.CurrencyUSD: decimal.NewFromInt(1),
	enums.CurrencyEUR: decimal.RequireFromString("0.92"),
	enums.CurrencyGBP: decimal.RequireFromString("0.79"),
	enums.CurrencyCAD: decimal.RequireFromString("1.36"),
	enums.CurrencyAUD: decimal.RequireFromString("1.52"),
	enums.CurrencyBTC: decimal.RequireFromString("0.000016"),
	enums.CurrencyETH: decimal.RequireFromString("0.00031"),
	enums.CurrencyLTC: decimal.RequireFromString("0.012"),
}

type rateFetcher interface {
	FetchRates(ctx context.Context) (map[enums.Currency]decimal.Decimal, error)
}

// rateCache is the slice of the redis client the service uses.
type rateCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RatesKey() string
}

// Service serves FX rates from the Redis cache, falling back to static
// defaults, and refreshes the cache from the provider.
type Service struct {
	client   rateCache
	provider rateFetcher
	logg     *logger.Logger
	cacheTTL time.Duration
}

// NewService builds the rates service.
func NewService(client rateCache, provider rateFetcher, cacheTTL time.Duration, logg *logger.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if provider == nil {
		return nil, fmt.Errorf("rates provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Hour
	}
	return &Service{
		client:   client,
		provider: provider,
		logg:     logg,
		cacheTTL: cacheTTL,
	}, nil
}

// Rate returns units of cur per 1 USD, preferring the cached table.
func (s *Service) Rate(ctx context.Context, cur enums.Currency) (decimal.Decimal, error) {
	if cur == enums.CurrencyUSD {
		return decimal.NewFromInt(1), nil
	}
	if !cur.IsValid() {
		return decimal.Zero, fmt.Errorf("unsupported currency %q", cur)
	}

	table, err := s.cachedTable(ctx)
	if err == nil {
		if rate, ok := table[cur]; ok {
			return rate, nil
		}
	}

	if rate, ok := defaultRates[cur]; ok {
		return rate, nil
	}
	return decimal.Zero, fmt.Errorf("no rate available for %q", cur)
}

// Refresh pulls the provider table and caches it.
func (s *Service) Refresh(ctx context.Context) error {
	table, err := s.provider.FetchRates(ctx)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}

	blob, err := json.Marshal(encodeTable(table))
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := s.client.Set(ctx, s.client.RatesKey(), string(blob), s.cacheTTL); err != nil {
		return fmt.Errorf("cache rates: %w", err)
	}

	logCtx := s.logg.WithField(ctx, "currencies", len(table))
	s.logg.Info(logCtx, "fx rate table refreshed")
	return nil
}

func (s *Service) cachedTable(ctx context.Context) (map[enums.Currency]decimal.Decimal, error) {
	blob, err := s.client.Get(ctx, s.client.RatesKey())
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, errors.New("rate table not cached")
		}
		return nil, err
	}

	var raw map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, err
	}

	table := make(map[enums.Currency]decimal.Decimal, len(raw))
	for key, rate := range raw {
		cur, err := enums.ParseCurrency(key)
		if err != nil {
			continue
		}
		table[cur] = rate
	}
	return table, nil
}

func encodeTable(table map[enums.Currency]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(table))
	for cur, rate := range table {
		out[string(cur)] = rate
	}
	return out
}
