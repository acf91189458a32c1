package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Cart         CartConfig
	Coupons      CouponsConfig
	Rates        RatesConfig
	Stripe       StripeConfig
	Crypto       CryptoConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ARMORY_APP_ENV" required:"true"`
	Port         string `envconfig:"ARMORY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ARMORY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARMORY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ARMORY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ARMORY_DB_DSN"`
	Driver string `envconfig:"ARMORY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ARMORY_DB_HOST"`
	LegacyPort     int    `envconfig:"ARMORY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ARMORY_DB_USER"`
	LegacyPassword string `envconfig:"ARMORY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ARMORY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ARMORY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARMORY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARMORY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARMORY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARMORY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARMORY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ARMORY_REDIS_ADDR"`
	Password     string        `envconfig:"ARMORY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARMORY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARMORY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARMORY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARMORY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARMORY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARMORY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig governs the signed cookie that identifies a browsing session.
type SessionConfig struct {
	Secret     string        `envconfig:"ARMORY_SESSION_SECRET" required:"true"`
	Issuer     string        `envconfig:"ARMORY_SESSION_ISSUER" required:"true"`
	CookieName string        `envconfig:"ARMORY_SESSION_COOKIE" default:"armory_session"`
	TTL        time.Duration `envconfig:"ARMORY_SESSION_TTL" default:"720h"`
}

// CartConfig controls cart persistence. The TTL mirrors the storefront's
// 30-day attribution window.
type CartConfig struct {
	TTL time.Duration `envconfig:"ARMORY_CART_TTL" default:"720h"`
}

type CouponsConfig struct {
	Mode           string        `envconfig:"ARMORY_COUPONS_MODE" default:"local"`
	ValidatorURL   string        `envconfig:"ARMORY_COUPONS_VALIDATOR_URL"`
	RequestTimeout time.Duration `envconfig:"ARMORY_COUPONS_REQUEST_TIMEOUT" default:"8s"`
	RetryOnNetwork bool          `envconfig:"ARMORY_COUPONS_RETRY_ON_NETWORK" default:"true"`
}

// IsRemote reports whether coupon validation is delegated to an external
// service rather than the local coupons table.
func (c CouponsConfig) IsRemote() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), "remote")
}

type RatesConfig struct {
	ProviderURL     string        `envconfig:"ARMORY_RATES_PROVIDER_URL"`
	RequestTimeout  time.Duration `envconfig:"ARMORY_RATES_REQUEST_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"ARMORY_RATES_REFRESH_INTERVAL" default:"1h"`
	CacheTTL        time.Duration `envconfig:"ARMORY_RATES_CACHE_TTL" default:"2h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"ARMORY_STRIPE_API_KEY"`
	Secret string `envconfig:"ARMORY_STRIPE_SECRET"`
	Env    string `envconfig:"ARMORY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CryptoConfig points at the hosted crypto-checkout provider.
type CryptoConfig struct {
	BaseURL        string        `envconfig:"ARMORY_CRYPTO_BASE_URL"`
	APIKey         string        `envconfig:"ARMORY_CRYPTO_API_KEY"`
	WebhookSecret  string        `envconfig:"ARMORY_CRYPTO_WEBHOOK_SECRET"`
	RequestTimeout time.Duration `envconfig:"ARMORY_CRYPTO_REQUEST_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ARMORY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	CheckoutTopic string `envconfig:"ARMORY_PUBSUB_CHECKOUT_TOPIC" default:"armory-checkout-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ARMORY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ARMORY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ARMORY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig caps write traffic per client IP. Zero disables a limit.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"ARMORY_RATE_LIMIT_WINDOW" default:"1m"`
	CartLimit     int64         `envconfig:"ARMORY_RATE_LIMIT_CART" default:"60"`
	CheckoutLimit int64         `envconfig:"ARMORY_RATE_LIMIT_CHECKOUT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ARMORY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ARMORY_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
