package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/armorylabs/armory-backend/api/controllers"
	cartctrl "github.com/armorylabs/armory-backend/api/controllers/cart"
	webhookcontrollers "github.com/armorylabs/armory-backend/api/controllers/webhooks"
	"github.com/armorylabs/armory-backend/api/routes"
	cartsvc "github.com/armorylabs/armory-backend/internal/cart"
	checkoutsvc "github.com/armorylabs/armory-backend/internal/checkout"
	"github.com/armorylabs/armory-backend/internal/coupons"
	"github.com/armorylabs/armory-backend/internal/money"
	productsvc "github.com/armorylabs/armory-backend/internal/products"
	"github.com/armorylabs/armory-backend/internal/rates"
	paymentwebhooks "github.com/armorylabs/armory-backend/internal/webhooks/payments"
	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/db"
	"github.com/armorylabs/armory-backend/pkg/logger"
	"github.com/armorylabs/armory-backend/pkg/migrate"
	"github.com/armorylabs/armory-backend/pkg/outbox"
	"github.com/armorylabs/armory-backend/pkg/payments"
	"github.com/armorylabs/armory-backend/pkg/redis"
)

const (
	shutdownGrace   = 15 * time.Second
	webhookGuardTTL = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	productService, err := productsvc.NewService(productsvc.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	couponValidator, err := buildCouponValidator(cfg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon validator", err)
		os.Exit(1)
	}

	cartStore, err := cartsvc.NewRedisStore(redisClient, cfg.Cart.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}
	cartService, err := cartsvc.NewService(cartStore, productService, couponValidator, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	ratesProvider, err := rates.NewProvider(cfg.Rates, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates provider", err)
		os.Exit(1)
	}
	ratesService, err := rates.NewService(redisClient, ratesProvider, cfg.Rates.CacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates service", err)
		os.Exit(1)
	}
	priceFormatter, err := money.NewFormatter(ratesService)
	if err != nil {
		logg.Error(context.Background(), "failed to create price formatter", err)
		os.Exit(1)
	}

	var stripeClient *payments.StripeClient
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = payments.NewStripeClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe client", err)
			os.Exit(1)
		}
	}
	var cryptoClient *payments.CryptoClient
	if cfg.Crypto.BaseURL != "" {
		cryptoClient, err = payments.NewCryptoClient(cfg.Crypto)
		if err != nil {
			logg.Error(context.Background(), "failed to create crypto client", err)
			os.Exit(1)
		}
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	checkoutService, err := buildCheckoutService(cartService, dbClient, outboxService, stripeClient, cryptoClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	settlementService, err := paymentwebhooks.NewService(checkoutService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	var stripeHandler, cryptoHandler http.HandlerFunc
	if stripeClient != nil {
		stripeGuard, err := paymentwebhooks.NewIdempotencyGuard(redisClient, webhookGuardTTL, "stripe-webhook")
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe webhook guard", err)
			os.Exit(1)
		}
		stripeHandler = webhookcontrollers.StripeWebhook(settlementService, stripeClient, stripeGuard, logg)
	}
	if cryptoClient != nil {
		cryptoGuard, err := paymentwebhooks.NewIdempotencyGuard(redisClient, webhookGuardTTL, "crypto-webhook")
		if err != nil {
			logg.Error(context.Background(), "failed to create crypto webhook guard", err)
			os.Exit(1)
		}
		cryptoHandler = webhookcontrollers.CryptoWebhook(settlementService, cfg.Crypto.WebhookSecret, cryptoGuard, logg)
	}

	cartController, err := cartctrl.NewController(cartService, priceFormatter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart controller", err)
		os.Exit(1)
	}
	checkoutController, err := controllers.NewCheckoutController(checkoutService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout controller", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Cart:          cartController,
		Checkout:      checkoutController,
		Products:      productService,
		Prices:        priceFormatter,
		StripeHandler: stripeHandler,
		CryptoHandler: cryptoHandler,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

// buildCouponValidator picks local table lookups or the remote validation
// service depending on configuration.
func buildCouponValidator(cfg *config.Config, dbClient *db.Client) (coupons.Validator, error) {
	if cfg.Coupons.IsRemote() {
		return coupons.NewRemoteValidator(cfg.Coupons, nil)
	}
	return coupons.NewLocalValidator(coupons.NewRepository(dbClient.DB()))
}

func buildCheckoutService(
	cartService cartsvc.Service,
	dbClient *db.Client,
	outboxService *outbox.Service,
	stripeClient *payments.StripeClient,
	cryptoClient *payments.CryptoClient,
	logg *logger.Logger,
) (checkoutsvc.Service, error) {
	orderRepo := checkoutsvc.NewRepository(dbClient.DB())
	couponRepo := coupons.NewRepository(dbClient.DB())

	// Interface-typed nils would defeat the service's processor checks.
	if stripeClient != nil && cryptoClient != nil {
		return checkoutsvc.NewService(cartService, orderRepo, dbClient, outboxService, couponRepo, stripeClient, cryptoClient, logg)
	}
	if stripeClient != nil {
		return checkoutsvc.NewService(cartService, orderRepo, dbClient, outboxService, couponRepo, stripeClient, nil, logg)
	}
	if cryptoClient != nil {
		return checkoutsvc.NewService(cartService, orderRepo, dbClient, outboxService, couponRepo, nil, cryptoClient, logg)
	}
	return checkoutsvc.NewService(cartService, orderRepo, dbClient, outboxService, couponRepo, nil, nil, logg)
}
