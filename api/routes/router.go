package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/armorylabs/armory-backend/api/controllers"
	cartctrl "github.com/armorylabs/armory-backend/api/controllers/cart"
	"github.com/armorylabs/armory-backend/api/middleware"
	"github.com/armorylabs/armory-backend/internal/money"
	productsvc "github.com/armorylabs/armory-backend/internal/products"
	"github.com/armorylabs/armory-backend/pkg/config"
	"github.com/armorylabs/armory-backend/pkg/db"
	"github.com/armorylabs/armory-backend/pkg/logger"
	"github.com/armorylabs/armory-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs. cmd/api builds
// one of these after bootstrapping the clients and services.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Cart          *cartctrl.Controller
	Checkout      *controllers.CheckoutController
	Products      productsvc.Service
	Prices        *money.Formatter
	StripeHandler http.HandlerFunc
	CryptoHandler http.HandlerFunc
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.RateLimit.Window, cfg.RateLimit.CartLimit)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// Processor callbacks authenticate themselves; no browser session here.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.StripeHandler != nil {
			r.Post("/stripe", deps.StripeHandler)
		}
		if deps.CryptoHandler != nil {
			r.Post("/crypto", deps.CryptoHandler)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(deps.Products, deps.Prices, logg))
		r.Get("/products/{slug}", controllers.GetProduct(deps.Products, deps.Prices, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, cfg.App.IsProd(), logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", deps.Cart.Get())
				r.Delete("/", deps.Cart.Clear())

				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimit(cartPolicy, deps.Redis, logg))
					r.Post("/items", deps.Cart.AddItem())
					r.Patch("/items", deps.Cart.UpdateQuantity())
					r.Delete("/items/{productID}/{duration}", deps.Cart.RemoveItem())
					r.Post("/coupon", deps.Cart.ApplyCoupon())
					r.Delete("/coupon", deps.Cart.RemoveCoupon())
				})
			})

			r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).
				Post("/checkout", deps.Checkout.Checkout())
			r.Get("/orders/{reference}", deps.Checkout.GetOrder())
		})
	})

	return r
}
