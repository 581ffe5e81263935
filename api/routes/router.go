package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockledger-backend/api/controllers"
	invoicecontrollers "github.com/angelmondragon/stockledger-backend/api/controllers/invoices"
	ordercontrollers "github.com/angelmondragon/stockledger-backend/api/controllers/orders"
	salescontrollers "github.com/angelmondragon/stockledger-backend/api/controllers/sales"
	stockcontrollers "github.com/angelmondragon/stockledger-backend/api/controllers/stock"
	transactioncontrollers "github.com/angelmondragon/stockledger-backend/api/controllers/transactions"
	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/orders"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

// RedisStore is everything the HTTP layer asks of redis.
type RedisStore interface {
	redis.IdempotencyStore
	redis.RateLimiter
	middleware.TokenRevocations
	controllers.Pinger
}

// Dependencies are the collaborators NewRouter mounts. Redis and Gatherer may
// be nil; idempotency, rate limiting, revocation checks and /metrics are then
// skipped.
type Dependencies struct {
	DB           controllers.Pinger
	Redis        RedisStore
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Orders       orders.Service
	Stock        stock.Service
	Sales        sales.Service
	Transactions transactions.Service
	Invoices     invoices.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
		middleware.Logging(logg, deps.HTTPMetrics),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateStore        redis.RateLimiter
		revocations      middleware.TokenRevocations
		redisPinger      controllers.Pinger
	)
	if deps.Redis != nil {
		idempotencyStore, rateStore, revocations, redisPinger = deps.Redis, deps.Redis, deps.Redis, deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": redisPinger,
		}, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	rateLimit := middleware.RateLimitPolicy{
		Window:     cfg.HTTP.RateLimitWindow,
		ReadLimit:  cfg.HTTP.RateLimitReads,
		WriteLimit: cfg.HTTP.RateLimitWrites,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, revocations, logg))
		r.Use(middleware.RateLimit(rateLimit, rateStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/capabilities", controllers.Capabilities())

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(middleware.RequireInventoryRole(logg)).Post("/{orderId}/confirm", ordercontrollers.Confirm(deps.Orders, logg))
			r.With(middleware.RequireInventoryRole(logg)).Post("/{orderId}/reject", ordercontrollers.Reject(deps.Orders, logg))
			r.With(middleware.RequireInventoryRole(logg)).Post("/{orderId}/invoice", ordercontrollers.IssueInvoice(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", stockcontrollers.Balances(deps.Stock, logg))
			r.Get("/availability", stockcontrollers.Availability(deps.Stock, logg))
			r.Post("/adjust", stockcontrollers.Adjust(deps.Stock, logg))
		})

		r.With(middleware.RequireInventoryRole(logg)).Post("/direct-sale", salescontrollers.DirectSale(deps.Sales, logg))
		r.With(middleware.RequireInventoryRole(logg)).Post("/sales", salescontrollers.SellToAccount(deps.Sales, logg))

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactioncontrollers.List(deps.Transactions, logg))
			r.Get("/stats", transactioncontrollers.Stats(deps.Transactions, logg))
			r.Get("/{transactionId}", transactioncontrollers.Detail(deps.Transactions, logg))
			r.Post("/{transactionId}/cancel", transactioncontrollers.Cancel(deps.Transactions, logg))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", invoicecontrollers.List(deps.Invoices, logg))
			r.Get("/{invoiceId}", invoicecontrollers.Detail(deps.Invoices, logg))
			r.Post("/{invoiceId}/mark-paid", invoicecontrollers.MarkPaid(deps.Invoices, logg))
			r.Patch("/{invoiceId}/status", invoicecontrollers.UpdateStatus(deps.Invoices, logg))
		})
	})

	return r
}
