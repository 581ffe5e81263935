package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stockledger-backend/api/routes"
	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/orders"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := wireServices(cfg, logg, dbClient, promRegistry)
	if err != nil {
		return err
	}
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.Gatherer = promRegistry
	deps.HTTPMetrics = metrics.NewHTTPMetrics(promRegistry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logg.Info(ctx, "api server shutting down gracefully")
	return nil
}

// wireServices builds the ledger services over one database client. They
// share the outbox emitter, retry policy and ledger metrics.
func wireServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (routes.Dependencies, error) {
	conn := dbClient.DB()
	retry := db.RetryPolicyFromConfig(cfg.Ledger)
	ledgerMetrics := metrics.NewLedgerMetrics(reg)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	products := catalog.NewRepository(conn)
	people := users.NewRepository(conn)

	stockSvc, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(conn),
		Catalog: products,
		Users:   people,
		Tx:      dbClient,
		Outbox:  emitter,
		Retry:   retry,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:    invoices.NewRepository(conn),
		Tx:      dbClient,
		Outbox:  emitter,
		Retry:   retry,
		Metrics: ledgerMetrics,
		Logger:  logg,
		DueDays: cfg.Ledger.InvoiceDueDays,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	transactionSvc, err := transactions.NewService(transactions.ServiceParams{
		Repo:     transactions.NewRepository(conn),
		Stock:    stockSvc,
		Invoices: invoiceSvc,
		Tx:       dbClient,
		Outbox:   emitter,
		Retry:    retry,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:         orders.NewRepository(conn),
		Ledger:       stockSvc,
		Transactions: transactionSvc,
		Invoices:     invoiceSvc,
		Catalog:      products,
		Users:        people,
		Tx:           dbClient,
		Outbox:       emitter,
		Retry:        retry,
		Metrics:      ledgerMetrics,
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	salesSvc, err := sales.NewService(sales.ServiceParams{
		Ledger:       stockSvc,
		Transactions: transactionSvc,
		Invoices:     invoiceSvc,
		Catalog:      products,
		Users:        people,
		Tx:           dbClient,
		Retry:        retry,
		Metrics:      ledgerMetrics,
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Orders:       orderSvc,
		Stock:        stockSvc,
		Sales:        salesSvc,
		Transactions: transactionSvc,
		Invoices:     invoiceSvc,
	}, nil
}
