// Package app wires the payment service together and runs it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/events"
	"github.com/xenking/respa-payments/internal/handler"
	"github.com/xenking/respa-payments/internal/payment/bambora"
	"github.com/xenking/respa-payments/internal/redisx"
	"github.com/xenking/respa-payments/internal/repository"
	"github.com/xenking/respa-payments/pkg/health"
	"github.com/xenking/respa-payments/pkg/httpmiddleware"
)

// ServiceName identifies this service in telemetry, events and Redis keys.
const ServiceName = "respa-payments"

// Run creates all dependencies, starts the HTTP server and the expiry sweep,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	var orderOpts []order.ServiceOption
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka, ServiceName)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Error("Close event publisher", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithPublisher(publisher))
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	orderService := order.NewService(productRepo, reservationRepo, orderRepo, orderOpts...)

	// Payment provider.
	providerOpts := []bambora.Option{
		bambora.WithTracerProvider(m.TracerProvider()),
		bambora.WithMeterProvider(m.MeterProvider()),
	}
	if cfg.Redis.Addr != "" {
		rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return redisx.Ping(ctx, rdb)
		})
		providerOpts = append(providerOpts, bambora.WithDeduper(redisx.NewDeduper(rdb, ServiceName, cfg.Redis.DedupTTL)))
	}
	provider, err := bambora.New(cfg.Payments.Bambora, orderService, providerOpts...)
	if err != nil {
		return errors.Wrap(err, "create payment provider")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers: health endpoints + API routes on one router.
	h := handler.NewHandler(orderService, provider, handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)))
	router := h.Router(lg)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      2*cfg.Payments.Bambora.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   handler.IsGatewayCallback,
			}),
			httpmiddleware.Instrument(ServiceName, m),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.Expiry.Enabled {
		g.Go(func() error {
			lg.Info("Order expiry enabled",
				zap.Duration("interval", cfg.Expiry.Interval),
				zap.Duration("ttl", cfg.Expiry.TTL),
			)
			return orderService.RunExpiry(gCtx, cfg.Expiry.Interval, cfg.Expiry.TTL)
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
