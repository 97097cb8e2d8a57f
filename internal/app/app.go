// Package app wires storage, domain services and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	b, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := newStack(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg, b)
	if err != nil {
		return err
	}
	healthSvc := st.health
	healthSvc.Start(ctx, 10*time.Second)

	// Carts left finalizing by a previous crash.
	if _, err := st.checkout.RecoverStale(ctx, cfg.StaleCheckoutAfter); err != nil {
		return errors.Wrap(err, "recover stale checkouts")
	}
	go recoverStaleLoop(ctx, lg, st.checkout, cfg.StaleCheckoutAfter)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           st.handler,
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

type stack struct {
	handler  http.Handler
	health   *health.Health
	checkout *checkout.Service
}

// newStack builds the domain services and the HTTP handler chain on b.
func newStack(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	b *backend,
) (*stack, error) {
	healthSvc := health.New(lg.Named("health"))
	for name, check := range b.readiness {
		healthSvc.AddReadinessCheck(name, 5*time.Second, check)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	checkoutSvc, err := checkout.NewService(b.carts, b.catalog, b.uow,
		checkout.WithTracerProvider(tp),
		checkout.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}

	api := handler.New(handler.Config{
		Products:    b.catalog,
		Carts:       cart.NewService(b.carts, b.catalog),
		Checkout:    checkoutSvc,
		Orders:      order.NewService(b.orders),
		APIKeys:     b.apikeys,
		Pepper:      []byte(cfg.APIKeyPepper),
		Idempotency: b.idem,
	})

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.Compress(5, "application/json"),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/", api.Routes())

	h := otelhttp.NewHandler(
		httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Key:    httpmiddleware.HeaderKey("X-User-ID"),
			}),
		),
		"kart-api",
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
	)
	return &stack{handler: h, health: healthSvc, checkout: checkoutSvc}, nil
}

// recoverStaleLoop periodically reopens carts whose checkout never finished.
func recoverStaleLoop(ctx context.Context, lg *zap.Logger, svc *checkout.Service, olderThan time.Duration) {
	ticker := time.NewTicker(olderThan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RecoverStale(ctx, olderThan); err != nil {
				lg.Warn("Recover stale checkouts", zap.Error(err))
			}
		}
	}
}
