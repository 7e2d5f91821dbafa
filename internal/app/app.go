// Package app wires the api-server and storefront processes.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/mercado/internal/cart"
	"github.com/xenking/mercado/internal/cart/redisstore"
	"github.com/xenking/mercado/internal/domain/coupon"
	"github.com/xenking/mercado/internal/domain/customer"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/purchase"
	"github.com/xenking/mercado/internal/events"
	"github.com/xenking/mercado/internal/handler"
	"github.com/xenking/mercado/internal/oracle"
	"github.com/xenking/mercado/internal/session"
	"github.com/xenking/mercado/internal/storage/postgres"
	"github.com/xenking/mercado/internal/storefront"
	"github.com/xenking/mercado/pkg/health"
	"github.com/xenking/mercado/pkg/httpmiddleware"
)

const healthInterval = 10 * time.Second

// RunAPI creates the api-server dependencies, serves until ctx is done and
// then drains gracefully.
func RunAPI(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *APIConfig) error {
	lg.Info("Initializing api-server", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var publisher order.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	purchaseRepo := postgres.NewPurchaseRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		handler.Services{
			Products:   productRepo,
			Categories: productRepo,
			Orders:     order.NewService(orderRepo, publisher),
			Purchases:  purchase.NewService(purchaseRepo),
			Customers:  customer.NewService(customerRepo, cfg.BcryptCost),
			Sessions:   newSessions(cfg.Session),
		},
	)
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	return serve(ctx, lg, m, server{
		name:      "mercado-api",
		addr:      cfg.Addr,
		api:       h.Routes(securityHandler),
		health:    healthSvc,
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
		identify:  securityHandler.Identify(),
		skipLimit: handler.Authenticated,
	})
}

// RunStorefront creates the cart engine against the api-server and serves
// the shopper API until ctx is done.
func RunStorefront(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *StorefrontConfig) error {
	lg.Info("Initializing storefront", zap.String("addr", cfg.Addr), zap.String("upstream", cfg.Upstream.BaseURL))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var store cart.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()

		rs := redisstore.New(client, cfg.CartTTL)
		if err := rs.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(rs))
		store = rs
	} else {
		lg.Warn("Redis URL not set, carts are kept in memory")
		store = cart.NewMemoryStore()
	}

	client, err := oracle.New(oracle.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		APIKey:      cfg.Upstream.APIKey,
		Timeout:     cfg.Upstream.Timeout,
		MaxFailures: cfg.Upstream.MaxFailures,
		OpenTimeout: cfg.Upstream.OpenTimeout,
	}, oracle.WithTelemetry(m.TracerProvider(), m.MeterProvider()))
	if err != nil {
		return errors.Wrap(err, "create api-server client")
	}
	healthSvc.AddReadinessCheck("api-server", 3*time.Second, client.Ready)

	engine, err := cart.NewEngine(client, store, coupon.DefaultRegistry(),
		cart.WithTracerProvider(m.TracerProvider()),
		cart.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create cart engine")
	}

	h := storefront.NewHandler(engine, client, newSessions(cfg.Session))

	return serve(ctx, lg, m, server{
		name:      "mercado-storefront",
		addr:      cfg.Addr,
		api:       h.Routes(),
		health:    healthSvc,
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
	})
}

func newSessions(cfg SessionConfig) *session.Manager {
	return session.NewManager([]byte(cfg.Secret), cfg.Issuer, cfg.TTL)
}

// server is what both processes share: health probes at the root, the API
// under /api and the same middleware chain.
type server struct {
	name      string
	addr      string
	api       http.Handler
	health    *health.Health
	rateLimit RateLimitConfig
	cors      CORSConfig
	graceful  GracefulConfig
	// identify runs ahead of the limiter so skipLimit can see who is calling.
	identify  httpmiddleware.Middleware
	skipLimit func(*http.Request) bool
}

func serve(ctx context.Context, lg *zap.Logger, m *app.Telemetry, s server) error {
	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    s.rateLimit.Max,
		Window: s.rateLimit.Window,
		Skip:   s.skipLimit,
	})

	root := chi.NewRouter()
	root.Use(httpmiddleware.LogRequests())
	root.Get("/livez", s.health.LiveEndpoint)
	root.Get("/readyz", s.health.ReadyEndpoint)
	root.Mount("/api", s.api)

	httpServer := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              s.addr,
	}

	chain := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     s.cors.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			AllowCredentials: s.cors.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
	}
	if s.identify != nil {
		chain = append(chain, s.identify)
	}
	chain = append(chain,
		limiter.Middleware(),
		httpmiddleware.Instrument(s.name, m.TracerProvider(), m.MeterProvider()),
	)
	httpServer.Handler = httpmiddleware.Wrap(root, chain...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.health.Run(gctx, healthInterval)
	})
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		s.health.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", s.graceful.ReadinessDelay))
			time.Sleep(s.graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", s.graceful.ShutdownTimeout))
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	s.health.SetReady(true)
	return g.Wait()
}
