// Package app wires the catalog service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/directory"
	"github.com/xenking/catalog-service/internal/distributor"
	"github.com/xenking/catalog-service/internal/domain/auth"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/handler"
	"github.com/xenking/catalog-service/internal/ingest"
	"github.com/xenking/catalog-service/internal/integration"
	"github.com/xenking/catalog-service/internal/storage/postgres"
	"github.com/xenking/catalog-service/internal/transport/natsbus"
	"github.com/xenking/catalog-service/pkg/health"
	"github.com/xenking/catalog-service/pkg/httpmiddleware"
)

// InventorySubject carries inventory records created by the inventory
// service.
const InventorySubject = "inventory.created"

// Run creates all dependencies, starts the HTTP server and the event
// consumers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	integrations, err := integration.Load(cfg.IntegrationsFile)
	if err != nil {
		return errors.Wrap(err, "load integrations")
	}
	lg.Info("Integrations loaded", zap.Int("count", len(integrations)))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCPauseCheck(time.Second))

	// Distributor token cache.
	var tokens distributor.TokenCache = distributor.NewMemoryTokens()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		tokens = distributor.NewRedisTokens(rdb)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)
	snapshots := make(map[string]catalog.SnapshotFetcher)
	for _, in := range integrations {
		if !in.Snapshot.Enabled() {
			continue
		}
		snapshots[in.Name] = distributor.NewClient(in.Name, in.Snapshot, tokens, &http.Client{
			Transport: transport,
			Timeout:   in.Snapshot.Timeout,
		})
	}

	var dir catalog.Directory
	if cfg.Directory.CustomerURL != "" || cfg.Directory.InventoryURL != "" {
		dir = directory.NewClient(cfg.Directory, &http.Client{
			Transport: transport,
			Timeout:   cfg.Directory.Timeout,
		})
	}

	// NATS JetStream for upstream events and product announcements.
	var (
		js        jetstream.JetStream
		publisher product.Publisher
	)
	if cfg.NATS.Enabled {
		nc, stream, err := natsbus.Connect(cfg.NATS, "catalog-service", lg)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()
		js = stream
		publisher = natsbus.NewPublisher(js)
		healthSvc.AddReadinessCheck("nats", time.Second, health.StatusCheck(func() (string, bool) {
			s := nc.Status()
			return s.String(), s == nats.CONNECTED
		}))
		if cfg.NATS.ManageStreams {
			if err := natsbus.EnsureStream(ctx, js, cfg.NATS.EventsStream, []string{
				natsbus.SubjectProductCreated,
				natsbus.SubjectProductsCreated,
			}); err != nil {
				return err
			}
		}
	}

	repos := postgres.NewRepositories(pool)
	txm := postgres.NewTxManager(pool)

	svc := catalog.NewService(catalog.Deps{
		UoW:          txm,
		Repos:        repos,
		Categories:   postgres.NewCategoryRepository(pool),
		Directory:    dir,
		Publisher:    publisher,
		Integrations: integrations,
		Snapshots:    snapshots,
		DefaultImage: cfg.DefaultImage,
	})
	keys := auth.NewAuthenticator(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL}, svc, keys)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Instrument("catalog-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.ClientKey(handler.APIKeyHeader),
			}),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	if js != nil {
		handlers := ingest.NewHandlers(txm, publisher, cfg.DefaultImage)
		dispatcher, err := ingest.NewDispatcher(m.MeterProvider().Meter("catalog/ingest"), postgres.IsTransient)
		if err != nil {
			return errors.Wrap(err, "create dispatcher")
		}
		var routes []ingest.Route
		for _, in := range integrations {
			routes = append(routes, handlers.Routes(in)...)
		}
		routes = append(routes, handlers.InventoryRoute(InventorySubject))

		consumer := natsbus.NewConsumer(js, cfg.NATS, dispatcher, lg)
		g.Go(func() error {
			ctx := zctx.Base(gctx, lg.Named("ingest"))
			lg.Info("Consuming upstream events", zap.Int("routes", len(routes)))
			return consumer.Run(ctx, routes)
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
