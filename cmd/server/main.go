package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/mpesa-bridge/internal/adapters/daraja"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/memory"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/postgres"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/redis"
	"github.com/kevin07696/mpesa-bridge/internal/adapters/shopify"
	"github.com/kevin07696/mpesa-bridge/internal/config"
	"github.com/kevin07696/mpesa-bridge/internal/domain/ports"
	paymentHandler "github.com/kevin07696/mpesa-bridge/internal/handlers/payment"
	"github.com/kevin07696/mpesa-bridge/internal/middleware"
	"github.com/kevin07696/mpesa-bridge/internal/services/reconciliation"
	pkghttp "github.com/kevin07696/mpesa-bridge/pkg/http"
	pkgmiddleware "github.com/kevin07696/mpesa-bridge/pkg/middleware"
	"github.com/kevin07696/mpesa-bridge/pkg/observability"
	"github.com/kevin07696/mpesa-bridge/pkg/resilience"
	"github.com/kevin07696/mpesa-bridge/pkg/shutdown"
	"github.com/kevin07696/mpesa-bridge/pkg/timeutil"
)

func main() {
	// Real environment always wins over .env
	envFileErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	if envFileErr == nil {
		logger.Info("Loaded .env file")
	}
	logger.Info("Starting M-Pesa bridge",
		zap.String("environment", cfg.Environment),
		zap.String("daraja_env", cfg.Daraja.Environment),
		zap.String("store_backend", cfg.Store.Backend),
	)

	ctx := context.Background()

	sm, closeSecrets, err := initSecretManager(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize secret manager", zap.Error(err))
	}
	if sm != nil {
		if err := cfg.ResolveSecrets(ctx, sm, logger); err != nil {
			logger.Fatal("Failed to resolve secrets", zap.Error(err))
		}
	}
	if err := closeSecrets(); err != nil {
		logger.Warn("Failed to close secret manager", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	store, err := initStore(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		logger.Fatal("Failed to initialize transaction store", zap.Error(err))
	}

	timeouts := resilience.DefaultTimeoutConfig().WithExternalAPI(cfg.Core.OutboundTimeout)
	service := initService(cfg, store, timeouts, logger)

	if cfg.Core.SweepInterval > 0 {
		sweeper := shutdown.NewBackgroundWorker("retention-sweeper", logger)
		sweeper.Start(func(ctx context.Context) {
			service.RunSweeper(ctx, cfg.Core.SweepInterval)
		})
		shutdownMgr.Register("retention-sweeper", sweeper.Shutdown)
	} else {
		logger.Info("Background sweeper disabled; sweeping on initiate only")
	}

	health := observability.NewHealthChecker(cfg.Environment)
	health.AddCheck("store", store)

	rateLimiter := pkgmiddleware.NewRateLimiter(pkgmiddleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		Burst:             cfg.Server.RateLimitBurst,
		TrustProxy:        cfg.Server.TrustProxyHeaders,
	}, logger)
	shutdownMgr.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	callbackAllowlist := middleware.NewCallbackAllowlist(cfg.Server.CallbackAllowedIPs, cfg.Server.TrustProxyHeaders, logger)
	if !callbackAllowlist.Enabled() && cfg.IsProduction() {
		logger.Warn("CALLBACK_ALLOWED_IPS is empty; gateway callbacks are accepted from any address")
	}

	mux := http.NewServeMux()
	observability.RegisterRoutes(mux, health)
	paymentHandler.NewHandler(service, logger).RegisterRoutes(mux, rateLimiter.Middleware, callbackAllowlist.Middleware)

	handler := pkgmiddleware.Chain(
		observability.HTTPMetrics(mux),
		pkgmiddleware.Recovery(logger, !cfg.IsProduction()),
		pkgmiddleware.RequestID,
		pkgmiddleware.Logging(logger, cfg.Server.TrustProxyHeaders),
		middleware.NewSecurityHeaders(cfg.IsProduction()).Middleware,
		middleware.CORS(cfg.Server.CORSOrigins, logger),
		pkgmiddleware.Timeout(timeouts),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		health.SetDraining()
		return httpServer.Shutdown(ctx)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("cors_origins", cfg.Server.CORSOrigins),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	go func() {
		if err := <-serveErr; err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			stopWaiting()
		}
	}()

	shutdownMgr.WaitForSignal(waitCtx)
	stopWaiting()

	if err := shutdownMgr.Shutdown(); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
	}
}

// initLogger builds a JSON production logger or a console development
// logger; LOG_LEVEL overrides the default level of either.
func initLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Logger.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logger.Level)
		if err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("build logger: %v", err))
	}
	return logger
}

// initStore opens the configured transaction store and registers its
// cleanup with the shutdown manager.
func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, shutdownMgr *shutdown.Manager) (ports.TransactionStore, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.Store.DatabaseURL)

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := postgres.NewPool(connectCtx, poolCfg, logger)
		if err != nil {
			return nil, err
		}
		shutdownMgr.RegisterNoErr("postgres-pool", pool.Close)

		store := postgres.NewTransactionStore(pool, logger, poolCfg.QueryTimeout)
		if err := store.Migrate(connectCtx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}

		monitorCtx, stopMonitor := context.WithCancel(ctx)
		postgres.StartPoolMonitoring(monitorCtx, pool, 30*time.Second, logger)
		shutdownMgr.RegisterNoErr("postgres-pool-monitor", stopMonitor)

		logger.Info("Using PostgreSQL transaction store")
		return store, nil

	case config.StoreRedis:
		client, err := redis.NewClient(ctx, redis.ClientConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		}, logger)
		if err != nil {
			return nil, err
		}
		shutdownMgr.RegisterCloser("redis-client", client)

		logger.Info("Using Redis transaction store", zap.String("addr", cfg.Store.RedisAddr))
		return redis.NewTransactionStore(client, redis.StoreConfig{
			// keys the sweeper never reached still expire
			TTL: 2 * cfg.Core.UnresolvedRetention,
		}, logger), nil

	default:
		logger.Info("Using in-memory transaction store; state is lost on restart")
		return memory.NewTransactionStore(), nil
	}
}

// initService wires the gateway and commerce clients into the reconciliation core
func initService(cfg *config.Config, store ports.TransactionStore, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *reconciliation.Service {
	gateway := daraja.NewClient(&daraja.Config{
		ConsumerKey:    cfg.Daraja.ConsumerKey,
		ConsumerSecret: cfg.Daraja.ConsumerSecret,
		Shortcode:      cfg.Daraja.Shortcode,
		TillNumber:     cfg.Daraja.TillNumber,
		Passkey:        cfg.Daraja.Passkey,
		CallbackURL:    cfg.Daraja.CallbackURL,
		Environment:    cfg.Daraja.Environment,
		BaseURL:        cfg.Daraja.BaseURL,
	}, pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), timeouts.ExternalAPI), logger)

	commerce := shopify.NewClient(&shopify.Config{
		StoreDomain:  cfg.Shopify.StoreDomain,
		ClientID:     cfg.Shopify.ClientID,
		ClientSecret: cfg.Shopify.ClientSecret,
		AccessToken:  cfg.Shopify.AccessToken,
		APIVersion:   cfg.Shopify.APIVersion,
	}, pkghttp.NewHTTPClient(pkghttp.CommerceClientConfig(), timeouts.ExternalAPI), logger)

	return reconciliation.NewService(gateway, commerce, store, timeutil.SystemClock{}, logger, reconciliation.Config{
		Timeouts:            timeouts,
		Retention:           cfg.Core.Retention,
		UnresolvedRetention: cfg.Core.UnresolvedRetention,
	})
}
