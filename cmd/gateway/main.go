package main

import (
	"chat-gateway/auth"
	"chat-gateway/contract"
	"chat-gateway/errors"
	"chat-gateway/internal"
	"chat-gateway/moderation"
	"chat-gateway/observability"
	"chat-gateway/repositories"
	"chat-gateway/runtime"
	"chat-gateway/runtime/workers"
	"chat-gateway/services"
	"chat-gateway/transport/health"
	"chat-gateway/transport/rest"
	"chat-gateway/transport/ws"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gateway terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so that deferred cleanups execute before exit.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment alone may be enough.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	repository, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Chat domain
	moderator, err := moderation.NewModerator(config.Words(), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
	}
	chatService := services.NewChatService(logger, repository, moderator)
	if err := chatService.Seed(ctx); err != nil {
		return exitRuntime, fmt.Errorf("default room seeding failed: %w", err)
	}

	// 4. Live connection management
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(logger, registry, metrics, config.SendTimeout)
	manager := runtime.NewSessionManager(logger, registry, broadcaster, chatService, metrics, runtime.SessionConfig{
		HistoryLimit:     config.HistoryLimit,
		MaxContentLength: config.MaxContentLength,
		RateLimit:        config.RateLimitPerSecond,
		RateBurst:        config.RateLimitBurst,
	})

	sup := workers.NewSupervisor(logger, config.RestartInterval).
		Add(
			workers.NewProcessStatsWorker(logger, registry, metrics, config.StatsInterval),
			workers.NewRoomJanitorWorker(logger, registry, manager, config.JanitorInterval),
		)
	go sup.Run(ctx)

	// 5. HTTP surface
	// Sessions outlive the signal: shutdown closes them one by one so peers
	// still hear user_left. The cancel only reaps what the drain left behind.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	wsHandler := ws.NewHandler(sessionCtx, logger, auth.NewVerifier(config.JWTSecret), manager, ws.HandlerConfig{
		Conn: ws.ConnConfig{
			WriteWait:    config.WriteWait,
			PongWait:     config.PongWait,
			MaxFrameSize: config.MaxFrameSize,
		},
		AllowedOrigins: config.Origins(),
	})
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: rest.NewRouter(rest.Dependencies{
			Log:            logger,
			Queries:        chatService,
			Registry:       registry,
			Readiness:      manager,
			Metrics:        metrics.Handler(),
			WebSocket:      wsHandler,
			AllowedOrigins: config.Origins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := health.NewServer(logger)
	go func() {
		if err := healthServer.Serve(listener); err != nil {
			errChan <- err
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server failed, shutting down", "error", err)
		shutdown(logger, config.ShutdownTimeout, manager, httpServer, healthServer, sup)
		return exitRuntime, err
	}

	// 8. Graceful shutdown
	if err := shutdown(logger, config.ShutdownTimeout, manager, httpServer, healthServer, sup); err != nil {
		return exitRuntime, err
	}
	logger.Info("Gateway stopped cleanly")
	return exitOK, nil
}

// shutdown drains sessions first so that every peer still hears user_left
// while the HTTP server is alive, then stops the servers and the workers.
func shutdown(
	logger *slog.Logger,
	timeout time.Duration,
	manager *runtime.SessionManager,
	httpServer *http.Server,
	healthServer *health.Server,
	sup contract.ISupervisor,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Shutting down gracefully...", "sessions", manager.Len())
	healthServer.Draining()

	var errs []error
	if err := manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sessions not drained: %w", err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	healthServer.Stop(ctx)
	sup.Stop()
	return goerrors.Join(errs...)
}

// openStore opens the configured backend and returns its cleanup.
func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (repositories.IChatRepository, func(), error) {
	switch config.StoreDriver {
	case internal.DriverBadger:
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectMapper)
		}
		return repositories.NewChatRepository(db, logger), func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}, nil

	case internal.DriverPostgres:
		pool, err := repositories.NewPostgresPool(ctx, config.PgURL, int32(config.PgMaxConn))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		repository := repositories.NewPostgresChatRepository(pool, logger)
		if err := repository.RunMigrations(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations failed: %w", err)
		}
		return repository, func() {
			logger.Info("Closing Postgres pool...")
			pool.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", errors.ErrUnknownDriver, config.StoreDriver)
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath).
		WithLogger(repositories.NewBadgerLogger(logger))

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
