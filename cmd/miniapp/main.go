package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/muse-store/miniapp/internal/di"
	"github.com/muse-store/miniapp/internal/platform/config"
	"github.com/muse-store/miniapp/internal/platform/observability"
	"github.com/muse-store/miniapp/internal/platform/requestctx"
	"github.com/muse-store/miniapp/internal/platform/secrets"
)

const (
	sessionSweepInterval = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("miniapp")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Cancelled on shutdown so websocket host channels close before the server drains.
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	container, err := di.NewContainer(ctx, cfg, di.Options{Logger: logger, ServeContext: serveCtx})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		container.Sessions.Run(serveCtx, sessionSweepInterval)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
	go func() {
		serverLogger.Info("miniapp api listening", zap.String("catalog", cfg.Store.CatalogSource))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopServing()
	<-sweepDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	project := lookup("MINIAPP_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("MINIAPP_FIRESTORE_PROJECT_ID")
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("MINIAPP_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookup("MINIAPP_SECRET_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve to a value. Local runs tolerate
// missing credentials.
func requiredSecretNames(env map[string]string) []string {
	environment := config.EnvironmentLocal
	if env != nil {
		if value := strings.ToLower(strings.TrimSpace(env["MINIAPP_ENVIRONMENT"])); value != "" {
			environment = value
		}
	}
	if environment == config.EnvironmentLocal {
		return nil
	}
	return []string{"Session.SigningKey", "Telegram.BotToken"}
}
