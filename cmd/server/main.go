package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/clinicsync/internal/config"
	"github.com/iudanet/clinicsync/internal/server/handlers"
	"github.com/iudanet/clinicsync/internal/server/jwt"
	"github.com/iudanet/clinicsync/internal/server/middleware"
	"github.com/iudanet/clinicsync/internal/server/router"
	"github.com/iudanet/clinicsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	envFile := flag.String("env", ".env", "Path to .env file")
	addr := flag.String("addr", "", "Listen address")
	dbPath := flag.String("db", "", "Path to server database")
	issueToken := flag.String("issue-token", "", "Print an access token for the given user id and exit")
	phone := flag.String("phone", "", "Phone claim for -issue-token")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.LoadServer(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	tokens := jwt.NewService(cfg.JWTSecret, cfg.TokenTTL)

	// Выпуск токена для настройки клиента без отдельного сервиса логина
	if *issueToken != "" {
		token, expiresAt, err := tokens.IssueToken(*issueToken, *phone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "Expires at %s\n", expiresAt.Format(time.RFC3339))
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))

	if err := run(cfg, tokens, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server, tokens *jwt.Service, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	feed := handlers.NewFeedHub(logger)
	defer feed.Close()
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, logger)
	defer limiter.Stop()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: router.New(router.Deps{
			Logger:   logger,
			Store:    store,
			Tokens:   tokens,
			Feed:     feed,
			Presence: handlers.NewPresenceHub(logger),
			Limiter:  limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Websocket соединения не отслеживаются Shutdown; их закрывает feed.Close
	feed.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func printVersion() {
	fmt.Printf("ClinicSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
