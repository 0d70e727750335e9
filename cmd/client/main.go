package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/clinicsync/internal/client/app"
	"github.com/iudanet/clinicsync/internal/client/cli"
	"github.com/iudanet/clinicsync/internal/client/iocli"
	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги; переопределяют переменные окружения
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "", "Server URL")
	dbPath := flag.String("db", "", "Path to local database")
	envFile := flag.String("env", ".env", "Path to .env file")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.New(stdio, nil, nil, nil, nil, nil).PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadClient(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Логи идут в stderr, stdout остается для вывода команд
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if errors.Is(err, storage.ErrStorageLocked) {
		// База занята демоном: записи уходят через его локальный API
		if handedOff(args[0]) && cfg.LocalAddr != "" {
			c := cli.New(stdio, nil, app.NewLocalClient(cfg.LocalAddr), nil, nil, nil)
			if runErr := c.Run(ctx, args[0], args[1:]); runErr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
				os.Exit(1)
			}
			return
		}
		fmt.Fprintf(os.Stderr, "Database %s is held by a running sync daemon; stop it or use appointment/ingest\n", cfg.DBPath)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start client: %v\n", err)
		os.Exit(1)
	}

	c := cli.New(stdio, a.Auth, a.Data, a.Processor, a, a, cli.WithRetainSynced(cfg.RetainSynced))
	runErr := c.Run(ctx, args[0], args[1:])

	if err := a.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// handedOff reports whether a command can run through the daemon's local API
func handedOff(command string) bool {
	return command == "appointment" || command == "ingest"
}

func printVersion() {
	fmt.Printf("ClinicSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
