package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/pmtool/internal/client/api"
	"github.com/iudanet/pmtool/internal/client/auth"
	"github.com/iudanet/pmtool/internal/client/cli"
	"github.com/iudanet/pmtool/internal/client/iocli"
	"github.com/iudanet/pmtool/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("pmctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { cli.PrintUsage(stderr) }

	showVersion := fs.Bool("version", false, "Show version information")
	serverURL := fs.String("server", envOr("PMCTL_SERVER", "http://localhost:8000"), "Server URL")
	dbPath := fs.String("db", envOr("PMCTL_DB", "pmctl.db"), "Path to local session database")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		cli.PrintUsage(stderr)
		return 1
	}

	// Клиент пишет в лог только предупреждения
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("error", err))
		}
	}()

	apiClient := api.NewClient(*serverURL)
	authService := auth.NewService(apiClient, store, *serverURL)
	app := cli.New(iocli.NewStdio(), authService, apiClient)

	if err := app.Run(ctx, rest[0], rest[1:]); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUnknownCommand) {
			cli.PrintUsage(stderr)
		}
		return 1
	}
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printVersion() {
	fmt.Printf("pmctl Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
