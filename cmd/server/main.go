package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/iudanet/labportal/internal/config"
	"github.com/iudanet/labportal/internal/logging"
	"github.com/iudanet/labportal/internal/server"
	"github.com/iudanet/labportal/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// adminPasswordEnv пароль учетной записи из --admin-email
const adminPasswordEnv = config.EnvPrefix + "ADMIN_PASSWORD"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, fs, err := config.Load("labapi-dev", os.Args[1:], (*config.Config).BindServerFlags)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Show version and exit if requested
	if showVersion, _ := fs.GetBool("version"); showVersion {
		printVersion()
		return 0
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.Server.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Server.DBPath, "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	srv := server.New(cfg.Server, store, logger, server.WithVersion(Version))
	defer srv.Close()

	if cfg.Server.AdminEmail != "" {
		password := os.Getenv(adminPasswordEnv)
		if password == "" {
			logger.Error("admin email set but password is missing", "env", adminPasswordEnv)
			return 2
		}
		if err := srv.SeedAdmin(ctx, cfg.Server.AdminEmail, password); err != nil {
			logger.Error("failed to seed admin", "error", err)
			return 1
		}
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("Lab Portal Dev API (labapi-dev)\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
