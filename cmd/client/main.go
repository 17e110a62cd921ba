package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/iudanet/labportal/internal/client/app"
	"github.com/iudanet/labportal/internal/client/cli"
	"github.com/iudanet/labportal/internal/client/iocli"
	"github.com/iudanet/labportal/internal/config"
	"github.com/iudanet/labportal/internal/logging"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	stdio := iocli.NewStdio()

	cfg, fs, err := config.Load("labctl", os.Args[1:], (*config.Config).BindClientFlags)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cli.PrintUsage(stdio)
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

	// Получаем команду
	args := fs.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		return 1
	}
	command := args[0]
	if command == "help" {
		cli.PrintUsage(stdio)
		return 0
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg.Client, logger, app.WithRedirector(cli.LoginNotice(stdio)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize client: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close session database", "error", err)
		}
	}()

	// Запрос CSRF cookie при старте; при неудаче первый запрос
	// получит 419 и обновит токен сам
	if err := a.Bootstrap(ctx); err != nil {
		logger.Warn("csrf bootstrap failed", "error", err)
	}

	if err := cli.New(a, stdio).Run(ctx, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("Lab Portal Client (labctl)\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
