package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skobkin/tempstatus-web/internal/app"
	"github.com/skobkin/tempstatus-web/internal/config"
	"github.com/skobkin/tempstatus-web/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	version.Set(version.FromBuildInfo(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	}))

	envFile, err := config.LoadEnvFile()
	if err != nil {
		fatal("failed to load env file", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)
	if envFile != "" {
		logger.Info("loaded env file", "path", envFile)
	}
	info := version.Current()
	logger.Info("starting tempstatus-web", "version", info.Version, "commit", info.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, logger, cfg); err != nil {
		logger.Error("application error", "err", err)
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	slog.New(handler).Error(msg, "err", err)
	os.Exit(1)
}
