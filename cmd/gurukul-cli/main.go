package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/progresssync"
	"github.com/gurukul-lms/gurukul-api/pkg/config"
	"github.com/gurukul-lms/gurukul-api/pkg/logger"
	"github.com/gurukul-lms/gurukul-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg, "cli")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Client.BaseURL == "" || cfg.Client.Token == "" {
		logr.Fatal("GURUKUL_API_URL and GURUKUL_TOKEN must be set")
	}
	statePath := cfg.Client.StateFile
	if statePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logr.Fatal("failed to resolve config dir", zap.Error(err))
		}
		statePath = filepath.Join(dir, "gurukul", "state.json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// one id per invocation ties the server log lines of a command together
	ctx = requestid.NewContext(ctx, "cli-"+uuid.NewString())

	api := progresssync.NewAPIClient(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout)
	cache, err := progresssync.NewCache(ctx, api, progresssync.NewFileStore(statePath), progresssync.Options{
		MinSyncInterval: cfg.Client.MinSyncInterval,
		Logger:          logr,
	})
	if err != nil {
		logr.Fatal("failed to open local state", zap.String("path", statePath), zap.Error(err))
	}

	cli := commandLine{api: api, courses: api, cache: cache, out: os.Stdout}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logr.Error("command failed", zap.Error(err))
		}
		stop()
		os.Exit(1)
	}
}
