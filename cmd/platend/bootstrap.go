package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"platen/internal/config"
	"platen/internal/daemon"
	"platen/internal/logging"
	"platen/internal/notifications"
	"platen/internal/queue"
	"platen/internal/sheetproc"
	"platen/internal/workflow"
)

func runDaemon(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.New(loggerOptions(cfg))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	manager, err := workflow.New(cfg, store, notifier, sheetproc.NewSet(), logger)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, manager, notifier)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	d.Stop()
	return nil
}

// loggerOptions maps the config's logging section onto logger construction,
// writing to stdout and to a log file under the configured log directory.
func loggerOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "platen.log"),
		},
	}
}
