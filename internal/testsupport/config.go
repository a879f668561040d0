// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store setup, and deterministic stub processors.
package testsupport

import (
	"path/filepath"
	"testing"

	"platen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ReviewDir = filepath.Join(base, "review")
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithConfidenceThreshold overrides the quality gate threshold.
func WithConfidenceThreshold(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Processing.ConfidenceThreshold = threshold
	}
}

// WithMaxConcurrent overrides the task concurrency bound.
func WithMaxConcurrent(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Processing.MaxConcurrent = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
