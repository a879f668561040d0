package main

import (
	"context"
	"strings"
	"testing"

	"platen/internal/pipeline"
)

func TestQueueListShowsSheets(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewSheet(ctx, "/scans/alpha.png", ""); err != nil {
		t.Fatalf("alpha: %v", err)
	}
	if _, err := env.store.NewSheet(ctx, "/scans/beta.png", "high"); err != nil {
		t.Fatalf("beta: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha.png")
	requireContains(t, out, "beta.png")
	requireContains(t, out, "Uploaded")
}

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueListStageFilter(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewSheet(ctx, "/scans/alpha.png", ""); err != nil {
		t.Fatalf("alpha: %v", err)
	}
	beta, err := env.store.NewSheet(ctx, "/scans/beta.png", "")
	if err != nil {
		t.Fatalf("beta: %v", err)
	}
	beta.MarkError("scanner jam")
	if err := env.store.Update(ctx, beta); err != nil {
		t.Fatalf("update beta: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list", "--stage", "error"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list --stage: %v", err)
	}
	requireContains(t, out, "beta.png")
	if strings.Contains(out, "alpha.png") {
		t.Fatalf("unexpected alpha in filtered output:\n%s", out)
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	alpha, err := env.store.NewSheet(ctx, "/scans/alpha.png", "")
	if err != nil {
		t.Fatalf("alpha: %v", err)
	}
	alpha.MarkError("processor crashed")
	if err := env.store.Update(ctx, alpha); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Requeued 1 sheets")

	updated, err := env.store.GetByID(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("lookup alpha: %v", err)
	}
	if updated.Stage != pipeline.StageUploaded {
		t.Fatalf("expected uploaded, got %s", updated.Stage)
	}

	updated.MarkError("processor crashed again")
	if err := env.store.Update(ctx, updated); err != nil {
		t.Fatalf("re-fail: %v", err)
	}

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 finished sheets")

	if _, err := env.store.NewSheet(ctx, "/scans/gamma.png", ""); err != nil {
		t.Fatalf("gamma: %v", err)
	}
	out, _, err = runCLI(t, []string{"queue", "clear", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --all: %v", err)
	}
	requireContains(t, out, "Cleared 1 sheets")
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewSheet(ctx, "/scans/alpha.png", ""); err != nil {
		t.Fatalf("alpha: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Uploaded: 1")

	out, _, err = runCLI(t, []string{"queue", "health", "--detailed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health --detailed: %v", err)
	}
	requireContains(t, out, "Database:")
	requireContains(t, out, "Integrity: yes")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewSheet(ctx, "/scans/alpha.png", ""); err != nil {
		t.Fatalf("alpha: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon: stopped")
	requireContains(t, out, "Uploaded")
}
