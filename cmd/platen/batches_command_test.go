package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"platen/internal/batch"
)

func TestBatchesShowsRecentRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	started := time.Now().Add(-time.Minute).UTC()
	result := &batch.BatchResult{
		BatchID:      uuid.NewString(),
		Started:      started,
		Finished:     started.Add(30 * time.Second),
		Total:        3,
		Completed:    2,
		ManualReview: 1,
		Durations: batch.Timing{
			Avg: 9 * time.Second,
			P50: 8 * time.Second,
			P90: 12 * time.Second,
			P99: 12 * time.Second,
		},
	}
	if err := env.store.SaveBatch(context.Background(), result); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	out, _, err := runCLI(t, []string{"batches"}, env.configPath)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	requireContains(t, out, shortID(result.BatchID))
	requireContains(t, out, "12s")
}

func TestBatchesEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"batches"}, env.configPath)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	requireContains(t, out, "No batches recorded")
}
