package queue_test

import (
	"context"
	"testing"
	"time"

	"platen/internal/batch"
	"platen/internal/pipeline"
	"platen/internal/queue"
	"platen/internal/testsupport"
)

func TestNewSheetRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	sheet, err := store.NewSheet(ctx, "/scans/math-001.png", "High")
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	if sheet.Stage != pipeline.StageUploaded {
		t.Fatalf("stage = %s", sheet.Stage)
	}

	loaded, err := store.GetByID(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded == nil {
		t.Fatal("sheet not found")
	}
	if loaded.SourcePath != "/scans/math-001.png" {
		t.Fatalf("source = %q", loaded.SourcePath)
	}
	if loaded.Metadata["priority"] != "high" {
		t.Fatalf("priority = %q", loaded.Metadata["priority"])
	}
	if loaded.Stage != pipeline.StageUploaded {
		t.Fatalf("stage = %s", loaded.Stage)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	sheet, err := store.GetByID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if sheet != nil {
		t.Fatalf("sheet = %+v", sheet)
	}
}

func TestSourcePathUniqueness(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.NewSheet(ctx, "/scans/dup.png", ""); err != nil {
		t.Fatalf("first NewSheet: %v", err)
	}
	if _, err := store.NewSheet(ctx, "/scans/dup.png", ""); err == nil {
		t.Fatal("duplicate source path should be rejected")
	}

	found, err := store.FindBySourcePath(ctx, "/scans/dup.png")
	if err != nil {
		t.Fatalf("FindBySourcePath: %v", err)
	}
	if found == nil {
		t.Fatal("sheet not found by source path")
	}
	missing, err := store.FindBySourcePath(ctx, "/scans/other.png")
	if err != nil {
		t.Fatalf("FindBySourcePath: %v", err)
	}
	if missing != nil {
		t.Fatalf("unexpected sheet: %+v", missing)
	}
}

func TestUpdatePersistsTerminalState(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	sheet, err := store.NewSheet(ctx, "/scans/essay.png", "")
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}

	sheet.BatchID = "batch-1"
	sheet.Stage = pipeline.StageError
	sheet.FailedStage = pipeline.StageGrading
	sheet.ErrorMessage = "rubric mismatch"
	sheet.Results = []pipeline.StageResult{
		pipeline.Success(pipeline.StagePreprocessing, 0.95),
		pipeline.Failure(pipeline.StageGrading, "rubric mismatch"),
	}
	if err := store.Update(ctx, sheet); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := store.GetByID(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Stage != pipeline.StageError || loaded.FailedStage != pipeline.StageGrading {
		t.Fatalf("loaded = %s (failed at %s)", loaded.Stage, loaded.FailedStage)
	}
	if loaded.ErrorMessage != "rubric mismatch" {
		t.Fatalf("error = %q", loaded.ErrorMessage)
	}
	if len(loaded.Results) != 2 {
		t.Fatalf("results = %d", len(loaded.Results))
	}
	if result, ok := loaded.ResultFor(pipeline.StagePreprocessing); !ok || result.Confidence != 0.95 {
		t.Fatalf("preprocessing result = %+v, %v", result, ok)
	}
}

func TestSaveSheetUpserts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	// Not yet in the store: SaveSheet inserts.
	sheet := pipeline.NewSheet("/scans/direct.png")
	sheet.Stage = pipeline.StageCompleted
	if err := store.SaveSheet(ctx, sheet); err != nil {
		t.Fatalf("SaveSheet insert: %v", err)
	}

	sheet.Stage = pipeline.StageManualReview
	if err := store.SaveSheet(ctx, sheet); err != nil {
		t.Fatalf("SaveSheet update: %v", err)
	}
	loaded, err := store.GetByID(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Stage != pipeline.StageManualReview {
		t.Fatalf("stage = %s", loaded.Stage)
	}
}

func TestListAndNextUploaded(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i, source := range []string{"/scans/a.png", "/scans/b.png", "/scans/c.png"} {
		sheet, err := store.NewSheet(ctx, source, "")
		if err != nil {
			t.Fatalf("NewSheet %d: %v", i, err)
		}
		if i == 2 {
			sheet.Stage = pipeline.StageCompleted
			if err := store.Update(ctx, sheet); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d", len(all))
	}

	completed, err := store.List(ctx, pipeline.StageCompleted)
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 1 || completed[0].SourcePath != "/scans/c.png" {
		t.Fatalf("completed = %+v", completed)
	}

	uploaded, err := store.NextUploaded(ctx, 10)
	if err != nil {
		t.Fatalf("NextUploaded: %v", err)
	}
	if len(uploaded) != 2 {
		t.Fatalf("uploaded = %d", len(uploaded))
	}
	if uploaded[0].SourcePath != "/scans/a.png" {
		t.Fatalf("oldest first, got %q", uploaded[0].SourcePath)
	}

	limited, err := store.NextUploaded(ctx, 1)
	if err != nil {
		t.Fatalf("NextUploaded limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited = %d", len(limited))
	}
}

func TestRetrySheets(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	errored, err := store.NewSheet(ctx, "/scans/err.png", "")
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	errored.Stage = pipeline.StageError
	errored.ErrorMessage = "boom"
	errored.FailedStage = pipeline.StageExtraction
	errored.Results = []pipeline.StageResult{pipeline.Failure(pipeline.StageExtraction, "boom")}
	if err := store.Update(ctx, errored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	review, err := store.NewSheet(ctx, "/scans/review.png", "")
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	review.Stage = pipeline.StageManualReview
	if err := store.Update(ctx, review); err != nil {
		t.Fatalf("Update: %v", err)
	}

	done, err := store.NewSheet(ctx, "/scans/done.png", "")
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	done.Stage = pipeline.StageCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	affected, err := store.RetrySheets(ctx)
	if err != nil {
		t.Fatalf("RetrySheets: %v", err)
	}
	if affected != 2 {
		t.Fatalf("affected = %d, want 2", affected)
	}

	reset, err := store.GetByID(ctx, errored.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reset.Stage != pipeline.StageUploaded {
		t.Fatalf("stage = %s", reset.Stage)
	}
	if reset.ErrorMessage != "" || reset.FailedStage != "" || len(reset.Results) != 0 {
		t.Fatalf("history not cleared: %+v", reset)
	}

	kept, err := store.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if kept.Stage != pipeline.StageCompleted {
		t.Fatalf("completed sheet should not be retried, stage = %s", kept.Stage)
	}
}

func TestRetrySheetsByID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, _ := store.NewSheet(ctx, "/scans/one.png", "")
	second, _ := store.NewSheet(ctx, "/scans/two.png", "")
	for _, sheet := range []*pipeline.Sheet{first, second} {
		sheet.Stage = pipeline.StageError
		if err := store.Update(ctx, sheet); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	affected, err := store.RetrySheets(ctx, first.ID)
	if err != nil {
		t.Fatalf("RetrySheets: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d", affected)
	}
	untouched, _ := store.GetByID(ctx, second.ID)
	if untouched.Stage != pipeline.StageError {
		t.Fatalf("second sheet stage = %s", untouched.Stage)
	}
}

func TestClearAndClearTerminal(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	pending, _ := store.NewSheet(ctx, "/scans/pending.png", "")
	done, _ := store.NewSheet(ctx, "/scans/done.png", "")
	done.Stage = pipeline.StageCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	removed, err := store.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("ClearTerminal: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	if sheet, _ := store.GetByID(ctx, pending.ID); sheet == nil {
		t.Fatal("pending sheet must survive ClearTerminal")
	}

	removed, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	uploaded, _ := store.NewSheet(ctx, "/scans/u.png", "")
	_ = uploaded
	grading, _ := store.NewSheet(ctx, "/scans/g.png", "")
	grading.Stage = pipeline.StageGrading
	if err := store.Update(ctx, grading); err != nil {
		t.Fatalf("Update: %v", err)
	}
	failed, _ := store.NewSheet(ctx, "/scans/f.png", "")
	failed.Stage = pipeline.StageError
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[pipeline.StageUploaded] != 1 || stats[pipeline.StageGrading] != 1 || stats[pipeline.StageError] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Uploaded != 1 || health.Processing != 1 || health.Errored != 1 {
		t.Fatalf("health = %+v", health)
	}

	dbHealth, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.DatabaseReadable || !dbHealth.TableExists {
		t.Fatalf("db health = %+v", dbHealth)
	}
	if !dbHealth.IntegrityCheck || dbHealth.TotalSheets != 3 {
		t.Fatalf("db health = %+v", dbHealth)
	}
}

func TestSaveAndListBatches(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	result := &batch.BatchResult{
		BatchID:      "batch-42",
		Started:      started,
		Finished:     started.Add(30 * time.Second),
		Total:        3,
		Completed:    1,
		ManualReview: 1,
		Errored:      1,
		Durations: batch.Timing{
			Avg: 900 * time.Millisecond,
			P50: 800 * time.Millisecond,
			P90: 1200 * time.Millisecond,
			P99: 1500 * time.Millisecond,
		},
	}
	if err := store.SaveBatch(ctx, result); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	records, err := store.ListBatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	record := records[0]
	if record.ID != "batch-42" || record.Total != 3 || record.Completed != 1 {
		t.Fatalf("record = %+v", record)
	}
	if record.P90Duration != 1200*time.Millisecond {
		t.Fatalf("p90 = %s", record.P90Duration)
	}
}

func TestSchemaSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.NewSheet(context.Background(), "/scans/persist.png", ""); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	sheets, err := reopened.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("sheets = %d", len(sheets))
	}
}
