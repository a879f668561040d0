package queue

import (
	"time"

	"platen/internal/pipeline"
)

// HealthSummary describes aggregated sheet counts per lifecycle bucket.
type HealthSummary struct {
	Total      int
	Uploaded   int
	Processing int
	Completed  int
	Review     int
	Errored    int
}

// DatabaseHealth captures diagnostic information about the store file.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalSheets      int
	Error            string
}

// BatchRecord is a persisted batch summary.
type BatchRecord struct {
	ID           string
	Started      time.Time
	Finished     time.Time
	Total        int
	Completed    int
	ManualReview int
	Errored      int
	AvgDuration  time.Duration
	P50Duration  time.Duration
	P90Duration  time.Duration
	P99Duration  time.Duration
}

var terminalStages = []pipeline.Stage{
	pipeline.StageCompleted,
	pipeline.StageManualReview,
	pipeline.StageError,
}

var retryableStages = []pipeline.Stage{
	pipeline.StageManualReview,
	pipeline.StageError,
}
