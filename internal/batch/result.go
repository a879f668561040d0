package batch

import (
	"math"
	"sort"
	"time"

	"platen/internal/pipeline"
)

// Timing summarizes per-sheet processing durations for one batch.
type Timing struct {
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
}

// ItemSummary is the per-sheet slice of a batch outcome.
type ItemSummary struct {
	SheetID           string
	SourcePath        string
	Stage             pipeline.Stage
	FailedStage       pipeline.Stage
	ErrorMessage      string
	OverallConfidence float64
	Duration          time.Duration
}

// BatchResult is the immutable aggregate returned by ProcessBatch.
type BatchResult struct {
	BatchID      string
	Started      time.Time
	Finished     time.Time
	Total        int
	Completed    int
	ManualReview int
	Errored      int
	Durations    Timing
	Items        []ItemSummary
}

func summarizeDurations(durations []time.Duration) Timing {
	if len(durations) == 0 {
		return Timing{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return Timing{
		Avg: total / time.Duration(len(sorted)),
		P50: percentile(sorted, 50),
		P90: percentile(sorted, 90),
		P99: percentile(sorted, 99),
	}
}

// percentile uses the nearest-rank method on an already sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
