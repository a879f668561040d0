package testsupport

import (
	"context"

	"platen/internal/pipeline"
)

// StubProcessors returns a complete processor set that succeeds every stage
// with the given confidence.
func StubProcessors(confidence float64) pipeline.ProcessorSet {
	set := pipeline.ProcessorSet{}
	for _, stage := range pipeline.ProcessorStages() {
		stage := stage
		set[stage] = pipeline.ProcessorFunc(func(_ context.Context, _ *pipeline.Sheet) (pipeline.StageResult, error) {
			return pipeline.Success(stage, confidence), nil
		})
	}
	return set
}
