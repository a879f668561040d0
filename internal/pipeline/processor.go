package pipeline

import (
	"context"
	"fmt"

	"platen/internal/services"
)

// Processor is the capability contract for one stage. Implementations (OCR,
// segmentation, grading, image quality scoring) are supplied externally; the
// engine only requires this shape.
type Processor interface {
	Process(ctx context.Context, sheet *Sheet) (StageResult, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, sheet *Sheet) (StageResult, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, sheet *Sheet) (StageResult, error) {
	return f(ctx, sheet)
}

// ProcessorSet maps processing stages to their processors. The quality check
// stage is decided by the gate and takes no processor.
type ProcessorSet map[Stage]Processor

// Validate confirms every processor stage has a handler.
func (ps ProcessorSet) Validate() error {
	for _, stage := range ProcessorStages() {
		if ps[stage] == nil {
			return services.Wrap(services.ErrConfiguration, string(stage), "validate processors",
				fmt.Sprintf("no processor registered for stage %s", stage), nil)
		}
	}
	return nil
}
