// Package pipeline owns the per-sheet state machine. A sheet moves through a
// fixed stage order, each stage handled by an injected processor, and ends in
// exactly one terminal state: completed, manual_review, or error. The quality
// gate converts the accumulated stage results into the completed/review
// verdict and never raises.
package pipeline
