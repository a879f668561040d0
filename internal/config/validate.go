package config

import (
	"fmt"

	"platen/internal/services"
)

// Validate checks configuration invariants. Violations are configuration
// errors surfaced synchronously before any scheduling begins.
func (c *Config) Validate() error {
	if c.Processing.ConfidenceThreshold < 0 || c.Processing.ConfidenceThreshold > 1 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("confidence_threshold %.3f outside [0,1]", c.Processing.ConfidenceThreshold), nil)
	}
	if c.Processing.MaxConcurrent < 1 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("max_concurrent must be at least 1, got %d", c.Processing.MaxConcurrent), nil)
	}
	switch c.Processing.GatePolicy {
	case GatePolicyMin, GatePolicyWeightedMean:
	default:
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("gate_policy %q must be %q or %q", c.Processing.GatePolicy, GatePolicyMin, GatePolicyWeightedMean), nil)
	}
	for stage, weight := range c.Processing.StageWeights {
		if weight < 0 {
			return services.Wrap(services.ErrConfiguration, "config", "validate",
				fmt.Sprintf("stage weight for %q must not be negative", stage), nil)
		}
	}
	if c.Processing.StageTimeout < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "stage_timeout must not be negative", nil)
	}
	if c.Processing.MaxRetries < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "max_retries must not be negative", nil)
	}
	if c.Workflow.BatchSize < 1 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("batch_size must be at least 1, got %d", c.Workflow.BatchSize), nil)
	}
	if c.Workflow.QueuePollInterval < 0 || c.Workflow.ErrorRetryInterval < 0 || c.Workflow.InboxScanInterval < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "workflow intervals must not be negative", nil)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("logging format %q must be console or json", c.Logging.Format), nil)
	}
	return nil
}
