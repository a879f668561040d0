package config

// GatePolicyMin selects the weakest-link confidence aggregate.
const GatePolicyMin = "min"

// GatePolicyWeightedMean selects the weighted-mean confidence aggregate.
const GatePolicyWeightedMean = "weighted_mean"

// DefaultConfidenceThreshold is the quality gate cutoff applied when the
// config file does not override it.
const DefaultConfidenceThreshold = 0.75

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   "~/platen/inbox",
			StagingDir: "~/platen/staging",
			LogDir:     "~/platen/logs",
			ReviewDir:  "~/platen/review",
		},
		Processing: Processing{
			ConfidenceThreshold: DefaultConfidenceThreshold,
			MaxConcurrent:       4,
			GatePolicy:          GatePolicyMin,
			StageWeights:        map[string]float64{},
			StageTimeout:        0,
			MaxRetries:          3,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			InboxScanInterval:  5,
			BatchSize:          8,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Batch:          true,
			Review:         true,
			Errors:         true,
		},
	}
}
