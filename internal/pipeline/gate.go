package pipeline

import (
	"fmt"
	"strings"

	"platen/internal/config"
)

// confidenceSpreadBound is the max-min confidence spread tolerated before the
// extra analysis check flags a sheet.
const confidenceSpreadBound = 0.35

// GateConfig parameterizes the quality gate decision.
type GateConfig struct {
	// ConfidenceThreshold is the minimum overall confidence for automatic
	// completion.
	ConfidenceThreshold float64
	// Policy selects the aggregate: config.GatePolicyMin (weakest link) or
	// config.GatePolicyWeightedMean.
	Policy string
	// StageWeights apply to the weighted mean; stages without a weight count
	// as 1.
	StageWeights map[Stage]float64
	// Issues are externally supplied problems that force manual review.
	Issues []string
	// ExtraAnalysis also flags sheets whose per-stage confidence spread
	// exceeds a fixed bound.
	ExtraAnalysis bool
}

// GateConfigFromProcessing maps the application config onto gate parameters.
func GateConfigFromProcessing(p config.Processing) GateConfig {
	weights := make(map[Stage]float64, len(p.StageWeights))
	for name, weight := range p.StageWeights {
		if stage, ok := ParseStage(name); ok {
			weights[stage] = weight
		}
	}
	return GateConfig{
		ConfidenceThreshold: p.ConfidenceThreshold,
		Policy:              p.GatePolicy,
		StageWeights:        weights,
		ExtraAnalysis:       p.EnableExtraAnalysis,
	}
}

// Decision is the quality gate verdict.
type Decision struct {
	Terminal          Stage
	OverallConfidence float64
	Reasons           []string
}

// Decide turns accumulated stage results into the completed/review verdict.
// It never raises: ambiguous or missing data defaults to manual review.
func Decide(results []StageResult, cfg GateConfig) Decision {
	scored := make([]StageResult, 0, len(results))
	for _, result := range results {
		if result.Stage == StageQualityCheck {
			continue
		}
		scored = append(scored, result)
	}

	if len(scored) == 0 {
		return Decision{Terminal: StageManualReview, Reasons: []string{"no stage results recorded"}}
	}

	overall := aggregateConfidence(scored, cfg)
	reasons := make([]string, 0, 2)

	for _, result := range scored {
		if result.NeedsReview {
			reason := fmt.Sprintf("stage %s requested review", result.Stage)
			if hint := result.Extra["review_reason"]; hint != "" {
				reason = fmt.Sprintf("%s: %s", reason, hint)
			}
			reasons = append(reasons, reason)
		}
	}
	for _, issue := range cfg.Issues {
		if issue = strings.TrimSpace(issue); issue != "" {
			reasons = append(reasons, issue)
		}
	}
	if overall < cfg.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("overall confidence %.3f below threshold %.3f", overall, cfg.ConfidenceThreshold))
	}
	if cfg.ExtraAnalysis {
		if spread := confidenceSpread(scored); spread > confidenceSpreadBound {
			reasons = append(reasons, fmt.Sprintf("confidence spread %.3f exceeds %.3f", spread, confidenceSpreadBound))
		}
	}

	terminal := StageCompleted
	if len(reasons) > 0 {
		terminal = StageManualReview
	}
	return Decision{Terminal: terminal, OverallConfidence: overall, Reasons: reasons}
}

// qualityResult synthesizes the quality check StageResult from a decision.
func qualityResult(decision Decision, policy string) StageResult {
	status := ResultSuccess
	if decision.Terminal == StageManualReview {
		status = ResultNeedsReview
	}
	return StageResult{
		Stage:       StageQualityCheck,
		Status:      status,
		Confidence:  decision.OverallConfidence,
		NeedsReview: decision.Terminal == StageManualReview,
		Quality: &QualityOutput{
			OverallConfidence: decision.OverallConfidence,
			Policy:            policy,
			Reasons:           decision.Reasons,
		},
	}
}

func aggregateConfidence(results []StageResult, cfg GateConfig) float64 {
	switch cfg.Policy {
	case config.GatePolicyWeightedMean:
		var weightedSum, weightTotal float64
		for _, result := range results {
			weight := 1.0
			if w, ok := cfg.StageWeights[result.Stage]; ok {
				weight = w
			}
			weightedSum += result.Confidence * weight
			weightTotal += weight
		}
		if weightTotal == 0 {
			return 0
		}
		return weightedSum / weightTotal
	default:
		// Weakest link.
		lowest := results[0].Confidence
		for _, result := range results[1:] {
			if result.Confidence < lowest {
				lowest = result.Confidence
			}
		}
		return lowest
	}
}

func confidenceSpread(results []StageResult) float64 {
	lowest, highest := results[0].Confidence, results[0].Confidence
	for _, result := range results[1:] {
		if result.Confidence < lowest {
			lowest = result.Confidence
		}
		if result.Confidence > highest {
			highest = result.Confidence
		}
	}
	return highest - lowest
}
