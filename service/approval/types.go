package approval

import (
	"time"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/service/confidence"
)

// RiskOptions enables and tunes risk assessment for a single request.
type RiskOptions struct {
	Enabled   bool
	Factors   []approval.Factor
	Weights   *approval.RiskWeights
	Evaluator confidence.RiskEvaluator
}

// SkipConditions bypass the human gate when the automation is confident
// enough or the caller role is trusted.
type SkipConditions struct {
	// HighConfidence auto-approves when the evaluated confidence reaches the
	// given value; zero disables the check.
	HighConfidence float64
	// UserRoles auto-approves when the execution state carries one of the
	// listed roles.
	UserRoles []string
}

// Options configures a single approval request. Zero values fall back to the
// service defaults.
type Options struct {
	ConfidenceThreshold *float64

	// RiskThreshold keeps the human gate mandatory once the assessed risk
	// reaches this level, overriding any skip conditions.
	RiskThreshold approval.RiskLevel

	Timeout     time.Duration
	OnTimeout   approval.TimeoutStrategy
	MaxAttempts int
	Approvers   []string
	ChainID     string
	Risk        *RiskOptions
	Skip        *SkipConditions
}

// Outcome is the result of a response or timeout processing step. Success is
// false when the request is missing or no longer pending; the caller can
// branch deterministically on Err.
type Outcome struct {
	Success   bool
	Err       error
	Request   *approval.Request
	NextState *approval.StateUpdate
}

func failure(err error) *Outcome {
	return &Outcome{Success: false, Err: err}
}

// Stats aggregates the requests currently known to the orchestrator.
type Stats struct {
	Total               int                    `json:"total"`
	ByState             map[approval.State]int `json:"byState"`
	ApprovalRate        float64                `json:"approvalRate"`
	AverageResponseTime time.Duration          `json:"averageResponseTime"`
	TimeoutRate         float64                `json:"timeoutRate"`
}

// Config holds the orchestrator defaults applied when request options leave
// a field unset.
type Config struct {
	ConfidenceThreshold float64                  `json:"confidenceThreshold" yaml:"confidenceThreshold"`
	Timeout             time.Duration            `json:"timeout" yaml:"timeout"`
	OnTimeout           approval.TimeoutStrategy `json:"onTimeout" yaml:"onTimeout"`
	MaxAttempts         int                      `json:"maxAttempts" yaml:"maxAttempts"`
}

// DefaultConfig returns the standard orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		Timeout:             time.Hour,
		OnTimeout:           approval.TimeoutReject,
		MaxAttempts:         3,
	}
}
