package hitl

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/viant/hitl/model/approval"
	sapproval "github.com/viant/hitl/service/approval"
	"github.com/viant/hitl/service/confidence"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from YAML and overridden from the environment. Unset
// fields inherit their package defaults.
type Config struct {
	Approval   ApprovalConfig   `json:"approval" yaml:"approval"`
	Confidence ConfidenceConfig `json:"confidence" yaml:"confidence"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
}

// ApprovalConfig holds the orchestrator defaults.
type ApprovalConfig struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold" yaml:"confidenceThreshold" env:"HITL_CONFIDENCE_THRESHOLD"`
	TimeoutMs           int     `json:"timeoutMs" yaml:"timeoutMs" env:"HITL_TIMEOUT_MS"`
	OnTimeout           string  `json:"onTimeout" yaml:"onTimeout" env:"HITL_ON_TIMEOUT"`
	MaxAttempts         int     `json:"maxAttempts" yaml:"maxAttempts" env:"HITL_MAX_ATTEMPTS"`
}

// ConfidenceConfig tunes the evaluator.
type ConfidenceConfig struct {
	Default       float64              `json:"default" yaml:"default" env:"HITL_CONFIDENCE_DEFAULT"`
	BaseWeight    float64              `json:"baseWeight" yaml:"baseWeight"`
	HistoryWeight float64              `json:"historyWeight" yaml:"historyWeight"`
	HookTimeoutMs int                  `json:"hookTimeoutMs" yaml:"hookTimeoutMs" env:"HITL_HOOK_TIMEOUT_MS"`
	RiskWeights   approval.RiskWeights `json:"riskWeights" yaml:"riskWeights"`
}

// EventsConfig sizes the event fan-out queue.
type EventsConfig struct {
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer" env:"HITL_EVENT_QUEUE_BUFFER"`
}

// StorageConfig selects where approval requests are persisted. An empty
// RequestsBaseURL keeps requests in memory; any afs-supported URL (file,
// mem, s3, gs, ...) switches to the filesystem store.
type StorageConfig struct {
	RequestsBaseURL string `json:"requestsBaseURL" yaml:"requestsBaseURL" env:"HITL_REQUESTS_BASE_URL"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	approvalDefaults := sapproval.DefaultConfig()
	confidenceDefaults := confidence.DefaultConfig()
	return &Config{
		Approval: ApprovalConfig{
			ConfidenceThreshold: approvalDefaults.ConfidenceThreshold,
			TimeoutMs:           int(approvalDefaults.Timeout / time.Millisecond),
			OnTimeout:           string(approvalDefaults.OnTimeout),
			MaxAttempts:         approvalDefaults.MaxAttempts,
		},
		Confidence: ConfidenceConfig{
			Default:       confidenceDefaults.Default,
			BaseWeight:    confidenceDefaults.BaseWeight,
			HistoryWeight: confidenceDefaults.HistoryWeight,
			HookTimeoutMs: int(confidenceDefaults.HookTimeout / time.Millisecond),
			RiskWeights:   confidenceDefaults.RiskWeights,
		},
		Events: EventsConfig{QueueBuffer: 100},
	}
}

// LoadConfig reads a YAML config file and applies environment overrides on
// top of it. An empty path yields defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %v: %w", path, err)
		}
		if err = yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %v: %w", path, err)
		}
	}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply config environment overrides: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Approval.ConfidenceThreshold < 0 || c.Approval.ConfidenceThreshold > 1 {
		return fmt.Errorf("approval.confidenceThreshold must be within [0,1]")
	}
	if c.Approval.TimeoutMs < 0 {
		return fmt.Errorf("approval.timeoutMs must be >= 0")
	}
	switch approval.TimeoutStrategy(c.Approval.OnTimeout) {
	case "", approval.TimeoutApprove, approval.TimeoutReject, approval.TimeoutEscalate, approval.TimeoutRetry:
	default:
		return fmt.Errorf("approval.onTimeout %v is not a recognized strategy", c.Approval.OnTimeout)
	}
	if c.Confidence.Default < 0 || c.Confidence.Default > 1 {
		return fmt.Errorf("confidence.default must be within [0,1]")
	}
	return nil
}

func (c *Config) approvalConfig() sapproval.Config {
	return sapproval.Config{
		ConfidenceThreshold: c.Approval.ConfidenceThreshold,
		Timeout:             time.Duration(c.Approval.TimeoutMs) * time.Millisecond,
		OnTimeout:           approval.TimeoutStrategy(c.Approval.OnTimeout),
		MaxAttempts:         c.Approval.MaxAttempts,
	}
}

func (c *Config) confidenceConfig() confidence.Config {
	return confidence.Config{
		Default:       c.Confidence.Default,
		BaseWeight:    c.Confidence.BaseWeight,
		HistoryWeight: c.Confidence.HistoryWeight,
		HookTimeout:   time.Duration(c.Confidence.HookTimeoutMs) * time.Millisecond,
		RiskWeights:   c.Confidence.RiskWeights,
	}
}
