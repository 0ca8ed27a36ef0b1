package confidence

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/viant/hitl/internal/clock"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/tracing"
)

// PredictFunc is an optional external confidence hook (e.g. an ML model).
// The service bounds the call with a deadline; a slow or failing hook falls
// back to the internally computed score.
type PredictFunc func(ctx context.Context, executionID, nodeID string, state approval.ExecutionState) (float64, error)

// RiskPredictFunc is an optional external risk-level hook. When present the
// more severe of the predicted and computed levels wins.
type RiskPredictFunc func(ctx context.Context, executionID string, state approval.ExecutionState) (approval.RiskLevel, error)

// RiskEvaluator lets a caller supply its own risk scoring. Partial results
// are backfilled with the standard generators.
type RiskEvaluator func(state approval.ExecutionState) (*approval.RiskAssessment, error)

// RiskOptions tunes a single risk assessment.
type RiskOptions struct {
	Factors   []approval.Factor
	Weights   *approval.RiskWeights
	Evaluator RiskEvaluator
}

// Config tunes the evaluator.
type Config struct {
	// Default is the neutral confidence used when the state carries none or
	// evaluation fails.
	Default float64 `json:"default" yaml:"default"`
	// BaseWeight weighs the state-supplied confidence factor.
	BaseWeight float64 `json:"baseWeight" yaml:"baseWeight"`
	// HistoryWeight weighs the historical-success factor.
	HistoryWeight float64 `json:"historyWeight" yaml:"historyWeight"`
	// HookTimeout bounds external prediction hook calls.
	HookTimeout time.Duration `json:"hookTimeout" yaml:"hookTimeout"`
	// RiskWeights combines per-dimension risk scores.
	RiskWeights approval.RiskWeights `json:"riskWeights" yaml:"riskWeights"`
}

// DefaultConfig returns the standard evaluator configuration.
func DefaultConfig() Config {
	return Config{
		Default:       0.5,
		BaseWeight:    0.3,
		HistoryWeight: 0.25,
		HookTimeout:   500 * time.Millisecond,
		RiskWeights:   approval.DefaultRiskWeights(),
	}
}

// Service computes confidence scores and risk assessments from workflow
// state and learns from approval outcomes. Evaluation never fails: internal
// errors resolve to neutral defaults so a scoring bug cannot block a
// workflow.
type Service struct {
	config    Config
	publisher event.Publisher

	predict     PredictFunc
	predictRisk RiskPredictFunc

	mu        sync.RWMutex
	factors   map[string]map[string]float64
	lastKnown map[string]float64

	patterns sync.Map // nodeID -> *patternEntry
}

type patternEntry struct {
	mu      sync.Mutex
	pattern approval.Pattern
}

// Option customizes the service.
type Option func(*Service)

// WithPredictor registers an external confidence hook.
func WithPredictor(fn PredictFunc) Option {
	return func(s *Service) { s.predict = fn }
}

// WithRiskPredictor registers an external risk-level hook.
func WithRiskPredictor(fn RiskPredictFunc) Option {
	return func(s *Service) { s.predictRisk = fn }
}

// New creates a confidence evaluator publishing to the supplied publisher.
func New(config Config, publisher event.Publisher, options ...Option) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	if config.Default <= 0 || config.Default > 1 {
		config.Default = DefaultConfig().Default
	}
	if config.BaseWeight <= 0 {
		config.BaseWeight = DefaultConfig().BaseWeight
	}
	if config.HistoryWeight <= 0 {
		config.HistoryWeight = DefaultConfig().HistoryWeight
	}
	if config.HookTimeout <= 0 {
		config.HookTimeout = DefaultConfig().HookTimeout
	}
	if config.RiskWeights == (approval.RiskWeights{}) {
		config.RiskWeights = approval.DefaultRiskWeights()
	}
	ret := &Service{
		config:    config,
		publisher: publisher,
		factors:   map[string]map[string]float64{},
		lastKnown: map[string]float64{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Evaluate computes a confidence score in [0,1] for the given node. The
// per-factor breakdown is retained keyed by executionID and a
// confidence.evaluated event is published.
func (s *Service) Evaluate(ctx context.Context, executionID, nodeID string, state approval.ExecutionState, extra []approval.Factor) (score float64) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("confidence: evaluation panic for execution %v: %v", executionID, rec)
			score = s.fallback(executionID)
		}
	}()
	ctx, span := tracing.StartSpan(ctx, "confidence.evaluate")
	defer span.End(nil)

	factors := []approval.Factor{{
		Name:   "stateConfidence",
		Value:  s.clamp(state.Confidence(s.config.Default)),
		Weight: s.config.BaseWeight,
		Source: "state",
	}}
	if pattern := s.Pattern(nodeID); pattern != nil && pattern.Total() > 0 {
		factors = append(factors, approval.Factor{
			Name:   "historicalSuccess",
			Value:  s.clamp(pattern.ApprovalRate),
			Weight: s.config.HistoryWeight,
			Source: "history",
		})
	}
	for _, factor := range extra {
		if factor.Weight <= 0 || !finite(factor.Weight) {
			continue
		}
		factor.Value = s.clamp(factor.Value)
		factors = append(factors, factor)
	}

	var sum, weights float64
	for _, factor := range factors {
		sum += factor.Value * factor.Weight
		weights += factor.Weight
	}
	score = s.config.Default
	if weights > 0 {
		score = sum / weights
	}

	if s.predict != nil {
		if predicted, ok := s.boundedPredict(ctx, executionID, nodeID, state); ok {
			score = (score + predicted) / 2
		}
	}
	score = s.clamp(score)

	breakdown := make(map[string]float64, len(factors))
	for _, factor := range factors {
		breakdown[factor.Name] = factor.Value
	}
	s.mu.Lock()
	s.factors[executionID] = breakdown
	s.lastKnown[executionID] = score
	s.mu.Unlock()

	s.publisher.Publish(ctx, &event.Event{
		Name:        event.ConfidenceEvaluated,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Data:        breakdown,
		Metadata:    map[string]interface{}{"score": score},
	})
	return score
}

func (s *Service) boundedPredict(ctx context.Context, executionID, nodeID string, state approval.ExecutionState) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.config.HookTimeout)
	defer cancel()
	type result struct {
		value float64
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- result{err: types.ErrEvaluation}
			}
		}()
		value, err := s.predict(ctx, executionID, nodeID, state)
		resultCh <- result{value: value, err: err}
	}()
	select {
	case res := <-resultCh:
		if res.err != nil || !finite(res.value) {
			return 0, false
		}
		return s.clamp(res.value), true
	case <-ctx.Done():
		return 0, false
	}
}

// Factors returns the last computed breakdown for executionID, an empty map
// when none was recorded.
func (s *Service) Factors(executionID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	breakdown, ok := s.factors[executionID]
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(breakdown))
	for name, value := range breakdown {
		out[name] = value
	}
	return out
}

// Learn updates the node's approval pattern with an observed outcome using
// incremental running averages. Calls for the same node are serialized;
// distinct nodes update in parallel.
func (s *Service) Learn(nodeID string, approved bool, confidence float64, success *bool) {
	if nodeID == "" {
		return
	}
	value, _ := s.patterns.LoadOrStore(nodeID, &patternEntry{pattern: approval.Pattern{NodeID: nodeID}})
	entry := value.(*patternEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	pattern := &entry.pattern
	oldTotal := float64(pattern.Total())
	approvedValue := 0.0
	if approved {
		approvedValue = 1.0
	}
	pattern.ApprovalRate = (pattern.ApprovalRate*oldTotal + approvedValue) / (oldTotal + 1)
	pattern.AverageConfidence = (pattern.AverageConfidence*oldTotal + s.clamp(confidence)) / (oldTotal + 1)
	outcome := approved
	if success != nil {
		outcome = *success
	}
	if outcome {
		pattern.SuccessfulExecutions++
	} else {
		pattern.FailedExecutions++
	}
	pattern.LastUpdated = clock.Now()
}

// Pattern returns a copy of the node's approval pattern, nil when none.
func (s *Service) Pattern(nodeID string) *approval.Pattern {
	value, ok := s.patterns.Load(nodeID)
	if !ok {
		return nil
	}
	entry := value.(*patternEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	pattern := entry.pattern
	return &pattern
}

// ClearPatterns discards all learned approval patterns.
func (s *Service) ClearPatterns() {
	s.patterns.Range(func(key, _ interface{}) bool {
		s.patterns.Delete(key)
		return true
	})
}

func (s *Service) fallback(executionID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if last, ok := s.lastKnown[executionID]; ok {
		return last
	}
	return s.config.Default
}

func (s *Service) clamp(value float64) float64 {
	if !finite(value) {
		return s.config.Default
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
