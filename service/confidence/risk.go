package confidence

import (
	"context"
	"log"

	"github.com/viant/toolbox"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/tracing"
)

// AssessRisk estimates the harm of letting the action proceed unsupervised.
// A custom evaluator may override scoring; missing details, recommendations
// and mitigations are backfilled with the standard generators. Assessment
// never aborts the calling workflow: internal failures return a safe Medium
// default with a manual-review recommendation.
func (s *Service) AssessRisk(ctx context.Context, executionID string, state approval.ExecutionState, opts *RiskOptions) (assessment *approval.RiskAssessment) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("confidence: risk assessment panic for execution %v: %v", executionID, rec)
			assessment = safeDefaultAssessment()
		}
	}()
	ctx, span := tracing.StartSpan(ctx, "confidence.assessRisk")
	defer span.End(nil)

	if opts != nil && opts.Evaluator != nil {
		if custom, err := opts.Evaluator(state); err == nil && custom != nil {
			assessment = s.backfill(custom, state, opts)
		} else if err != nil {
			log.Printf("confidence: custom risk evaluator failed for execution %v: %v", executionID, err)
		}
	}
	if assessment == nil {
		assessment = s.computeAssessment(state, opts)
	}
	if s.predictRisk != nil {
		if predicted, ok := s.boundedPredictRisk(ctx, executionID, state); ok {
			assessment.Level = approval.MoreSevere(assessment.Level, predicted)
		}
	}

	s.publisher.Publish(ctx, &event.Event{
		Name:        event.RiskAssessed,
		ExecutionID: executionID,
		Data:        assessment,
	})
	return assessment
}

func (s *Service) computeAssessment(state approval.ExecutionState, opts *RiskOptions) *approval.RiskAssessment {
	details := deriveDetails(state)
	weights := s.config.RiskWeights
	if opts != nil && opts.Weights != nil {
		weights = *opts.Weights
	}
	score := combineDetails(details, weights)
	factors := []approval.Factor{
		{Name: "security", Value: details.Security, Weight: weights.Security, Source: "heuristic"},
		{Name: "dataImpact", Value: details.DataImpact, Weight: weights.DataImpact, Source: "heuristic"},
		{Name: "userImpact", Value: details.UserImpact, Weight: weights.UserImpact, Source: "heuristic"},
		{Name: "businessImpact", Value: details.BusinessImpact, Weight: weights.BusinessImpact, Source: "heuristic"},
		{Name: "operationalImpact", Value: details.OperationalImpact, Weight: weights.OperationalImpact, Source: "heuristic"},
	}
	if opts != nil {
		factors = append(factors, opts.Factors...)
	}
	level := approval.RiskLevelForScore(score)
	return &approval.RiskAssessment{
		Level:           level,
		Score:           score,
		Factors:         factors,
		Details:         details,
		Recommendations: recommendations(level, details),
		Mitigations:     mitigations(details),
	}
}

// backfill fills the gaps a partial custom assessment may leave.
func (s *Service) backfill(custom *approval.RiskAssessment, state approval.ExecutionState, opts *RiskOptions) *approval.RiskAssessment {
	if custom.Details == (approval.RiskDetails{}) {
		custom.Details = deriveDetails(state)
	}
	if !finite(custom.Score) || custom.Score < 0 || custom.Score > 1 {
		weights := s.config.RiskWeights
		if opts != nil && opts.Weights != nil {
			weights = *opts.Weights
		}
		custom.Score = combineDetails(custom.Details, weights)
	}
	if custom.Level == "" {
		custom.Level = approval.RiskLevelForScore(custom.Score)
	}
	if len(custom.Recommendations) == 0 {
		custom.Recommendations = recommendations(custom.Level, custom.Details)
	}
	if len(custom.Mitigations) == 0 {
		custom.Mitigations = mitigations(custom.Details)
	}
	return custom
}

func (s *Service) boundedPredictRisk(ctx context.Context, executionID string, state approval.ExecutionState) (approval.RiskLevel, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.config.HookTimeout)
	defer cancel()
	type result struct {
		level approval.RiskLevel
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- result{err: types.ErrEvaluation}
			}
		}()
		level, err := s.predictRisk(ctx, executionID, state)
		resultCh <- result{level: level, err: err}
	}()
	select {
	case res := <-resultCh:
		if res.err != nil || res.level == "" {
			return "", false
		}
		return res.level, true
	case <-ctx.Done():
		return "", false
	}
}

func safeDefaultAssessment() *approval.RiskAssessment {
	return &approval.RiskAssessment{
		Level: approval.RiskMedium,
		Score: 0.5,
		Factors: []approval.Factor{{
			Name:        "evaluationFailure",
			Value:       0.5,
			Weight:      1,
			Source:      "fallback",
			Description: "risk scoring failed; neutral default applied",
		}},
		Recommendations: []string{"perform manual review before proceeding"},
	}
}

// deriveDetails scores the five risk dimensions from state metadata flags.
func deriveDetails(state approval.ExecutionState) approval.RiskDetails {
	details := approval.RiskDetails{
		Security:          0.05,
		DataImpact:        0.05,
		UserImpact:        0.05,
		BusinessImpact:    0.05,
		OperationalImpact: 0.05,
	}
	if stateFlag(state, "privilegedOperation") {
		details.Security += 0.6
	}
	if stateFlag(state, "credentialAccess") {
		details.Security += 0.3
	}
	if stateFlag(state, "customerData") {
		details.DataImpact += 0.5
	}
	if stateFlag(state, "productionData") {
		details.DataImpact += 0.4
	}
	switch affected := stateNumber(state, "affectedUsers"); {
	case affected >= 10000:
		details.UserImpact = 0.9
	case affected >= 1000:
		details.UserImpact = 0.6
	case affected >= 100:
		details.UserImpact = 0.3
	case affected > 0:
		details.UserImpact = 0.1
	}
	if stateFlag(state, "businessCritical") {
		details.BusinessImpact += 0.6
	}
	if stateFlag(state, "revenueImpact") {
		details.BusinessImpact += 0.3
	}
	if stateFlag(state, "irreversible") {
		details.OperationalImpact += 0.5
	}
	if stateFlag(state, "causesDowntime") {
		details.OperationalImpact += 0.3
	}
	details.Security = clampDimension(details.Security)
	details.DataImpact = clampDimension(details.DataImpact)
	details.UserImpact = clampDimension(details.UserImpact)
	details.BusinessImpact = clampDimension(details.BusinessImpact)
	details.OperationalImpact = clampDimension(details.OperationalImpact)
	return details
}

func combineDetails(details approval.RiskDetails, weights approval.RiskWeights) float64 {
	total := weights.Security + weights.DataImpact + weights.UserImpact + weights.BusinessImpact + weights.OperationalImpact
	if total <= 0 {
		weights = approval.DefaultRiskWeights()
		total = 1
	}
	sum := details.Security*weights.Security +
		details.DataImpact*weights.DataImpact +
		details.UserImpact*weights.UserImpact +
		details.BusinessImpact*weights.BusinessImpact +
		details.OperationalImpact*weights.OperationalImpact
	return clampDimension(sum / total)
}

func recommendations(level approval.RiskLevel, details approval.RiskDetails) []string {
	var out []string
	switch level {
	case approval.RiskCritical:
		out = append(out, "require multi-level approval before proceeding")
	case approval.RiskHigh:
		out = append(out, "require explicit human approval before proceeding")
	case approval.RiskMedium:
		out = append(out, "review the action summary before approving")
	default:
		out = append(out, "safe to proceed with standard monitoring")
	}
	if details.Security >= 0.5 {
		out = append(out, "verify the caller is authorized for privileged operations")
	}
	if details.DataImpact >= 0.5 {
		out = append(out, "confirm data-handling compliance for the affected records")
	}
	return out
}

func mitigations(details approval.RiskDetails) []string {
	var out []string
	if details.OperationalImpact >= 0.5 {
		out = append(out, "prepare a rollback plan before execution")
	}
	if details.UserImpact >= 0.5 {
		out = append(out, "stage the change to a subset of users first")
	}
	if details.DataImpact >= 0.5 {
		out = append(out, "snapshot affected data before execution")
	}
	return out
}

func stateFlag(state approval.ExecutionState, key string) bool {
	if meta := state.Metadata(); meta != nil {
		if value, ok := meta[key]; ok {
			return toolbox.AsBoolean(value)
		}
	}
	if value, ok := state[key]; ok {
		return toolbox.AsBoolean(value)
	}
	return false
}

func stateNumber(state approval.ExecutionState, key string) float64 {
	var raw interface{}
	if meta := state.Metadata(); meta != nil {
		raw = meta[key]
	}
	if raw == nil {
		raw = state[key]
	}
	if raw == nil {
		return 0
	}
	value := toolbox.AsFloat(raw)
	if !finite(value) {
		return 0
	}
	return value
}

func clampDimension(value float64) float64 {
	if !finite(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
