package confidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/hitl/model/approval"
)

func TestRiskLevelForScore(t *testing.T) {
	testCases := []struct {
		score    float64
		expected approval.RiskLevel
	}{
		{0.0, approval.RiskLow},
		{0.29, approval.RiskLow},
		{0.3, approval.RiskMedium},
		{0.59, approval.RiskMedium},
		{0.6, approval.RiskHigh},
		{0.79, approval.RiskHigh},
		{0.8, approval.RiskCritical},
		{1.0, approval.RiskCritical},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, approval.RiskLevelForScore(testCase.score), "score %v", testCase.score)
	}
}

func TestService_AssessRisk_Heuristics(t *testing.T) {
	srv := New(DefaultConfig(), nil)

	t.Run("benign state is low risk", func(t *testing.T) {
		assessment := srv.AssessRisk(context.Background(), "e1", approval.ExecutionState{}, nil)
		assert.Equal(t, approval.RiskLow, assessment.Level)
		assert.NotEmpty(t, assessment.Recommendations)
	})

	t.Run("privileged production operation raises severity", func(t *testing.T) {
		state := approval.ExecutionState{
			"metadata": map[string]interface{}{
				"privilegedOperation": true,
				"productionData":      true,
				"customerData":        true,
				"affectedUsers":       50000,
				"irreversible":        true,
				"businessCritical":    true,
			},
		}
		assessment := srv.AssessRisk(context.Background(), "e1", state, nil)
		assert.True(t, assessment.Level == approval.RiskHigh || assessment.Level == approval.RiskCritical)
		assert.InDelta(t, 0.65, assessment.Details.Security, 0.01)
		assert.Equal(t, 0.9, assessment.Details.UserImpact)
		assert.NotEmpty(t, assessment.Mitigations)
	})
}

func TestService_AssessRisk_CustomEvaluator(t *testing.T) {
	srv := New(DefaultConfig(), nil)

	t.Run("partial result is backfilled", func(t *testing.T) {
		opts := &RiskOptions{Evaluator: func(approval.ExecutionState) (*approval.RiskAssessment, error) {
			return &approval.RiskAssessment{Score: 0.85}, nil
		}}
		assessment := srv.AssessRisk(context.Background(), "e1", approval.ExecutionState{}, opts)
		assert.Equal(t, approval.RiskCritical, assessment.Level)
		assert.NotEmpty(t, assessment.Recommendations)
	})

	t.Run("failing evaluator falls back to computed assessment", func(t *testing.T) {
		opts := &RiskOptions{Evaluator: func(approval.ExecutionState) (*approval.RiskAssessment, error) {
			return nil, errors.New("scoring backend down")
		}}
		assessment := srv.AssessRisk(context.Background(), "e1", approval.ExecutionState{}, opts)
		assert.NotNil(t, assessment)
		assert.Equal(t, approval.RiskLow, assessment.Level)
	})

	t.Run("panicking evaluator yields safe default", func(t *testing.T) {
		opts := &RiskOptions{Evaluator: func(approval.ExecutionState) (*approval.RiskAssessment, error) {
			panic("boom")
		}}
		assessment := srv.AssessRisk(context.Background(), "e1", approval.ExecutionState{}, opts)
		assert.Equal(t, approval.RiskMedium, assessment.Level)
		assert.Equal(t, 0.5, assessment.Score)
		assert.NotEmpty(t, assessment.Recommendations)
	})
}

func TestService_AssessRisk_PredictionHook(t *testing.T) {
	srv := New(DefaultConfig(), nil, WithRiskPredictor(func(context.Context, string, approval.ExecutionState) (approval.RiskLevel, error) {
		return approval.RiskHigh, nil
	}))
	// computed level is low, predicted is high, the more severe wins
	assessment := srv.AssessRisk(context.Background(), "e1", approval.ExecutionState{}, nil)
	assert.Equal(t, approval.RiskHigh, assessment.Level)
}

func TestMoreSevere(t *testing.T) {
	assert.Equal(t, approval.RiskCritical, approval.MoreSevere(approval.RiskLow, approval.RiskCritical))
	assert.Equal(t, approval.RiskHigh, approval.MoreSevere(approval.RiskHigh, approval.RiskMedium))
}
