package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/hitl/model/approval"
)

func TestConditionHolds(t *testing.T) {
	ctx := map[string]interface{}{
		"confidence":  0.5,
		"environment": "production",
		"tags":        []interface{}{"billing", "critical"},
		"request": map[string]interface{}{
			"region": "eu-west-1",
		},
	}

	testCases := []struct {
		name      string
		condition approval.Condition
		expected  bool
	}{
		{
			name:      "eq matches string",
			condition: approval.Condition{Field: "environment", Operator: approval.OpEq, Value: "production"},
			expected:  true,
		},
		{
			name:      "ne on differing value",
			condition: approval.Condition{Field: "environment", Operator: approval.OpNe, Value: "staging"},
			expected:  true,
		},
		{
			name:      "lt on numeric value",
			condition: approval.Condition{Field: "confidence", Operator: approval.OpLt, Value: 0.6},
			expected:  true,
		},
		{
			name:      "gte fails below bound",
			condition: approval.Condition{Field: "confidence", Operator: approval.OpGte, Value: 0.6},
			expected:  false,
		},
		{
			name:      "gt with integer comparison value",
			condition: approval.Condition{Field: "confidence", Operator: approval.OpGt, Value: 0},
			expected:  true,
		},
		{
			name:      "lte equal bound",
			condition: approval.Condition{Field: "confidence", Operator: approval.OpLte, Value: 0.5},
			expected:  true,
		},
		{
			name:      "in against collection",
			condition: approval.Condition{Field: "environment", Operator: approval.OpIn, Value: []interface{}{"staging", "production"}},
			expected:  true,
		},
		{
			name:      "in misses",
			condition: approval.Condition{Field: "environment", Operator: approval.OpIn, Value: []interface{}{"dev"}},
			expected:  false,
		},
		{
			name:      "contains on slice",
			condition: approval.Condition{Field: "tags", Operator: approval.OpContains, Value: "critical"},
			expected:  true,
		},
		{
			name:      "contains on string",
			condition: approval.Condition{Field: "environment", Operator: approval.OpContains, Value: "prod"},
			expected:  true,
		},
		{
			name:      "dotted field path",
			condition: approval.Condition{Field: "request.region", Operator: approval.OpEq, Value: "eu-west-1"},
			expected:  true,
		},
		{
			name:      "missing field never equals",
			condition: approval.Condition{Field: "owner", Operator: approval.OpEq, Value: "alice"},
			expected:  false,
		},
		{
			name:      "unknown operator is false",
			condition: approval.Condition{Field: "environment", Operator: "like", Value: "prod"},
			expected:  false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, conditionHolds(testCase.condition, ctx))
		})
	}
}

func TestRequiredLevels(t *testing.T) {
	levels := []*approval.Level{
		{ID: "l1", Priority: 1},
		{ID: "l2", Priority: 2, Conditions: []approval.Condition{
			{Field: "confidence", Operator: approval.OpLt, Value: 0.6},
		}},
		{ID: "l3", Priority: 3, Conditions: []approval.Condition{
			{Field: "confidence", Operator: approval.OpLt, Value: 0.2},
		}},
	}
	required := requiredLevels(levels, map[string]interface{}{"confidence": 0.5})
	assert.Len(t, required, 2)
	assert.Equal(t, "l1", required[0].ID)
	assert.Equal(t, "l2", required[1].ID)
}
