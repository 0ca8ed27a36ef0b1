package chain

import (
	"math"
	"reflect"
	"strings"

	"github.com/viant/toolbox"

	"github.com/viant/hitl/model/approval"
)

// requiredLevels filters chain levels down to those whose every condition
// holds against ctx.
func requiredLevels(levels []*approval.Level, ctx map[string]interface{}) []*approval.Level {
	var out []*approval.Level
	for _, level := range levels {
		if levelRequired(level, ctx) {
			out = append(out, level)
		}
	}
	return out
}

func levelRequired(level *approval.Level, ctx map[string]interface{}) bool {
	for _, condition := range level.Conditions {
		if !conditionHolds(condition, ctx) {
			return false
		}
	}
	return true
}

// conditionHolds evaluates a single condition. An empty Field compares the
// whole context value.
func conditionHolds(condition approval.Condition, ctx map[string]interface{}) bool {
	var actual interface{} = ctx
	if condition.Field != "" {
		actual = lookupField(ctx, condition.Field)
	}
	switch condition.Operator {
	case approval.OpEq:
		return equals(actual, condition.Value)
	case approval.OpNe:
		return !equals(actual, condition.Value)
	case approval.OpGt, approval.OpGte, approval.OpLt, approval.OpLte:
		return compareNumbers(condition.Operator, actual, condition.Value)
	case approval.OpIn:
		return valueIn(actual, condition.Value)
	case approval.OpContains:
		return containsValue(actual, condition.Value)
	}
	return false
}

// lookupField resolves a possibly dotted path within the context map.
func lookupField(ctx map[string]interface{}, field string) interface{} {
	if value, ok := ctx[field]; ok {
		return value
	}
	parts := strings.Split(field, ".")
	var current interface{} = ctx
	for _, part := range parts {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = asMap[part]
		if !ok {
			return nil
		}
	}
	return current
}

func equals(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if isNumeric(actual) && isNumeric(expected) {
		return toolbox.AsFloat(actual) == toolbox.AsFloat(expected)
	}
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	return toolbox.AsString(actual) == toolbox.AsString(expected)
}

func compareNumbers(op approval.Operator, actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return false
	}
	left, right := toolbox.AsFloat(actual), toolbox.AsFloat(expected)
	if math.IsNaN(left) || math.IsNaN(right) {
		return false
	}
	switch op {
	case approval.OpGt:
		return left > right
	case approval.OpGte:
		return left >= right
	case approval.OpLt:
		return left < right
	case approval.OpLte:
		return left <= right
	}
	return false
}

// valueIn reports whether actual is one of the expected collection members.
func valueIn(actual, expected interface{}) bool {
	if expected == nil {
		return false
	}
	rv := reflect.ValueOf(expected)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return equals(actual, expected)
	}
	for i := 0; i < rv.Len(); i++ {
		if equals(actual, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// containsValue reports whether the actual string or collection contains the
// expected value.
func containsValue(actual, expected interface{}) bool {
	if actual == nil {
		return false
	}
	rv := reflect.ValueOf(actual)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if equals(rv.Index(i).Interface(), expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(toolbox.AsString(actual), toolbox.AsString(expected))
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
