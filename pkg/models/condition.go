package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConditionOperator is the closed comparator set for condition steps.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpIsNull      ConditionOperator = "is_null"
	OpIsNotNull   ConditionOperator = "is_not_null"
)

// Valid reports whether the operator is one of the known comparators.
func (op ConditionOperator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpContains, OpNotContains, OpIsNull, OpIsNotNull:
		return true
	default:
		return false
	}
}

// Condition compares one field of the execution variables against a value.
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value"`
}

// Evaluate applies the condition against the given variable bag.
func (c Condition) Evaluate(variables map[string]any) (bool, error) {
	actual, exists := variables[c.Field]

	switch c.Operator {
	case OpIsNull:
		return !exists || actual == nil, nil
	case OpIsNotNull:
		return exists && actual != nil, nil
	case OpEquals:
		return EqualValues(actual, c.Value), nil
	case OpNotEquals:
		return !EqualValues(actual, c.Value), nil
	case OpGreaterThan:
		a, b, err := compareNumbers(actual, c.Value)
		if err != nil {
			return false, err
		}

		return a > b, nil
	case OpLessThan:
		a, b, err := compareNumbers(actual, c.Value)
		if err != nil {
			return false, err
		}

		return a < b, nil
	case OpContains:
		return strings.Contains(stringify(actual), stringify(c.Value)), nil
	case OpNotContains:
		return !strings.Contains(stringify(actual), stringify(c.Value)), nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", c.Operator)
	}
}

// EqualValues compares two values, coercing numerics so 3 equals 3.0.
func EqualValues(a, b any) bool {
	if fa, okA := ToFloat(a); okA {
		if fb, okB := ToFloat(b); okB {
			return fa == fb
		}
	}

	return stringify(a) == stringify(b)
}

func compareNumbers(a, b any) (float64, float64, error) {
	fa, okA := ToFloat(a)
	if !okA {
		return 0, 0, fmt.Errorf("value %v is not numeric", a)
	}

	fb, okB := ToFloat(b)
	if !okB {
		return 0, 0, fmt.Errorf("value %v is not numeric", b)
	}

	return fa, fb, nil
}

// ToFloat coerces common numeric representations to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%v", v)
}
