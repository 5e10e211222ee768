package rules

import (
	"fmt"
	"strings"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

// ConditionResult is the per-condition detail used by rule-test and
// preview tooling; result order always matches condition order.
type ConditionResult struct {
	Field    string          `json:"field"`
	Operator domain.Operator `json:"operator"`
	Matched  bool            `json:"matched"`
	Reason   string          `json:"reason,omitempty"`
}

type operatorFunc func(field value.Value, operand value.Value) (bool, string)

// Evaluator evaluates tenant-defined conditions against a record's
// field map. It is stateless and safe for concurrent use.
type Evaluator struct {
	operators map[domain.Operator]operatorFunc
}

// NewEvaluator creates an evaluator with the full closed operator set.
func NewEvaluator() *Evaluator {
	e := &Evaluator{operators: make(map[domain.Operator]operatorFunc)}

	e.operators[domain.OpEquals] = operatorEquals
	e.operators[domain.OpNotEquals] = operatorNotEquals
	e.operators[domain.OpGreaterThan] = orderingOperator(">", func(c int) bool { return c > 0 })
	e.operators[domain.OpLessThan] = orderingOperator("<", func(c int) bool { return c < 0 })
	e.operators[domain.OpGreaterEq] = orderingOperator(">=", func(c int) bool { return c >= 0 })
	e.operators[domain.OpLessEq] = orderingOperator("<=", func(c int) bool { return c <= 0 })
	e.operators[domain.OpContains] = operatorContains
	e.operators[domain.OpNotContains] = operatorNotContains
	e.operators[domain.OpIn] = operatorIn
	e.operators[domain.OpNotIn] = operatorNotIn
	e.operators[domain.OpIsEmpty] = operatorIsEmpty
	e.operators[domain.OpIsNotEmpty] = operatorIsNotEmpty
	e.operators[domain.OpChanged] = operatorChanged

	return e
}

// Evaluate evaluates a single condition. It never returns an error:
// unknown operators and type mismatches are non-matches with a reason.
func (e *Evaluator) Evaluate(cond domain.Condition, fields *value.Map) ConditionResult {
	res := ConditionResult{Field: cond.Field, Operator: cond.Operator}

	fieldVal, exists := fields.Get(cond.Field)
	if !exists || fieldVal.IsNull() {
		// Null short-circuits before operator dispatch: only is_empty
		// can match an absent field.
		switch cond.Operator {
		case domain.OpIsEmpty:
			res.Matched = true
		case domain.OpIsNotEmpty:
			res.Reason = fmt.Sprintf("field %q is null or undefined", cond.Field)
		default:
			res.Reason = fmt.Sprintf("field %q is null or undefined", cond.Field)
		}
		return res
	}

	op, ok := e.operators[cond.Operator]
	if !ok {
		res.Reason = fmt.Sprintf("unsupported operator %q", cond.Operator)
		return res
	}

	res.Matched, res.Reason = op(fieldVal, cond.Value)
	return res
}

// EvaluateAll combines conditions with AND semantics. An empty list is
// vacuously matched. The returned details preserve input order.
func (e *Evaluator) EvaluateAll(conds []domain.Condition, fields *value.Map) (results []ConditionResult, matched bool) {
	results = make([]ConditionResult, 0, len(conds))
	met := 0
	for _, cond := range conds {
		r := e.Evaluate(cond, fields)
		if r.Matched {
			met++
		}
		results = append(results, r)
	}
	return results, met == len(conds)
}

func operatorEquals(field, operand value.Value) (bool, string) {
	if field.Equal(operand) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q, got %q", operand.AsString(), field.AsString())
}

func operatorNotEquals(field, operand value.Value) (bool, string) {
	if !field.Equal(operand) {
		return true, ""
	}
	return false, fmt.Sprintf("value equals %q", operand.AsString())
}

// orderingOperator builds gt/lt/gte/lte. Both sides are coerced to
// numeric first; "10" compares as ten, not lexicographically.
func orderingOperator(symbol string, pass func(cmp int) bool) operatorFunc {
	return func(field, operand value.Value) (bool, string) {
		fn, fok := field.AsNumber()
		on, ook := operand.AsNumber()
		if !fok {
			return false, fmt.Sprintf("field value %q is not numeric", field.AsString())
		}
		if !ook {
			return false, fmt.Sprintf("comparison value %q is not numeric", operand.AsString())
		}
		cmp := 0
		switch {
		case fn < on:
			cmp = -1
		case fn > on:
			cmp = 1
		}
		if pass(cmp) {
			return true, ""
		}
		return false, fmt.Sprintf("%v %s %v is false", field.AsString(), symbol, operand.AsString())
	}
}

func operatorContains(field, operand value.Value) (bool, string) {
	haystack := strings.ToLower(field.AsString())
	needle := strings.ToLower(operand.AsString())
	if strings.Contains(haystack, needle) {
		return true, ""
	}
	return false, fmt.Sprintf("%q does not contain %q", field.AsString(), operand.AsString())
}

func operatorNotContains(field, operand value.Value) (bool, string) {
	ok, _ := operatorContains(field, operand)
	if !ok {
		return true, ""
	}
	return false, fmt.Sprintf("%q contains %q", field.AsString(), operand.AsString())
}

// membership wraps a scalar operand into a single-element set before
// testing.
func membership(field, operand value.Value) bool {
	items := operand.Items()
	if operand.Kind() != value.KindArray {
		items = []value.Value{operand}
	}
	for _, item := range items {
		if field.Equal(item) {
			return true
		}
	}
	return false
}

func operatorIn(field, operand value.Value) (bool, string) {
	if membership(field, operand) {
		return true, ""
	}
	return false, fmt.Sprintf("%q is not in the allowed set", field.AsString())
}

func operatorNotIn(field, operand value.Value) (bool, string) {
	if !membership(field, operand) {
		return true, ""
	}
	return false, fmt.Sprintf("%q is in the excluded set", field.AsString())
}

func operatorIsEmpty(field, _ value.Value) (bool, string) {
	if field.IsEmpty() {
		return true, ""
	}
	return false, fmt.Sprintf("field value %q is not empty", field.AsString())
}

func operatorIsNotEmpty(field, _ value.Value) (bool, string) {
	if !field.IsEmpty() {
		return true, ""
	}
	return false, "field value is empty"
}

// operatorChanged always matches. Real previous-value comparison needs
// a prior record snapshot the evaluation context does not carry yet.
// TODO: take a previous-fields map once update events deliver one.
func operatorChanged(_, _ value.Value) (bool, string) {
	return true, ""
}
