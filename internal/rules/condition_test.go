package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

func cond(field string, op domain.Operator, v value.Value) domain.Condition {
	return domain.Condition{Field: field, Operator: op, Value: v}
}

func TestEvaluateOperators(t *testing.T) {
	ev := NewEvaluator()
	fields := value.MapOf(
		"amount", value.Number(1500),
		"amount_str", value.String("500"),
		"name", value.String("Big Corp Deal"),
		"stage", value.String("won"),
		"tags", value.Array(value.String("vip"), value.String("new")),
		"rating", value.Number(0),
	)

	cases := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals number", cond("amount", domain.OpEquals, value.Number(1500)), true},
		{"equals coerces string", cond("amount", domain.OpEquals, value.String("1500")), true},
		{"not_equals", cond("stage", domain.OpNotEquals, value.String("lost")), true},
		{"gt numeric", cond("amount", domain.OpGreaterThan, value.Number(1000)), true},
		{"gt numeric string field", cond("amount_str", domain.OpGreaterThan, value.Number(100)), true},
		{"gt not lexicographic", cond("amount", domain.OpGreaterThan, value.String("500")), true},
		{"lt", cond("amount", domain.OpLessThan, value.Number(1000)), false},
		{"gte boundary", cond("amount", domain.OpGreaterEq, value.Number(1500)), true},
		{"lte boundary", cond("amount", domain.OpLessEq, value.Number(1500)), true},
		{"contains case-insensitive", cond("name", domain.OpContains, value.String("big corp")), true},
		{"contains miss", cond("name", domain.OpContains, value.String("acme")), false},
		{"not_contains", cond("name", domain.OpNotContains, value.String("acme")), true},
		{"in list", cond("stage", domain.OpIn, value.Array(value.String("won"), value.String("lost"))), true},
		{"in scalar wraps to list", cond("stage", domain.OpIn, value.String("won")), true},
		{"not_in", cond("stage", domain.OpNotIn, value.Array(value.String("lost"))), true},
		{"is_empty zero is falsy", cond("rating", domain.OpIsEmpty, value.Null()), true},
		{"is_not_empty", cond("name", domain.OpIsNotEmpty, value.Null()), true},
		{"changed matches present field", cond("stage", domain.OpChanged, value.Null()), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ev.Evaluate(tc.cond, fields)
			assert.Equal(t, tc.want, res.Matched, "reason: %s", res.Reason)
		})
	}
}

func TestEvaluateNullField(t *testing.T) {
	ev := NewEvaluator()
	fields := value.MapOf("present", value.String("x"), "nul", value.Null())

	for _, field := range []string{"missing", "nul"} {
		for _, op := range []domain.Operator{
			domain.OpEquals, domain.OpNotEquals, domain.OpGreaterThan, domain.OpLessThan,
			domain.OpGreaterEq, domain.OpLessEq, domain.OpContains, domain.OpNotContains,
			domain.OpIn, domain.OpNotIn, domain.OpIsNotEmpty, domain.OpChanged,
		} {
			res := ev.Evaluate(cond(field, op, value.String("x")), fields)
			assert.False(t, res.Matched, "%s on %s must not match", op, field)
			assert.Contains(t, res.Reason, "null or undefined")
		}
		res := ev.Evaluate(cond(field, domain.OpIsEmpty, value.Null()), fields)
		assert.True(t, res.Matched, "is_empty must match %s", field)
	}
}

func TestEvaluateNonNumericOrdering(t *testing.T) {
	ev := NewEvaluator()
	fields := value.MapOf("name", value.String("abc"))

	res := ev.Evaluate(cond("name", domain.OpGreaterThan, value.Number(5)), fields)
	require.False(t, res.Matched)
	assert.Contains(t, res.Reason, "not numeric")
}

func TestEvaluateUnknownOperator(t *testing.T) {
	ev := NewEvaluator()
	fields := value.MapOf("a", value.Number(1))

	res := ev.Evaluate(cond("a", domain.Operator("matches_regex"), value.String(".*")), fields)
	assert.False(t, res.Matched)
	assert.Contains(t, res.Reason, "unsupported operator")
}

func TestEvaluateAll(t *testing.T) {
	ev := NewEvaluator()
	fields := value.MapOf("amount", value.Number(1500), "stage", value.String("won"))

	results, matched := ev.EvaluateAll([]domain.Condition{
		cond("amount", domain.OpGreaterThan, value.Number(1000)),
		cond("stage", domain.OpEquals, value.String("won")),
	}, fields)
	require.True(t, matched)
	require.Len(t, results, 2)

	results, matched = ev.EvaluateAll([]domain.Condition{
		cond("amount", domain.OpGreaterThan, value.Number(1000)),
		cond("stage", domain.OpEquals, value.String("lost")),
	}, fields)
	assert.False(t, matched)
	assert.True(t, results[0].Matched)
	assert.False(t, results[1].Matched)

	// empty condition list is vacuously matched
	results, matched = ev.EvaluateAll(nil, fields)
	assert.True(t, matched)
	assert.Empty(t, results)
}
