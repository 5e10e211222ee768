package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsNumberCoercion(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want float64
		ok   bool
	}{
		{"number", Number(42.5), 42.5, true},
		{"numeric string", String("500"), 500, true},
		{"padded numeric string", String(" 12.5 "), 12.5, true},
		{"non-numeric string", String("abc"), 0, false},
		{"empty string", String(""), 0, false},
		{"true", Bool(true), 1, true},
		{"false", Bool(false), 0, true},
		{"null", Null(), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.in.AsNumber()
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "hello", String("hello").AsString())
	assert.Equal(t, "42", Number(42).AsString())
	assert.Equal(t, "42.5", Number(42.5).AsString())
	assert.Equal(t, "true", Bool(true).AsString())
	assert.Equal(t, "", Null().AsString())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Null().IsEmpty())
	assert.True(t, String("").IsEmpty())
	assert.True(t, String("   ").IsEmpty())
	// falsy scalars count as empty
	assert.True(t, Number(0).IsEmpty())
	assert.True(t, Bool(false).IsEmpty())
	assert.False(t, Number(1).IsEmpty())
	assert.False(t, Bool(true).IsEmpty())
	assert.False(t, String("x").IsEmpty())
	assert.False(t, Array(Number(1)).IsEmpty())
}

func TestEqualCoercesNumbers(t *testing.T) {
	assert.True(t, Number(5).Equal(String("5")))
	assert.True(t, String("5").Equal(Number(5)))
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, Number(5).Equal(String("6")))

	// string fallback when either side is non-numeric
	assert.True(t, Bool(true).Equal(String("true")))
	assert.False(t, Bool(true).Equal(Bool(false)))

	// null only equals null
	assert.True(t, Null().Equal(Null()))
	assert.False(t, Null().Equal(String("")))
}

func TestCompareNumericFirst(t *testing.T) {
	assert.Equal(t, 1, Number(1500).Compare(String("500")))
	assert.Equal(t, -1, Number(400).Compare(String("500")))
	assert.Equal(t, 0, Number(500).Compare(String("500")))
	// falls back to lexicographic when either side is non-numeric
	assert.Equal(t, -1, String("abc").Compare(String("abd")))
}

func TestFromAnyRoundTrip(t *testing.T) {
	v, err := FromAny(map[string]any{"a": 1, "b": []any{"x", true}})
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())
	a, ok := v.Fields().Get("a")
	require.True(t, ok)
	n, ok := a.AsNumber()
	require.True(t, ok)
	assert.Equal(t, float64(1), n)
}

func TestUnmarshalWholeNumbersStayWhole(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`1200`), &v))
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `1200`, string(out))
	assert.Equal(t, "1200", v.AsString())
}
