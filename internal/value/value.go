// Package value models one schema-less record field value as a tagged
// union. Field types declared on an entity (date, select, rating, ...)
// refine how a value is interpreted, but at this layer a value is one of
// null, bool, number, string, array or object.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is immutable once constructed.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *Map
}

var null = Value{kind: KindNull}

func Null() Value          { return null }
func Bool(b bool) Value    { return Value{kind: KindBool, b: b} }
func Number(n float64) Value {
	return Value{kind: KindNumber, n: n}
}
func String(s string) Value { return Value{kind: KindString, s: s} }

func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: items}
}

func Object(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindObject, obj: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; false for any other kind.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Items returns the array payload, or nil.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Fields returns the object payload, or nil.
func (v Value) Fields() *Map {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// AsNumber coerces the value to a float64. Strings are parsed, booleans
// map to 0/1. The second return is false when no numeric reading exists.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsString renders the value for display and substring matching.
func (v Value) AsString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindArray, KindObject:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// IsEmpty reports whether the value is falsy: null, false, zero, or a
// string that is empty after trimming. Empty arrays and objects are not
// considered empty, matching the original platform's truthiness rules.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return !v.b
	case KindNumber:
		return v.n == 0
	case KindString:
		return strings.TrimSpace(v.s) == ""
	default:
		return false
	}
}

// Equal compares two values numerically when both sides have a numeric
// reading, falling back to string comparison otherwise. Coercion is the
// explicit step condition operators rely on; there is no implicit
// language coercion in play.
func (v Value) Equal(other Value) bool {
	if v.kind == KindNull || other.kind == KindNull {
		return v.kind == other.kind
	}
	an, aok := v.AsNumber()
	bn, bok := other.AsNumber()
	if aok && bok {
		return an == bn
	}
	return v.AsString() == other.AsString()
}

// Compare orders two values numerically when possible, lexicographically
// otherwise: -1, 0 or 1.
func (v Value) Compare(other Value) int {
	an, aok := v.AsNumber()
	bn, bok := other.AsNumber()
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(v.AsString(), other.AsString())
}

// FromAny converts a decoded JSON value (map[string]any / []any /
// json.Number / float64 / string / bool / nil) into a Value.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			v, err := FromAny(t[k])
			if err != nil {
				return Null(), err
			}
			m.Set(k, v)
		}
		return Object(m), nil
	case Value:
		return t, nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", in)
	}
}

// ToAny converts a Value back to plain Go data for JSON encoding and
// template contexts.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, 0, len(v.arr))
		for _, item := range v.arr {
			out = append(out, item.ToAny())
		}
		return out
	case KindObject:
		return v.obj.ToAny()
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return valueFromToken(dec, tok)
}

func valueFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Null(), err
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return Null(), err
			}
			return Array(items...), nil
		case '{':
			m := NewMap()
			if err := decodeMapBody(dec, m); err != nil {
				return Null(), err
			}
			return Object(m), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Go maps are unordered; sort for a deterministic field order when the
	// caller hands us a plain map instead of raw JSON.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
