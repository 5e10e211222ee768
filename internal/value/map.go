package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Map is an insertion-ordered map from field key to Value. JSON
// round-trips preserve key order, which keeps record snapshots and
// rule-test output deterministic.
type Map struct {
	keys []string
	idx  map[string]int
	vals []Value
}

func NewMap() *Map {
	return &Map{idx: make(map[string]int)}
}

// MapOf builds a Map from alternating key/value pairs, mostly for tests.
func MapOf(pairs ...any) *Map {
	if len(pairs)%2 != 0 {
		panic("value.MapOf: odd number of arguments")
	}
	m := NewMap()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("value.MapOf: key %v is not a string", pairs[i]))
		}
		v, err := FromAny(pairs[i+1])
		if err != nil {
			panic(err)
		}
		m.Set(key, v)
	}
	return m
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The slice is shared; callers
// must not mutate it.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	i, ok := m.idx[key]
	if !ok {
		return Null(), false
	}
	return m.vals[i], true
}

// Set inserts or replaces a key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if i, ok := m.idx[key]; ok {
		m.vals[i] = v
		return
	}
	m.idx[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, v)
}

func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}

// Clone returns a shallow copy; Values themselves are immutable.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// ToAny converts to a plain map, losing key order.
func (m *Map) ToAny() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v Value) bool {
		out[k] = v.ToAny()
		return true
	})
	return out
}

func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	*m = *NewMap()
	return decodeMapBody(dec, m)
}

// decodeMapBody consumes key/value pairs up to and including the closing
// brace, preserving encounter order.
func decodeMapBody(dec *json.Decoder, m *Map) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return err
		}
		m.Set(key, v)
	}
	_, err := dec.Token() // closing }
	return err
}

// ParseFields decodes a JSON object into an ordered field map.
func ParseFields(data []byte) (*Map, error) {
	if len(data) == 0 {
		return NewMap(), nil
	}
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}
	return m, nil
}
