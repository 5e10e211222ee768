package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsKeepsOrder(t *testing.T) {
	m, err := ParseFields([]byte(`{"zulu":1,"alpha":2,"mike":3}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"zulu", "alpha", "mike"}, m.Keys())

	out, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zulu":1,"alpha":2,"mike":3}`, string(out))
}

func TestMapSetOverwritesInPlace(t *testing.T) {
	m := NewMap()
	m.Set("a", Number(1))
	m.Set("b", Number(2))
	m.Set("a", Number(3))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	v, ok := m.Get("a")
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, float64(3), n)
}

func TestNilMapMarshalsAsEmptyObject(t *testing.T) {
	var m *Map
	out, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestParseFieldsRejectsNonObject(t *testing.T) {
	_, err := ParseFields([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	m := MapOf("a", Number(1))
	c := m.Clone()
	c.Set("b", Number(2))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}
