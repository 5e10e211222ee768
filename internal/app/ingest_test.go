package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

func dealFields() []domain.EntityField {
	return []domain.EntityField{
		{Key: "name", Type: domain.FieldText, IsRequired: true},
		{Key: "amount", Type: domain.FieldNumber},
		{Key: "score", Type: domain.FieldRating},
		{Key: "active", Type: domain.FieldBoolean},
		{Key: "closed_on", Type: domain.FieldDate},
		{Key: "stage", Type: domain.FieldSelect, Options: []string{"new", "won", "lost"}},
		{Key: "tags", Type: domain.FieldMultiSelect, Options: []string{"vip", "churn"}},
		{Key: "owner", Type: domain.FieldUser},
		{Key: "extra", Type: domain.FieldJSON},
	}
}

func TestValidateFieldsCoercesAndKeepsOrder(t *testing.T) {
	in := value.MapOf(
		"stage", "won",
		"name", "Big Deal",
		"amount", "1500",
		"extra", map[string]any{"source": "import"},
	)
	out, err := ValidateFields(in, dealFields(), 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"stage", "name", "amount", "extra"}, out.Keys(),
		"validated map preserves payload order")

	amount, _ := out.Get("amount")
	assert.Equal(t, value.KindNumber, amount.Kind(), "numeric string coerces to a number")
	n, ok := amount.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 1500.0, n)
}

func TestValidateFieldsRejectsUnknownKey(t *testing.T) {
	_, err := ValidateFields(value.MapOf("name", "x", "bogus", 1), dealFields(), 100)
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "bogus", ferr.Field)
}

func TestValidateFieldsRequired(t *testing.T) {
	_, err := ValidateFields(value.MapOf("amount", 10), dealFields(), 100)
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "name", ferr.Field)

	// An explicit null does not satisfy a required field.
	_, err = ValidateFields(value.MapOf("name", nil), dealFields(), 100)
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "name", ferr.Field)
}

func TestValidateFieldsTypeMismatches(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		input any
	}{
		{"number from word", "amount", "lots"},
		{"rating from word", "score", "five"},
		{"boolean from string", "active", "true"},
		{"date not a date", "closed_on", "yesterday"},
		{"select outside options", "stage", "paused"},
		{"multiselect not array", "tags", "vip"},
		{"multiselect bad member", "tags", []any{"vip", "whale"}},
		{"text from array", "owner", []any{"u1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateFields(value.MapOf("name", "x", tc.key, tc.input), dealFields(), 100)
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tc.key, ferr.Field)
		})
	}
}

func TestValidateFieldsDateFormats(t *testing.T) {
	for _, s := range []string{"2024-06-01", "2024-06-01T10:30:00Z"} {
		_, err := ValidateFields(value.MapOf("name", "x", "closed_on", s), dealFields(), 100)
		assert.NoError(t, err, "date %q", s)
	}
}

func TestValidateFieldsNullSkipsCoercion(t *testing.T) {
	// Optional fields accept an explicit null untouched.
	out, err := ValidateFields(value.MapOf("name", "x", "amount", nil), dealFields(), 100)
	require.NoError(t, err)
	v, ok := out.Get("amount")
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestValidateFieldsMaxFields(t *testing.T) {
	_, err := ValidateFields(value.MapOf("name", "x", "amount", 1), dealFields(), 1)
	require.Error(t, err)
	var ferr *FieldError
	assert.False(t, errors.As(err, &ferr), "limit breach is not a per-field error")
}

func TestValidateFieldsNilPayload(t *testing.T) {
	fields := []domain.EntityField{{Key: "note", Type: domain.FieldText}}
	out, err := ValidateFields(nil, fields, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	_, err = ValidateFields(nil, dealFields(), 100)
	require.Error(t, err, "nil payload still fails required checks")
}
