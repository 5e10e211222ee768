package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

func templateContext() Context {
	return Context{
		Record: domain.Record{
			ID:        "rec-1",
			CreatedAt: "2026-01-02T03:04:05Z",
			Fields: value.MapOf(
				"name", value.String("Big Deal"),
				"amount", value.Number(1500),
				"contact", value.Object(value.MapOf("email", value.String("a@b.test"))),
				"tags", value.Array(value.String("vip"), value.String("new")),
			),
		},
		Entity: domain.Entity{ID: "ent-1", Name: "Leads", Slug: "leads"},
		User:   domain.User{ID: "user-1", Name: "Sam", Email: "sam@acme.test"},
		Rule:   domain.Rule{ID: "rule-1", Name: "big deals"},
		Tenant: domain.Tenant{ID: "ten-1", Name: "Acme"},
	}
}

func TestInterpolate(t *testing.T) {
	ctx := templateContext()
	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"field shorthand", "{{fields.name}} closed", "Big Deal closed"},
		{"record path", "id={{record.id}}", "id=rec-1"},
		{"record fields path", "{{record.fields.amount}}", "1500"},
		{"nested object", "{{fields.contact.email}}", "a@b.test"},
		{"array index", "first tag {{fields.tags.0}}", "first tag vip"},
		{"entity and tenant", "{{entity.name}} @ {{tenant.name}}", "Leads @ Acme"},
		{"user and rule", "{{user.email}} via {{rule.name}}", "sam@acme.test via big deals"},
		{"whitespace tolerated", "{{ fields.name }}", "Big Deal"},
		{"unresolved stays literal", "x {{fields.nope}} y", "x {{fields.nope}} y"},
		{"unknown root stays literal", "{{bogus.path}}", "{{bogus.path}}"},
		{"no placeholders", "plain text", "plain text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Interpolate(tc.template, ctx))
		})
	}
}

func TestInterpolateJSON(t *testing.T) {
	ctx := templateContext()

	out, err := InterpolateJSON(json.RawMessage(`{"deal":"{{fields.name}}","amount":{{fields.amount}}}`), ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deal":"Big Deal","amount":1500}`, string(out))

	// empty payload passes through
	out, err = InterpolateJSON(nil, ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestInterpolateJSONBreakageIsTemplateError(t *testing.T) {
	ctx := templateContext()
	// substituting an unquoted string value breaks the JSON
	_, err := InterpolateJSON(json.RawMessage(`{"deal":{{fields.name}}}`), ctx)
	require.Error(t, err)
	var te *TemplateError
	assert.ErrorAs(t, err, &te)
}
