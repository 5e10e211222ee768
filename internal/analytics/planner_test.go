package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
)

func leadFields() []domain.EntityField {
	return []domain.EntityField{
		{Key: "name", Type: domain.FieldText},
		{Key: "amount", Type: domain.FieldNumber, IsFilterable: true, IsSortable: true},
		{Key: "stage", Type: domain.FieldSelect, IsFilterable: true, IsSortable: true},
		{Key: "notes", Type: domain.FieldText},
	}
}

func TestPlanKPI(t *testing.T) {
	p := NewPlanner()
	plan, err := p.Plan(WidgetQuerySpec{
		TenantID:    "ten-1",
		EntityID:    "ent-1",
		WidgetType:  domain.WidgetKPI,
		MetricType:  MetricSum,
		TargetField: "amount",
	}, leadFields())
	require.NoError(t, err)
	assert.Equal(t, PlanScalar, plan.Kind)
	assert.Equal(t, MetricSum, plan.Metric)
	assert.Equal(t, SortDesc, plan.SortOrder, "sort order defaults to desc")
}

func TestPlanRejections(t *testing.T) {
	p := NewPlanner()
	cases := []struct {
		name  string
		spec  WidgetQuerySpec
		field string
	}{
		{
			"unknown metric",
			WidgetQuerySpec{WidgetType: domain.WidgetKPI, MetricType: "median"},
			"metric_type",
		},
		{
			"sum without target",
			WidgetQuerySpec{WidgetType: domain.WidgetKPI, MetricType: MetricSum},
			"target_field",
		},
		{
			"unknown target",
			WidgetQuerySpec{WidgetType: domain.WidgetKPI, MetricType: MetricAvg, TargetField: "bogus"},
			"target_field",
		},
		{
			"bar without group_by",
			WidgetQuerySpec{WidgetType: domain.WidgetBar, MetricType: MetricCount},
			"group_by",
		},
		{
			"group_by not sortable",
			WidgetQuerySpec{WidgetType: domain.WidgetPie, MetricType: MetricCount, GroupBy: "name"},
			"group_by",
		},
		{
			"filter field not filterable",
			WidgetQuerySpec{
				WidgetType: domain.WidgetKPI, MetricType: MetricCount,
				Filters: []Filter{{Field: "name", Operator: domain.OpEquals, Value: "x"}},
			},
			"filters",
		},
		{
			"filter operator not allowed",
			WidgetQuerySpec{
				WidgetType: domain.WidgetKPI, MetricType: MetricCount,
				Filters: []Filter{{Field: "stage", Operator: domain.OpIsEmpty}},
			},
			"filters",
		},
		{
			"table with unknown column",
			WidgetQuerySpec{WidgetType: domain.WidgetTable, MetricType: MetricCount, Columns: []string{"bogus"}},
			"columns",
		},
		{
			"list with unknown title field",
			WidgetQuerySpec{WidgetType: domain.WidgetList, MetricType: MetricCount, TitleField: "bogus"},
			"title_field",
		},
		{
			"unknown widget type",
			WidgetQuerySpec{WidgetType: domain.WidgetType("gauge"), MetricType: MetricCount},
			"widget_type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Plan(tc.spec, leadFields())
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestPlanGroupedDefaults(t *testing.T) {
	p := NewPlanner()
	plan, err := p.Plan(WidgetQuerySpec{
		WidgetType: domain.WidgetBar,
		MetricType: MetricCount,
		GroupBy:    "stage",
	}, leadFields())
	require.NoError(t, err)
	assert.Equal(t, PlanGrouped, plan.Kind)
	assert.Equal(t, defaultGroupLimit, plan.Limit)
}

func TestPlanTableSystemColumnsLead(t *testing.T) {
	p := NewPlanner()
	plan, err := p.Plan(WidgetQuerySpec{
		WidgetType: domain.WidgetTable,
		MetricType: MetricCount,
		Columns:    []string{"name", "amount"},
	}, leadFields())
	require.NoError(t, err)
	assert.Equal(t, PlanTable, plan.Kind)
	assert.Equal(t, []string{"id", "created_at", "created_by", "name", "amount"}, plan.Columns)
	assert.Equal(t, defaultPageSize, plan.Limit)
	assert.Equal(t, 1, plan.Page)
}

func TestPlanListMetaFields(t *testing.T) {
	p := NewPlanner()
	plan, err := p.Plan(WidgetQuerySpec{
		WidgetType:    domain.WidgetList,
		MetricType:    MetricCount,
		TitleField:    "name",
		SubtitleField: "stage",
	}, leadFields())
	require.NoError(t, err)
	assert.Equal(t, PlanList, plan.Kind)
	assert.Equal(t, []string{"amount", "notes"}, plan.MetaFields)
	assert.Equal(t, defaultListLimit, plan.Limit)
}
