// Package analytics validates widget configurations against entity
// field metadata and compiles them into safe aggregate query plans.
// Free-text field names never reach storage without passing the
// allow-list here.
package analytics

import (
	"fmt"

	"synkboard/internal/domain"
)

type MetricType string

const (
	MetricCount MetricType = "count"
	MetricSum   MetricType = "sum"
	MetricAvg   MetricType = "avg"
	MetricMin   MetricType = "min"
	MetricMax   MetricType = "max"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PlanKind selects which executor shape a compiled plan runs as.
type PlanKind string

const (
	PlanScalar  PlanKind = "scalar"
	PlanGrouped PlanKind = "grouped"
	PlanTable   PlanKind = "table"
	PlanList    PlanKind = "list"
)

const (
	defaultGroupLimit = 10
	defaultListLimit  = 10
	defaultPageSize   = 20
)

// Filter restricts an aggregate to records whose field satisfies the
// predicate. Only fields marked filterable pass validation.
type Filter struct {
	Field    string          `json:"field"`
	Operator domain.Operator `json:"operator"`
	Value    string          `json:"value"`
}

// DateRange bounds a query by record creation time, RFC 3339 inclusive
// start and exclusive end.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WidgetQuerySpec is the raw, untrusted widget configuration. Built
// fresh per request and validated before anything touches storage.
type WidgetQuerySpec struct {
	TenantID      string            `json:"tenant_id"`
	EntityID      string            `json:"entity_id"`
	WidgetType    domain.WidgetType `json:"widget_type"`
	MetricType    MetricType        `json:"metric_type"`
	TargetField   string            `json:"target_field,omitempty"`
	GroupBy       string            `json:"group_by,omitempty"`
	Filters       []Filter          `json:"filters,omitempty"`
	DateRange     *DateRange        `json:"date_range,omitempty"`
	Limit         int               `json:"limit,omitempty"`
	SortOrder     SortOrder         `json:"sort_order,omitempty"`
	Page          int               `json:"page,omitempty"`
	Columns       []string          `json:"columns,omitempty"`
	TitleField    string            `json:"title_field,omitempty"`
	SubtitleField string            `json:"subtitle_field,omitempty"`
}

// Plan is the validated query descriptor. Every field name it carries
// has been checked against the entity's field list.
type Plan struct {
	Kind          PlanKind
	TenantID      string
	EntityID      string
	Metric        MetricType
	TargetField   string
	GroupBy       string
	Filters       []Filter
	DateRange     *DateRange
	Limit         int
	SortOrder     SortOrder
	Page          int
	Columns       []string
	TitleField    string
	SubtitleField string
	MetaFields    []string
}

// ValidationError reports a widget spec rejected before any query ran.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var filterOperators = map[domain.Operator]bool{
	domain.OpEquals:      true,
	domain.OpNotEquals:   true,
	domain.OpGreaterThan: true,
	domain.OpLessThan:    true,
	domain.OpGreaterEq:   true,
	domain.OpLessEq:      true,
	domain.OpContains:    true,
}

// Planner compiles widget query specs. Stateless; safe for concurrent
// use.
type Planner struct {
	GroupLimit int
	ListLimit  int
	PageSize   int
}

func NewPlanner() *Planner {
	return &Planner{
		GroupLimit: defaultGroupLimit,
		ListLimit:  defaultListLimit,
		PageSize:   defaultPageSize,
	}
}

// Plan validates the spec against the entity's fields and compiles a
// query descriptor, or rejects with a ValidationError. Nothing is
// silently defaulted away: unknown fields, non-filterable filters and
// unsupported metrics are errors.
func (p *Planner) Plan(spec WidgetQuerySpec, fields []domain.EntityField) (*Plan, error) {
	byKey := make(map[string]domain.EntityField, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}

	switch spec.MetricType {
	case MetricCount, MetricSum, MetricAvg, MetricMin, MetricMax:
	default:
		return nil, invalid("metric_type", "unsupported metric %q", spec.MetricType)
	}

	if spec.MetricType != MetricCount {
		if spec.TargetField == "" {
			return nil, invalid("target_field", "metric %q requires a target field", spec.MetricType)
		}
		if _, ok := byKey[spec.TargetField]; !ok {
			return nil, invalid("target_field", "unknown field %q", spec.TargetField)
		}
	}

	plan := &Plan{
		TenantID:    spec.TenantID,
		EntityID:    spec.EntityID,
		Metric:      spec.MetricType,
		TargetField: spec.TargetField,
		DateRange:   spec.DateRange,
		SortOrder:   spec.SortOrder,
	}
	if plan.SortOrder == "" {
		plan.SortOrder = SortDesc
	}

	for _, f := range spec.Filters {
		meta, ok := byKey[f.Field]
		if !ok {
			return nil, invalid("filters", "unknown field %q", f.Field)
		}
		if !meta.IsFilterable {
			return nil, invalid("filters", "field %q is not filterable", f.Field)
		}
		if !filterOperators[f.Operator] {
			return nil, invalid("filters", "operator %q is not supported in filters", f.Operator)
		}
		plan.Filters = append(plan.Filters, f)
	}

	switch spec.WidgetType {
	case domain.WidgetKPI:
		plan.Kind = PlanScalar

	case domain.WidgetBar, domain.WidgetLine, domain.WidgetPie:
		if spec.GroupBy == "" {
			return nil, invalid("group_by", "widget type %q requires group_by", spec.WidgetType)
		}
		meta, ok := byKey[spec.GroupBy]
		if !ok {
			return nil, invalid("group_by", "unknown field %q", spec.GroupBy)
		}
		if !meta.IsSortable {
			return nil, invalid("group_by", "field %q is not groupable", spec.GroupBy)
		}
		plan.Kind = PlanGrouped
		plan.GroupBy = spec.GroupBy
		plan.Limit = spec.Limit
		if plan.Limit <= 0 {
			plan.Limit = p.GroupLimit
		}

	case domain.WidgetTable:
		plan.Kind = PlanTable
		for _, col := range spec.Columns {
			if _, ok := byKey[col]; !ok {
				return nil, invalid("columns", "unknown field %q", col)
			}
		}
		// System columns always lead; requested fields follow.
		plan.Columns = append([]string{"id", "created_at", "created_by"}, spec.Columns...)
		plan.Limit = spec.Limit
		if plan.Limit <= 0 {
			plan.Limit = p.PageSize
		}
		plan.Page = spec.Page
		if plan.Page <= 0 {
			plan.Page = 1
		}

	case domain.WidgetList:
		plan.Kind = PlanList
		if spec.TitleField != "" {
			if _, ok := byKey[spec.TitleField]; !ok {
				return nil, invalid("title_field", "unknown field %q", spec.TitleField)
			}
		}
		if spec.SubtitleField != "" {
			if _, ok := byKey[spec.SubtitleField]; !ok {
				return nil, invalid("subtitle_field", "unknown field %q", spec.SubtitleField)
			}
		}
		plan.TitleField = spec.TitleField
		plan.SubtitleField = spec.SubtitleField
		for _, f := range fields {
			if f.Key != spec.TitleField && f.Key != spec.SubtitleField {
				plan.MetaFields = append(plan.MetaFields, f.Key)
			}
		}
		plan.Limit = spec.Limit
		if plan.Limit <= 0 {
			plan.Limit = p.ListLimit
		}

	default:
		return nil, invalid("widget_type", "unsupported widget type %q", spec.WidgetType)
	}

	return plan, nil
}
