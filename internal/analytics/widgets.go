package analytics

import (
	"context"
	"fmt"
	"time"

	"synkboard/internal/domain"
)

// AggregateRow is one group's result in a grouped aggregate.
type AggregateRow struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ListItem is one row of a list widget: title/subtitle projection plus
// the remaining fields as metadata.
type ListItem struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Subtitle  string         `json:"subtitle,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type KPIData struct {
	Value float64     `json:"value"`
	Trend TrendResult `json:"trend"`
}

// ChartData reports the returned groups and their sum. The total is the
// sum over the truncated result set, not a global total; dashboards
// display it as "total of shown groups".
type ChartData struct {
	Rows  []AggregateRow `json:"rows"`
	Total float64        `json:"total"`
}

type TableData struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
	Total   int              `json:"total"`
}

type ListData struct {
	Items []ListItem `json:"items"`
	Total int        `json:"total"`
}

// WidgetData is the per-widget-type payload returned to the dashboard
// layer; exactly one variant is set.
type WidgetData struct {
	Type  domain.WidgetType `json:"type"`
	KPI   *KPIData          `json:"kpi,omitempty"`
	Chart *ChartData        `json:"chart,omitempty"`
	Table *TableData        `json:"table,omitempty"`
	List  *ListData         `json:"list,omitempty"`
}

// FieldSource yields an entity's field metadata, the allow-list every
// plan is validated against.
type FieldSource interface {
	EntityFields(ctx context.Context, tenantID, entityID string) ([]domain.EntityField, error)
}

// QueryRunner executes a compiled plan against storage. The service
// never builds query strings itself.
type QueryRunner interface {
	RunScalar(ctx context.Context, plan *Plan) (float64, error)
	RunGrouped(ctx context.Context, plan *Plan) ([]AggregateRow, error)
	RunTable(ctx context.Context, plan *Plan) (rows []map[string]any, total int, err error)
	RunList(ctx context.Context, plan *Plan) (items []ListItem, total int, err error)
}

// Service turns a widget configuration into display data: validate,
// compile, execute, shape. Read-only; shares no mutable state across
// requests.
type Service struct {
	Fields          FieldSource
	Runner          QueryRunner
	Planner         *Planner
	TrendPeriodDays int
	Now             func() time.Time
}

func NewService(fields FieldSource, runner QueryRunner) *Service {
	return &Service{
		Fields:          fields,
		Runner:          runner,
		Planner:         NewPlanner(),
		TrendPeriodDays: 7,
		Now:             time.Now,
	}
}

// Data computes the widget's payload. Validation failures surface as
// ValidationError before any query executes.
func (s *Service) Data(ctx context.Context, spec WidgetQuerySpec) (*WidgetData, error) {
	fields, err := s.Fields.EntityFields(ctx, spec.TenantID, spec.EntityID)
	if err != nil {
		return nil, fmt.Errorf("fetch entity fields: %w", err)
	}
	plan, err := s.Planner.Plan(spec, fields)
	if err != nil {
		return nil, err
	}

	data := &WidgetData{Type: spec.WidgetType}
	switch plan.Kind {
	case PlanScalar:
		kpi, err := s.kpi(ctx, plan)
		if err != nil {
			return nil, err
		}
		data.KPI = kpi

	case PlanGrouped:
		rows, err := s.Runner.RunGrouped(ctx, plan)
		if err != nil {
			return nil, err
		}
		chart := &ChartData{Rows: rows}
		for _, r := range rows {
			chart.Total += r.Value
		}
		data.Chart = chart

	case PlanTable:
		rows, total, err := s.Runner.RunTable(ctx, plan)
		if err != nil {
			return nil, err
		}
		data.Table = &TableData{
			Columns: plan.Columns,
			Rows:    rows,
			Page:    plan.Page,
			Limit:   plan.Limit,
			Total:   total,
		}

	case PlanList:
		items, total, err := s.Runner.RunList(ctx, plan)
		if err != nil {
			return nil, err
		}
		data.List = &ListData{Items: items, Total: total}
	}
	return data, nil
}

// kpi computes the headline value over the spec's own range, then
// compares the trailing period against the one before it for the trend.
func (s *Service) kpi(ctx context.Context, plan *Plan) (*KPIData, error) {
	val, err := s.Runner.RunScalar(ctx, plan)
	if err != nil {
		return nil, err
	}

	period := time.Duration(s.TrendPeriodDays) * 24 * time.Hour
	now := s.Now().UTC()

	current, err := s.Runner.RunScalar(ctx, plan.withRange(now.Add(-period), now))
	if err != nil {
		return nil, err
	}
	previous, err := s.Runner.RunScalar(ctx, plan.withRange(now.Add(-2*period), now.Add(-period)))
	if err != nil {
		return nil, err
	}

	return &KPIData{Value: val, Trend: Trend(current, previous, s.TrendPeriodDays)}, nil
}

func (p *Plan) withRange(from, to time.Time) *Plan {
	clone := *p
	clone.DateRange = &DateRange{
		From: from.Format(time.RFC3339),
		To:   to.Format(time.RFC3339),
	}
	return &clone
}
