package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"synkboard/internal/analytics"
	"synkboard/internal/domain"
	"synkboard/internal/value"
)

// The aggregate executor runs compiled widget plans against the
// records table using SQLite's JSON1 functions. Field keys in a plan
// have already passed the planner's allow-list; on top of that, every
// json_extract path is a bound parameter, never spliced into SQL text.

// jsonPath renders a field key as a JSON1 path expression.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// planPredicate builds the WHERE clause shared by all plan shapes:
// tenant/entity scope, optional date range, validated filters.
func planPredicate(plan *analytics.Plan) (string, []any) {
	clauses := []string{"tenant_id=?", "entity_id=?"}
	args := []any{plan.TenantID, plan.EntityID}

	if dr := plan.DateRange; dr != nil {
		if dr.From != "" {
			clauses = append(clauses, "created_at >= ?")
			args = append(args, dr.From)
		}
		if dr.To != "" {
			clauses = append(clauses, "created_at < ?")
			args = append(args, dr.To)
		}
	}

	for _, f := range plan.Filters {
		clause, filterArgs := filterClause(f)
		clauses = append(clauses, clause)
		args = append(args, filterArgs...)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func filterClause(f analytics.Filter) (string, []any) {
	path := jsonPath(f.Field)
	if f.Operator == domain.OpContains {
		return `CAST(json_extract(fields_json,?) AS TEXT) LIKE ? ESCAPE '\'`,
			[]any{path, "%" + escapeLike(f.Value) + "%"}
	}

	op := map[domain.Operator]string{
		domain.OpEquals:      "=",
		domain.OpNotEquals:   "!=",
		domain.OpGreaterThan: ">",
		domain.OpLessThan:    "<",
		domain.OpGreaterEq:   ">=",
		domain.OpLessEq:      "<=",
	}[f.Operator]

	if n, err := strconv.ParseFloat(f.Value, 64); err == nil {
		return fmt.Sprintf(`CAST(json_extract(fields_json,?) AS REAL) %s ?`, op), []any{path, n}
	}
	return fmt.Sprintf(`CAST(json_extract(fields_json,?) AS TEXT) %s ?`, op), []any{path, f.Value}
}

// metricExpr yields the aggregate SQL expression and any leading args,
// plus an extra predicate restricting numeric metrics to rows whose
// target field actually holds a number. Non-numeric values are excluded
// from the aggregate, never coerced to zero.
func metricExpr(plan *analytics.Plan) (expr string, exprArgs []any, numericClause string, numericArgs []any) {
	if plan.Metric == analytics.MetricCount {
		return "COUNT(*)", nil, "", nil
	}
	path := jsonPath(plan.TargetField)
	agg := map[analytics.MetricType]string{
		analytics.MetricSum: "SUM",
		analytics.MetricAvg: "AVG",
		analytics.MetricMin: "MIN",
		analytics.MetricMax: "MAX",
	}[plan.Metric]
	expr = agg + `(CAST(json_extract(fields_json,?) AS REAL))`
	numericClause = `json_type(fields_json,?) IN ('integer','real')`
	return expr, []any{path}, numericClause, []any{path}
}

// RunScalar computes a single aggregate value for a KPI plan.
func (r Repo) RunScalar(ctx context.Context, plan *analytics.Plan) (float64, error) {
	where, whereArgs := planPredicate(plan)
	expr, exprArgs, numeric, numericArgs := metricExpr(plan)
	if numeric != "" {
		where += " AND " + numeric
		whereArgs = append(whereArgs, numericArgs...)
	}

	query := fmt.Sprintf(`SELECT %s FROM records %s`, expr, where)
	args := append(exprArgs, whereArgs...)

	var val sql.NullFloat64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&val); err != nil {
		return 0, err
	}
	return val.Float64, nil
}

// RunGrouped aggregates per group_by value, ordered by aggregate value
// and truncated to the plan's limit.
func (r Repo) RunGrouped(ctx context.Context, plan *analytics.Plan) ([]analytics.AggregateRow, error) {
	where, whereArgs := planPredicate(plan)
	expr, exprArgs, numeric, numericArgs := metricExpr(plan)
	if numeric != "" {
		where += " AND " + numeric
		whereArgs = append(whereArgs, numericArgs...)
	}

	order := "DESC"
	if plan.SortOrder == analytics.SortAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT COALESCE(CAST(json_extract(fields_json,?) AS TEXT),'') AS label, %s AS val
FROM records %s GROUP BY label ORDER BY val %s LIMIT ?`, expr, where, order)

	args := []any{jsonPath(plan.GroupBy)}
	args = append(args, exprArgs...)
	args = append(args, whereArgs...)
	args = append(args, plan.Limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []analytics.AggregateRow
	for rows.Next() {
		var row analytics.AggregateRow
		var val sql.NullFloat64
		if err := rows.Scan(&row.Label, &val); err != nil {
			return nil, err
		}
		row.Value = val.Float64
		res = append(res, row)
	}
	return res, rows.Err()
}

// RunTable returns one page of records projected onto the plan's
// columns, plus the total matching row count.
func (r Repo) RunTable(ctx context.Context, plan *analytics.Plan) ([]map[string]any, int, error) {
	where, whereArgs := planPredicate(plan)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM records `+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (plan.Page - 1) * plan.Limit
	query := `SELECT id,created_at,created_by,fields_json FROM records ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args := append(whereArgs, plan.Limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []map[string]any
	for rows.Next() {
		var id, createdAt, fieldsJSON string
		var createdBy sql.NullString
		if err := rows.Scan(&id, &createdAt, &createdBy, &fieldsJSON); err != nil {
			return nil, 0, err
		}
		fields, err := value.ParseFields([]byte(fieldsJSON))
		if err != nil {
			return nil, 0, err
		}
		row := map[string]any{
			"id":         id,
			"created_at": createdAt,
			"created_by": createdBy.String,
		}
		// Columns lead with the three system columns; the rest are
		// validated field keys.
		for _, col := range plan.Columns[3:] {
			if v, ok := fields.Get(col); ok {
				row[col] = v.ToAny()
			} else {
				row[col] = nil
			}
		}
		res = append(res, row)
	}
	return res, total, rows.Err()
}

// RunList projects title/subtitle plus remaining fields as metadata,
// alongside the unfiltered scope total.
func (r Repo) RunList(ctx context.Context, plan *analytics.Plan) ([]analytics.ListItem, int, error) {
	total, err := r.CountRecords(ctx, plan.TenantID, plan.EntityID)
	if err != nil {
		return nil, 0, err
	}

	where, whereArgs := planPredicate(plan)
	query := `SELECT id,created_at,fields_json FROM records ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args := append(whereArgs, plan.Limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []analytics.ListItem
	for rows.Next() {
		var id, createdAt, fieldsJSON string
		if err := rows.Scan(&id, &createdAt, &fieldsJSON); err != nil {
			return nil, 0, err
		}
		fields, err := value.ParseFields([]byte(fieldsJSON))
		if err != nil {
			return nil, 0, err
		}
		item := analytics.ListItem{ID: id, CreatedAt: createdAt, Title: id}
		if plan.TitleField != "" {
			if v, ok := fields.Get(plan.TitleField); ok {
				item.Title = v.AsString()
			}
		}
		if plan.SubtitleField != "" {
			if v, ok := fields.Get(plan.SubtitleField); ok {
				item.Subtitle = v.AsString()
			}
		}
		for _, key := range plan.MetaFields {
			if v, ok := fields.Get(key); ok {
				if item.Meta == nil {
					item.Meta = map[string]any{}
				}
				item.Meta[key] = v.ToAny()
			}
		}
		res = append(res, item)
	}
	return res, total, rows.Err()
}
