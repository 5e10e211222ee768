package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"synkboard/internal/domain"
)

func encodeRule(r domain.Rule) (conditions, actions string, err error) {
	condData, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("encode conditions: %w", err)
	}
	actData, err := domain.EncodeActions(r.Actions)
	if err != nil {
		return "", "", fmt.Errorf("encode actions: %w", err)
	}
	return string(condData), string(actData), nil
}

func decodeRule(rule *domain.Rule, conditions, actions string) error {
	if conditions != "" {
		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			return fmt.Errorf("rule %s conditions: %w", rule.ID, err)
		}
	}
	decoded, err := domain.DecodeActions([]byte(actions))
	if err != nil {
		return fmt.Errorf("rule %s actions: %w", rule.ID, err)
	}
	rule.Actions = decoded
	return nil
}

func (r Repo) InsertRule(ctx context.Context, rule domain.Rule) error {
	conditions, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO rules(id,tenant_id,entity_id,name,run_on,is_active,conditions_json,actions_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rule.ID, rule.TenantID, rule.EntityID, rule.Name, rule.RunOn, boolInt(rule.IsActive), conditions, actions, rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r Repo) UpdateRule(ctx context.Context, rule domain.Rule) error {
	conditions, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE rules SET name=?, run_on=?, is_active=?, conditions_json=?, actions_json=?, updated_at=? WHERE id=?`,
		rule.Name, rule.RunOn, boolInt(rule.IsActive), conditions, actions, rule.UpdatedAt, rule.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.Rule, error) {
	var rule domain.Rule
	var active int
	var conditions, actions string
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,entity_id,name,run_on,is_active,conditions_json,actions_json,created_at,updated_at FROM rules WHERE id=?`, id).
		Scan(&rule.ID, &rule.TenantID, &rule.EntityID, &rule.Name, &rule.RunOn, &active, &conditions, &actions, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	if err != nil {
		return rule, err
	}
	rule.IsActive = active != 0
	return rule, decodeRule(&rule, conditions, actions)
}

func (r Repo) listRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rule
	for rows.Next() {
		var rule domain.Rule
		var active int
		var conditions, actions string
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.EntityID, &rule.Name, &rule.RunOn, &active, &conditions, &actions, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.IsActive = active != 0
		if err := decodeRule(&rule, conditions, actions); err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, nil
}

func (r Repo) ListRules(ctx context.Context, tenantID, entityID string) ([]domain.Rule, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{tenantID}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,tenant_id,entity_id,name,run_on,is_active,conditions_json,actions_json,created_at,updated_at FROM rules WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	return r.listRules(ctx, query, args...)
}

// ActiveRules returns an entity's active rules in creation order, the
// order the engine evaluates them in.
func (r Repo) ActiveRules(ctx context.Context, tenantID, entityID string) ([]domain.Rule, error) {
	return r.listRules(ctx, `SELECT id,tenant_id,entity_id,name,run_on,is_active,conditions_json,actions_json,created_at,updated_at
FROM rules WHERE tenant_id=? AND entity_id=? AND is_active=1 ORDER BY created_at ASC, id ASC`, tenantID, entityID)
}

func (r Repo) DeleteRule(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RecordExecution(ctx context.Context, exec domain.RuleExecution) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO rule_executions(tenant_id,rule_id,record_id,status,duration_ms,output_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		exec.TenantID, exec.RuleID, exec.RecordID, exec.Status, exec.DurationMS, nullable(exec.Output), exec.CreatedAt)
	return err
}

type ExecutionFilters struct {
	TenantID string
	RuleID   string
	RecordID string
	Status   string
	Limit    int
	CursorID int64
}

func (r Repo) ListExecutions(ctx context.Context, f ExecutionFilters) ([]domain.RuleExecution, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.RuleID != "" {
		clauses = append(clauses, "rule_id=?")
		args = append(args, f.RuleID)
	}
	if f.RecordID != "" {
		clauses = append(clauses, "record_id=?")
		args = append(args, f.RecordID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,tenant_id,rule_id,record_id,status,duration_ms,output_json,created_at FROM rule_executions ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RuleExecution
	for rows.Next() {
		var e domain.RuleExecution
		var output sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.RuleID, &e.RecordID, &e.Status, &e.DurationMS, &output, &e.CreatedAt); err != nil {
			return nil, err
		}
		if output.Valid {
			e.Output = output.String
		}
		res = append(res, e)
	}
	return res, nil
}
