package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"synkboard/internal/domain"
	"synkboard/internal/rules"
	"synkboard/internal/value"
)

var operators = map[domain.Operator]bool{
	domain.OpEquals: true, domain.OpNotEquals: true,
	domain.OpGreaterThan: true, domain.OpLessThan: true,
	domain.OpGreaterEq: true, domain.OpLessEq: true,
	domain.OpContains: true, domain.OpNotContains: true,
	domain.OpIn: true, domain.OpNotIn: true,
	domain.OpIsEmpty: true, domain.OpIsNotEmpty: true,
	domain.OpChanged: true,
}

func (a App) validateRule(ctx context.Context, r *domain.Rule) error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if _, err := a.Repo.GetEntity(ctx, r.EntityID); err != nil {
		return fmt.Errorf("entity %s: %w", r.EntityID, err)
	}
	switch r.RunOn {
	case domain.TriggerCreate, domain.TriggerUpdate, domain.TriggerBoth:
	case "":
		r.RunOn = domain.TriggerBoth
	default:
		return fmt.Errorf("unknown run_on %q", r.RunOn)
	}
	if a.Config != nil {
		if len(r.Conditions) > a.Config.Rules.MaxConditions {
			return fmt.Errorf("too many conditions: %d > %d", len(r.Conditions), a.Config.Rules.MaxConditions)
		}
		if len(r.Actions) > a.Config.Rules.MaxActions {
			return fmt.Errorf("too many actions: %d > %d", len(r.Actions), a.Config.Rules.MaxActions)
		}
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if !operators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}
	return nil
}

func (a App) CreateRule(ctx context.Context, r domain.Rule) (domain.Rule, error) {
	if err := a.validateRule(ctx, &r); err != nil {
		return domain.Rule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := a.nowRFC3339()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := a.Repo.InsertRule(ctx, r); err != nil {
		return domain.Rule{}, err
	}
	return r, nil
}

func (a App) UpdateRule(ctx context.Context, r domain.Rule) (domain.Rule, error) {
	existing, err := a.Repo.GetRule(ctx, r.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	r.TenantID = existing.TenantID
	r.EntityID = existing.EntityID
	r.CreatedAt = existing.CreatedAt
	if err := a.validateRule(ctx, &r); err != nil {
		return domain.Rule{}, err
	}
	r.UpdatedAt = a.nowRFC3339()
	if err := a.Repo.UpdateRule(ctx, r); err != nil {
		return domain.Rule{}, err
	}
	return r, nil
}

// RuleTestResult is the preview output for a rule against a sample
// record: the full ordered condition trail, no actions executed.
type RuleTestResult struct {
	Matched         bool                    `json:"matched"`
	ConditionsMet   int                     `json:"conditions_met"`
	TotalConditions int                     `json:"total_conditions"`
	Conditions      []rules.ConditionResult `json:"conditions"`
}

// TestRule evaluates a stored rule's conditions against sample fields
// without running actions or writing an execution log.
func (a App) TestRule(ctx context.Context, ruleID string, fields *value.Map) (RuleTestResult, error) {
	rule, err := a.Repo.GetRule(ctx, ruleID)
	if err != nil {
		return RuleTestResult{}, err
	}
	return testConditions(a.Engine.Evaluator, rule.Conditions, fields), nil
}

// PreviewConditions evaluates ad-hoc conditions against sample fields,
// for rule builders that test before saving.
func (a App) PreviewConditions(conds []domain.Condition, fields *value.Map) (RuleTestResult, error) {
	for i, c := range conds {
		if c.Field == "" {
			return RuleTestResult{}, fmt.Errorf("condition %d: field is required", i)
		}
		if !operators[c.Operator] {
			return RuleTestResult{}, fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}
	return testConditions(a.Engine.Evaluator, conds, fields), nil
}

func testConditions(ev *rules.Evaluator, conds []domain.Condition, fields *value.Map) RuleTestResult {
	results, matched := ev.EvaluateAll(conds, fields)
	res := RuleTestResult{
		Matched:         matched,
		TotalConditions: len(conds),
		Conditions:      results,
	}
	for _, r := range results {
		if r.Matched {
			res.ConditionsMet++
		}
	}
	return res
}
