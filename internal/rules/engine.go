package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"synkboard/internal/domain"
)

// EvaluationResult is one rule's outcome for one triggering event.
// Immutable after construction.
type EvaluationResult struct {
	Matched         bool            `json:"matched"`
	ConditionsMet   int             `json:"conditions_met"`
	TotalConditions int             `json:"total_conditions"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	ActionsExecuted int             `json:"actions_executed"`
	ActionsFailed   int             `json:"actions_failed"`
	Output          json.RawMessage `json:"output,omitempty"`
}

type evaluationOutput struct {
	Conditions []ConditionResult `json:"conditions"`
	Actions    []ActionResult    `json:"actions,omitempty"`
}

// RuleSource yields the active rules for an entity.
type RuleSource interface {
	ActiveRules(ctx context.Context, tenantID, entityID string) ([]domain.Rule, error)
}

// ExecutionSink persists one audit row per evaluated rule.
type ExecutionSink interface {
	RecordExecution(ctx context.Context, exec domain.RuleExecution) error
}

// Engine orchestrates condition evaluation and action execution for the
// active rules of an entity. Rule failures are logged and recorded;
// they never propagate to the record-write path that triggered them.
type Engine struct {
	Rules      RuleSource
	Executions ExecutionSink
	Evaluator  *Evaluator
	Executor   *Executor
	Log        *slog.Logger
	Now        func() time.Time
}

func NewEngine(rules RuleSource, executions ExecutionSink, log *slog.Logger) *Engine {
	return &Engine{
		Rules:      rules,
		Executions: executions,
		Evaluator:  NewEvaluator(),
		Executor:   NewExecutor(log),
		Log:        log,
		Now:        time.Now,
	}
}

// EvaluateRule evaluates one rule against the context: conditions with
// AND semantics, then each action sequentially in rule order. Action
// failures are counted and isolated; they never stop later actions.
func (e *Engine) EvaluateRule(ctx context.Context, rule domain.Rule, ec Context) EvaluationResult {
	start := e.Now()

	condResults, matched := e.Evaluator.EvaluateAll(rule.Conditions, ec.Record.Fields)
	res := EvaluationResult{
		Matched:         matched,
		TotalConditions: len(rule.Conditions),
	}
	for _, c := range condResults {
		if c.Matched {
			res.ConditionsMet++
		}
	}

	out := evaluationOutput{Conditions: condResults}
	if matched {
		for _, action := range rule.Actions {
			ar := e.Executor.Execute(ctx, action, ec)
			if ar.Success {
				res.ActionsExecuted++
			} else {
				res.ActionsFailed++
				e.Log.Warn("action failed",
					"rule_id", rule.ID, "record_id", ec.Record.ID,
					"action_type", ar.ActionType, "error", ar.Error)
			}
			out.Actions = append(out.Actions, ar)
		}
	}

	if data, err := json.Marshal(out); err == nil {
		res.Output = data
	}
	res.ExecutionTimeMS = e.Now().Sub(start).Milliseconds()
	return res
}

// RuleOutcome pairs one rule with its evaluation result in a batch.
type RuleOutcome struct {
	RuleID   string                 `json:"rule_id"`
	RuleName string                 `json:"rule_name"`
	Status   domain.ExecutionStatus `json:"status"`
	Result   EvaluationResult       `json:"result"`
}

// BatchResult is the outcome of evaluating all active rules for one
// record event.
type BatchResult struct {
	Triggered int           `json:"triggered"`
	Results   []RuleOutcome `json:"results"`
}

// EvaluateRecord runs every active rule of the record's entity for a
// create or update event. Each rule's evaluation and audit row are
// isolated: a panic or persist failure in one rule does not stop the
// rest.
func (e *Engine) EvaluateRecord(ctx context.Context, ec Context, op domain.TriggerOp) (*BatchResult, error) {
	rules, err := e.Rules.ActiveRules(ctx, ec.Tenant.ID, ec.Record.EntityID)
	if err != nil {
		return nil, fmt.Errorf("fetch active rules: %w", err)
	}

	batch := &BatchResult{}
	for _, rule := range rules {
		if !rule.RunOn.Matches(op) {
			continue
		}
		ruleCtx := ec
		ruleCtx.Rule = rule
		outcome := e.evaluateOne(ctx, rule, ruleCtx)
		if outcome.Status == domain.ExecutionMatched {
			batch.Triggered++
		}
		batch.Results = append(batch.Results, outcome)
	}
	return batch, nil
}

func (e *Engine) evaluateOne(ctx context.Context, rule domain.Rule, ec Context) (outcome RuleOutcome) {
	start := e.Now()
	outcome = RuleOutcome{RuleID: rule.ID, RuleName: rule.Name}
	exec := domain.RuleExecution{
		TenantID:  rule.TenantID,
		RuleID:    rule.ID,
		RecordID:  ec.Record.ID,
		CreatedAt: start.UTC().Format(time.RFC3339),
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = domain.ExecutionFailed
			outcome.Result = EvaluationResult{TotalConditions: len(rule.Conditions)}
			exec.Status = domain.ExecutionFailed
			exec.Output = fmt.Sprintf(`{"error":%q}`, fmt.Sprint(r))
			e.Log.Error("rule evaluation panicked", "rule_id", rule.ID, "panic", r)
		}
		exec.DurationMS = e.Now().Sub(start).Milliseconds()
		observeEvaluation(exec.Status, exec.DurationMS)
		if err := e.Executions.RecordExecution(ctx, exec); err != nil {
			e.Log.Error("persist rule execution", "rule_id", rule.ID, "error", err)
		}
	}()

	res := e.EvaluateRule(ctx, rule, ec)
	exec.Output = string(res.Output)
	if res.Matched {
		exec.Status = domain.ExecutionMatched
	} else {
		exec.Status = domain.ExecutionSkipped
	}
	outcome.Status = exec.Status
	outcome.Result = res
	return outcome
}
