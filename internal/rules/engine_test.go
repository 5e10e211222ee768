package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

type stubRules struct {
	rules []domain.Rule
}

func (s stubRules) ActiveRules(context.Context, string, string) ([]domain.Rule, error) {
	return s.rules, nil
}

type captureSink struct {
	execs []domain.RuleExecution
}

func (s *captureSink) RecordExecution(_ context.Context, exec domain.RuleExecution) error {
	s.execs = append(s.execs, exec)
	return nil
}

func newTestEngine(rules []domain.Rule) (*Engine, *captureSink) {
	sink := &captureSink{}
	e := NewEngine(stubRules{rules: rules}, sink, testLogger())
	return e, sink
}

func TestEvaluateRuleMatched(t *testing.T) {
	e, _ := newTestEngine(nil)
	ec := templateContext()

	rule := domain.Rule{
		ID: "rule-1",
		Conditions: []domain.Condition{
			cond("amount", domain.OpGreaterThan, value.Number(1000)),
		},
		Actions: domain.Actions{
			domain.TagAction{Field: "status", Value: "hot"},
		},
	}
	res := e.EvaluateRule(context.Background(), rule, ec)

	assert.True(t, res.Matched)
	assert.Equal(t, 1, res.ConditionsMet)
	assert.Equal(t, 1, res.TotalConditions)
	assert.Equal(t, 1, res.ActionsExecuted)
	assert.Equal(t, 0, res.ActionsFailed)

	var out evaluationOutput
	require.NoError(t, json.Unmarshal(res.Output, &out))
	require.Len(t, out.Conditions, 1)
	require.Len(t, out.Actions, 1)
}

func TestEvaluateRuleNotMatchedSkipsActions(t *testing.T) {
	e, _ := newTestEngine(nil)
	ec := templateContext()

	rule := domain.Rule{
		Conditions: []domain.Condition{
			cond("amount", domain.OpLessThan, value.Number(10)),
		},
		Actions: domain.Actions{
			domain.TagAction{Field: "status", Value: "hot"},
		},
	}
	res := e.EvaluateRule(context.Background(), rule, ec)

	assert.False(t, res.Matched)
	assert.Equal(t, 0, res.ActionsExecuted)
	assert.Equal(t, 0, res.ActionsFailed)
}

func TestActionFailureIsolated(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	e, _ := newTestEngine(nil)
	ec := templateContext()

	rule := domain.Rule{
		Actions: domain.Actions{
			domain.WebhookAction{URL: srv.URL},
			domain.WebhookAction{URL: "http://127.0.0.1:1/down"},
			domain.WebhookAction{URL: srv.URL},
		},
	}
	res := e.EvaluateRule(context.Background(), rule, ec)

	assert.True(t, res.Matched, "empty conditions are vacuously matched")
	assert.Equal(t, 2, res.ActionsExecuted)
	assert.Equal(t, 1, res.ActionsFailed)
	assert.Equal(t, int32(2), calls.Load(), "actions after a failure must still run")
}

func TestEvaluateRecordFiltersTrigger(t *testing.T) {
	ruleCreate := domain.Rule{
		ID: "on-create", TenantID: "ten-1", Name: "on create",
		RunOn: domain.TriggerCreate, IsActive: true,
	}
	ruleUpdate := domain.Rule{
		ID: "on-update", TenantID: "ten-1", Name: "on update",
		RunOn: domain.TriggerUpdate, IsActive: true,
	}
	ruleBoth := domain.Rule{
		ID: "on-both", TenantID: "ten-1", Name: "on both",
		RunOn: domain.TriggerBoth, IsActive: true,
	}
	e, sink := newTestEngine([]domain.Rule{ruleCreate, ruleUpdate, ruleBoth})
	ec := templateContext()

	batch, err := e.EvaluateRecord(context.Background(), ec, domain.TriggerCreate)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Triggered)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "on-create", batch.Results[0].RuleID)
	assert.Equal(t, "on-both", batch.Results[1].RuleID)

	// one audit row per evaluated rule
	require.Len(t, sink.execs, 2)
	for _, exec := range sink.execs {
		assert.Equal(t, domain.ExecutionMatched, exec.Status)
		assert.Equal(t, "rec-1", exec.RecordID)
	}
}

func TestEvaluateRecordRecordsSkipped(t *testing.T) {
	rule := domain.Rule{
		ID: "r", TenantID: "ten-1", RunOn: domain.TriggerBoth, IsActive: true,
		Conditions: []domain.Condition{
			cond("stage", domain.OpEquals, value.String("lost")),
		},
	}
	e, sink := newTestEngine([]domain.Rule{rule})

	batch, err := e.EvaluateRecord(context.Background(), templateContext(), domain.TriggerUpdate)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Triggered)
	require.Len(t, sink.execs, 1)
	assert.Equal(t, domain.ExecutionSkipped, sink.execs[0].Status)
}

type panicSource struct{}

func (panicSource) ActiveRules(context.Context, string, string) ([]domain.Rule, error) {
	return []domain.Rule{{ID: "boom", TenantID: "ten-1", RunOn: domain.TriggerBoth}}, nil
}

func TestEvaluateRecordRecoversPanic(t *testing.T) {
	sink := &captureSink{}
	e := NewEngine(panicSource{}, sink, testLogger())
	e.Evaluator = nil // forces a nil deref inside the rule evaluation

	batch, err := e.EvaluateRecord(context.Background(), templateContext(), domain.TriggerCreate)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Triggered)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, domain.ExecutionFailed, batch.Results[0].Status)

	require.Len(t, sink.execs, 1)
	assert.Equal(t, domain.ExecutionFailed, sink.execs[0].Status)
	assert.Contains(t, sink.execs[0].Output, "error")
}
