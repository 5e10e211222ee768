package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"synkboard/internal/app"
	"synkboard/internal/domain"
	"synkboard/internal/repo"
)

func registerRules(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:      "create-rule",
		Method:           http.MethodPost,
		Path:             "/tenants/{tenant_id}/rules",
		Summary:          "Create rule",
		DefaultStatus:    http.StatusCreated,
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RawBody  []byte `contentType:"application/json"`
	}) (*struct {
		Body domain.Rule `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		var req CreateRuleRequest
		if err := decodeRaw(input.RawBody, &req); err != nil {
			return nil, err
		}
		rule := domain.Rule{
			TenantID:   input.TenantID,
			EntityID:   req.EntityID,
			Name:       req.Name,
			RunOn:      domain.TriggerOp(req.RunOn),
			IsActive:   true,
			Conditions: req.Conditions,
			Actions:    req.Actions,
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}
		created, err := a.CreateRule(ctx, rule)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Rule `json:"body"`
		}{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/rules",
		Summary:     "List rules",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		EntityID string `query:"entity_id"`
	}) (*struct {
		Body []domain.Rule `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		rules, err := a.Repo.ListRules(ctx, input.TenantID, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Rule `json:"body"`
		}{Body: rules}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rule",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/rules/{rule_id}",
		Summary:     "Get rule",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RuleID   string `path:"rule_id"`
	}) (*struct {
		Body domain.Rule `json:"body"`
	}, error) {
		rule, err := loadTenantRule(ctx, a, input.TenantID, input.RuleID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body domain.Rule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-rule",
		Method:           http.MethodPatch,
		Path:             "/tenants/{tenant_id}/rules/{rule_id}",
		Summary:          "Update rule",
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RuleID   string `path:"rule_id"`
		RawBody  []byte `contentType:"application/json"`
	}) (*struct {
		Body domain.Rule `json:"body"`
	}, error) {
		rule, err := loadTenantRule(ctx, a, input.TenantID, input.RuleID)
		if err != nil {
			return nil, err
		}
		var req UpdateRuleRequest
		if derr := decodeRaw(input.RawBody, &req); derr != nil {
			return nil, derr
		}
		if req.Name != nil {
			rule.Name = *req.Name
		}
		if req.RunOn != nil {
			rule.RunOn = domain.TriggerOp(*req.RunOn)
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}
		if req.Conditions != nil {
			rule.Conditions = *req.Conditions
		}
		if req.Actions != nil {
			rule.Actions = *req.Actions
		}
		updated, err := a.UpdateRule(ctx, rule)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Rule `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-rule",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/rules/{rule_id}",
		Summary:     "Delete rule",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RuleID   string `path:"rule_id"`
	}) (*struct{}, error) {
		if _, err := loadTenantRule(ctx, a, input.TenantID, input.RuleID); err != nil {
			return nil, err
		}
		if err := a.Repo.DeleteRule(ctx, input.RuleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "test-rule",
		Method:           http.MethodPost,
		Path:             "/tenants/{tenant_id}/rules/{rule_id}/test",
		Summary:          "Dry-run a rule against sample fields",
		Description:      "Evaluates the stored rule's conditions against the supplied fields. No actions run and no execution is logged.",
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RuleID   string `path:"rule_id"`
		RawBody  []byte `contentType:"application/json"`
	}) (*struct {
		Body app.RuleTestResult `json:"body"`
	}, error) {
		if _, err := loadTenantRule(ctx, a, input.TenantID, input.RuleID); err != nil {
			return nil, err
		}
		var req TestRuleRequest
		if derr := decodeRaw(input.RawBody, &req); derr != nil {
			return nil, derr
		}
		res, err := a.TestRule(ctx, input.RuleID, req.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body app.RuleTestResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "preview-conditions",
		Method:           http.MethodPost,
		Path:             "/tenants/{tenant_id}/rules/preview",
		Summary:          "Evaluate ad-hoc conditions against sample fields",
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RawBody  []byte `contentType:"application/json"`
	}) (*struct {
		Body app.RuleTestResult `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		var req PreviewRequest
		if derr := decodeRaw(input.RawBody, &req); derr != nil {
			return nil, derr
		}
		res, err := a.PreviewConditions(req.Conditions, req.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body app.RuleTestResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rule-executions",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/rule-executions",
		Summary:     "List rule execution log entries",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RuleID   string `query:"rule_id"`
		RecordID string `query:"record_id"`
		Status   string `query:"status"`
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		CursorID int64  `query:"cursor_id"`
	}) (*struct {
		Body []domain.RuleExecution `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		execs, err := a.Repo.ListExecutions(ctx, repo.ExecutionFilters{
			TenantID: input.TenantID,
			RuleID:   input.RuleID,
			RecordID: input.RecordID,
			Status:   input.Status,
			Limit:    input.Limit,
			CursorID: input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RuleExecution `json:"body"`
		}{Body: execs}, nil
	})
}

// loadTenantRule fetches a rule and hides rules belonging to other
// tenants behind a 404.
func loadTenantRule(ctx context.Context, a app.App, tenantID, ruleID string) (domain.Rule, error) {
	if err := requireTenant(ctx, tenantID); err != nil {
		return domain.Rule{}, err
	}
	rule, err := a.Repo.GetRule(ctx, ruleID)
	if err != nil {
		return domain.Rule{}, handleError(err)
	}
	if rule.TenantID != tenantID {
		return domain.Rule{}, newAPIError(http.StatusNotFound, "not_found", "rule not found", nil)
	}
	return rule, nil
}
