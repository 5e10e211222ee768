package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"synkboard/internal/app"
	"synkboard/internal/repo"
)

// rawInput carries an order-preserving JSON body past huma's schema
// validation. Dynamic record fields must keep their submitted order.
func decodeRaw(body []byte, dst any) huma.StatusError {
	if len(body) == 0 {
		return newAPIError(http.StatusBadRequest, "bad_request", "request body is required", nil)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return newAPIError(http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), nil)
	}
	return nil
}

func registerIngest(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:      "ingest-record",
		Method:           http.MethodPost,
		Path:             "/ingest/{tenant_slug}/{entity_slug}",
		Summary:          "Ingest a record",
		Description:      "Validates the fields against the entity schema, stores the record, then runs the entity's active rules.",
		DefaultStatus:    http.StatusCreated,
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantSlug string `path:"tenant_slug"`
		EntitySlug string `path:"entity_slug"`
		RawBody    []byte `contentType:"application/json"`
	}) (*struct {
		Body IngestResponse `json:"body"`
	}, error) {
		var req IngestRequest
		if err := decodeRaw(input.RawBody, &req); err != nil {
			return nil, err
		}
		tenant, err := a.Repo.GetTenantBySlug(ctx, input.TenantSlug)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireTenant(ctx, tenant.ID); err != nil {
			return nil, err
		}
		userID, _ := userIDFromContext(ctx)
		res, err := a.IngestRecord(ctx, app.IngestOptions{
			TenantID:   tenant.ID,
			EntitySlug: input.EntitySlug,
			Fields:     req.Fields,
			UserID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IngestResponse `json:"body"`
		}{Body: IngestResponse{RecordID: res.Record.ID, RulesTriggered: res.Triggered}}, nil
	})
}

func registerRecords(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/entities/{slug}/records",
		Summary:     "List records",
	}, func(ctx context.Context, input *struct {
		TenantID        string `path:"tenant_id"`
		Slug            string `path:"slug"`
		Limit           int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []RecordResponse `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.Repo.GetEntityBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		records, err := a.Repo.ListRecords(ctx, repo.RecordFilters{
			TenantID:        input.TenantID,
			EntityID:        e.ID,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]RecordResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, recordResponse(rec))
		}
		return &struct {
			Body []RecordResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/records/{record_id}",
		Summary:     "Get record",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RecordID string `path:"record_id"`
	}) (*struct {
		Body RecordResponse `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		rec, err := a.Repo.GetRecord(ctx, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		if rec.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "record not found", nil)
		}
		return &struct {
			Body RecordResponse `json:"body"`
		}{Body: recordResponse(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-record",
		Method:           http.MethodPut,
		Path:             "/tenants/{tenant_id}/entities/{slug}/records/{record_id}",
		Summary:          "Update record fields",
		Description:      "Replaces the record's fields after schema validation and re-runs rules with an update trigger.",
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
		RecordID string `path:"record_id"`
		RawBody  []byte `contentType:"application/json"`
	}) (*struct {
		Body IngestResponse `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		var req IngestRequest
		if err := decodeRaw(input.RawBody, &req); err != nil {
			return nil, err
		}
		userID, _ := userIDFromContext(ctx)
		res, err := a.IngestRecord(ctx, app.IngestOptions{
			TenantID:   input.TenantID,
			EntitySlug: input.Slug,
			RecordID:   input.RecordID,
			Fields:     req.Fields,
			UserID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IngestResponse `json:"body"`
		}{Body: IngestResponse{RecordID: res.Record.ID, RulesTriggered: res.Triggered}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-record",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/records/{record_id}",
		Summary:     "Delete record",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		RecordID string `path:"record_id"`
	}) (*struct{}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		rec, err := a.Repo.GetRecord(ctx, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		if rec.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "record not found", nil)
		}
		if err := a.Repo.DeleteRecord(ctx, input.RecordID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
