package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"synkboard/internal/app"
	"synkboard/internal/domain"
)

func registerDashboards(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-dashboard",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/dashboards",
		Summary:       "Create dashboard",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Body     CreateDashboardRequest
	}) (*struct {
		Body domain.Dashboard `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		d, err := a.CreateDashboard(ctx, input.TenantID, input.Body.Name, input.Body.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dashboards",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/dashboards",
		Summary:     "List dashboards",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []domain.Dashboard `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		dashboards, err := a.Repo.ListDashboards(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Dashboard `json:"body"`
		}{Body: dashboards}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/dashboards/{slug}",
		Summary:     "Get dashboard with widgets",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
	}) (*struct {
		Body struct {
			Dashboard domain.Dashboard `json:"dashboard"`
			Widgets   []domain.Widget  `json:"widgets"`
		} `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		d, err := a.Repo.GetDashboardBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		widgets, err := a.Repo.ListWidgets(ctx, d.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Dashboard domain.Dashboard `json:"dashboard"`
				Widgets   []domain.Widget  `json:"widgets"`
			} `json:"body"`
		}{}
		out.Body.Dashboard = d
		out.Body.Widgets = widgets
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-dashboard",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/dashboards/{slug}",
		Summary:     "Delete dashboard and its widgets",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
	}) (*struct{}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		d, err := a.Repo.GetDashboardBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		if err := a.Repo.DeleteDashboard(ctx, d.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-widget",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/dashboards/{slug}/widgets",
		Summary:       "Create widget",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
		Body     CreateWidgetRequest
	}) (*struct {
		Body domain.Widget `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		d, err := a.Repo.GetDashboardBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := a.CreateWidget(ctx, domain.Widget{
			DashboardID: d.ID,
			TenantID:    input.TenantID,
			EntityID:    input.Body.EntityID,
			Type:        domain.WidgetType(input.Body.Type),
			Title:       input.Body.Title,
			ConfigJSON:  input.Body.Config,
			Position:    input.Body.Position,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Widget `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "widget-data",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/widgets/{widget_id}/data",
		Summary:     "Run a widget's aggregation and return its data",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		WidgetID string `path:"widget_id"`
	}) (*struct {
		Body WidgetDataResponse `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		w, err := a.Repo.GetWidget(ctx, input.WidgetID)
		if err != nil {
			return nil, handleError(err)
		}
		if w.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "widget not found", nil)
		}
		data, err := a.WidgetData(ctx, input.WidgetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WidgetDataResponse `json:"body"`
		}{Body: WidgetDataResponse{Widget: w, Data: data}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-widget",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/widgets/{widget_id}",
		Summary:     "Delete widget",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		WidgetID string `path:"widget_id"`
	}) (*struct{}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		w, err := a.Repo.GetWidget(ctx, input.WidgetID)
		if err != nil {
			return nil, handleError(err)
		}
		if w.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "widget not found", nil)
		}
		if err := a.Repo.DeleteWidget(ctx, input.WidgetID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAPIKeys(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/apikeys",
		Summary:       "Create API key",
		Description:   "The plaintext key is returned once and never stored.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Body     CreateAPIKeyRequest
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		key, plaintext, err := a.NewAPIKey(ctx, input.TenantID, input.Body.UserID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{Key: key, Plaintext: plaintext}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		UserID   string `query:"user_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		keys, err := a.Repo.ListAPIKeys(ctx, input.TenantID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/apikeys/{key_id}",
		Summary:     "Delete API key",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		KeyID    string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		if err := a.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
