package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synkboard/internal/analytics"
	"synkboard/internal/app"
	"synkboard/internal/domain"
	"synkboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	App      app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"target_field: unknown field \"amount\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the SynkBoard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.App.Repo))
	router.Handle("/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("SynkBoard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerDevAuth(group, cfg.App, cfg.Auth)
	registerTenants(group, cfg.App)
	registerEntities(group, cfg.App)
	registerIngest(group, cfg.App)
	registerRecords(group, cfg.App)
	registerRules(group, cfg.App)
	registerDashboards(group, cfg.App)
	registerAPIKeys(group, cfg.App)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *analytics.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	var fe *app.FieldError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_fields", err.Error(), map[string]any{"field": fe.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "too many"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerDevAuth issues short-lived tokens for local development.
// Disabled unless the server is started with --dev-login.
func registerDevAuth(api huma.API, a app.App, auth AuthConfig) {
	type devLoginRequest struct {
		UserID   string `json:"user_id"`
		TenantID string `json:"tenant_id"`
		Role     string `json:"role,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a development token",
	}, func(ctx context.Context, input *struct {
		Body devLoginRequest
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if !auth.EnableDevLogin {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login is disabled", nil)
		}
		token, err := issueJWT(auth.JWTSecret, input.Body.UserID, input.Body.TenantID, input.Body.Role, 24*time.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}

func registerTenants(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest
	}) (*struct {
		Body domain.Tenant `json:"body"`
	}, error) {
		if _, err := userIDFromContext(ctx); err != nil {
			return nil, err
		}
		t, err := a.CreateTenant(ctx, "", input.Body.Name, input.Body.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tenant `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tenant `json:"body"`
	}, error) {
		if _, err := userIDFromContext(ctx); err != nil {
			return nil, err
		}
		tenants, err := a.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tenant `json:"body"`
		}{Body: tenants}, nil
	})

	type tenantPath struct {
		TenantID string `path:"tenant_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
	}, func(ctx context.Context, input *tenantPath) (*struct {
		Body domain.Tenant `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		t, err := a.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tenant `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Body     CreateUserRequest
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		u, err := a.CreateUser(ctx, input.TenantID, input.Body.Name, input.Body.Email, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerEntities(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-entity",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/entities",
		Summary:       "Create entity",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Body     CreateEntityRequest
	}) (*struct {
		Body domain.Entity `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.CreateEntity(ctx, input.TenantID, input.Body.Name, input.Body.Slug, input.Body.Icon, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Entity `json:"body"`
		}{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-entities",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/entities",
		Summary:     "List entities",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []domain.Entity `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		entities, err := a.Repo.ListEntities(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Entity `json:"body"`
		}{Body: entities}, nil
	})

	type entityPath struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/entities/{slug}",
		Summary:     "Get entity with fields",
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body struct {
			Entity domain.Entity        `json:"entity"`
			Fields []domain.EntityField `json:"fields"`
		} `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.Repo.GetEntityBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		fields, err := a.Repo.EntityFields(ctx, input.TenantID, e.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Entity domain.Entity        `json:"entity"`
				Fields []domain.EntityField `json:"fields"`
			} `json:"body"`
		}{}
		out.Body.Entity = e
		out.Body.Fields = fields
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entity",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/entities/{slug}",
		Summary:     "Update entity",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
		Body     UpdateEntityRequest
	}) (*struct {
		Body domain.Entity `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.Repo.GetEntityBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		now := a.Now().UTC().Format(time.RFC3339)
		if err := a.Repo.UpdateEntity(ctx, e.ID, input.Body.Name, input.Body.Icon, input.Body.Color, input.Body.IsActive, now); err != nil {
			return nil, handleError(err)
		}
		e, err = a.Repo.GetEntity(ctx, e.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Entity `json:"body"`
		}{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-entity-field",
		Method:        http.MethodPut,
		Path:          "/tenants/{tenant_id}/entities/{slug}/fields",
		Summary:       "Create or update an entity field",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
		Body     SetFieldRequest
	}) (*struct {
		Body domain.EntityField `json:"body"`
	}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.Repo.GetEntityBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := a.SetEntityField(ctx, domain.EntityField{
			EntityID:     e.ID,
			Key:          input.Body.Key,
			Label:        input.Body.Label,
			Type:         domain.FieldType(input.Body.Type),
			Options:      input.Body.Options,
			IsRequired:   input.Body.IsRequired,
			IsFilterable: input.Body.IsFilterable,
			IsSortable:   input.Body.IsSortable,
			Position:     input.Body.Position,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EntityField `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-entity-field",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/entities/{slug}/fields/{key}",
		Summary:     "Delete an entity field",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Slug     string `path:"slug"`
		Key      string `path:"key"`
	}) (*struct{}, error) {
		if err := requireTenant(ctx, input.TenantID); err != nil {
			return nil, err
		}
		e, err := a.Repo.GetEntityBySlug(ctx, input.TenantID, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		if err := a.Repo.DeleteEntityField(ctx, e.ID, input.Key); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
