package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"synkboard/internal/analytics"
	"synkboard/internal/config"
	"synkboard/internal/domain"
	"synkboard/internal/repo"
	"synkboard/internal/rules"
)

// App wires the repositories, rule engine and widget service behind the
// operations the HTTP API and CLI both call.
type App struct {
	DB      *sql.DB
	Repo    repo.Repo
	Engine  *rules.Engine
	Widgets *analytics.Service
	Config  *config.Config
	Log     *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *slog.Logger) App {
	r := repo.Repo{DB: db}
	engine := rules.NewEngine(r, r, log)
	widgets := analytics.NewService(r, r)
	if cfg != nil {
		engine.Executor.Timeout = time.Duration(cfg.Rules.WebhookTimeoutMS) * time.Millisecond
		widgets.Planner.GroupLimit = cfg.Dashboards.GroupLimit
		widgets.Planner.ListLimit = cfg.Dashboards.ListLimit
		widgets.Planner.PageSize = cfg.Dashboards.PageSize
		widgets.TrendPeriodDays = cfg.Ingest.TrendPeriodDay
	}
	return App{
		DB:      db,
		Repo:    r,
		Engine:  engine,
		Widgets: widgets,
		Config:  cfg,
		Log:     log,
		Now:     time.Now,
	}
}

func (a App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a App) nowRFC3339() string {
	return a.now().UTC().Format(time.RFC3339)
}

// CreateTenant inserts a tenant and seeds its default config in one
// transaction. An empty id gets a generated UUID.
func (a App) CreateTenant(ctx context.Context, id, name, slug string) (domain.Tenant, error) {
	if slug == "" {
		return domain.Tenant{}, errors.New("slug is required")
	}
	if name == "" {
		name = slug
	}
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Tenant{ID: id, Name: name, Slug: slug, CreatedAt: a.nowRFC3339()}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,name,slug,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Slug, t.CreatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	cfgPayload, err := configJSON(config.Default(t.ID, t.Slug))
	if err != nil {
		return domain.Tenant{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenant_configs(tenant_id,config_json,created_at,updated_at) VALUES (?,?,?,?)`,
		t.ID, cfgPayload, t.CreatedAt, t.CreatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("seed tenant config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (a App) CreateUser(ctx context.Context, tenantID, name, email, role string) (domain.User, error) {
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}
	switch role {
	case "admin", "editor", "viewer":
	case "":
		role = "viewer"
	default:
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	u := domain.User{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: a.nowRFC3339(),
	}
	if err := a.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (a App) CreateEntity(ctx context.Context, tenantID, name, slug, icon, color string) (domain.Entity, error) {
	if name == "" {
		return domain.Entity{}, errors.New("name is required")
	}
	if slug == "" {
		return domain.Entity{}, errors.New("slug is required")
	}
	now := a.nowRFC3339()
	e := domain.Entity{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Slug:      slug,
		Icon:      icon,
		Color:     color,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Repo.InsertEntity(ctx, e); err != nil {
		return domain.Entity{}, err
	}
	return e, nil
}

var fieldTypes = map[domain.FieldType]bool{
	domain.FieldText: true, domain.FieldNumber: true, domain.FieldBoolean: true,
	domain.FieldDate: true, domain.FieldSelect: true, domain.FieldMultiSelect: true,
	domain.FieldRating: true, domain.FieldUser: true, domain.FieldJSON: true,
}

// SetEntityField creates or updates one field of an entity's runtime
// schema. Select-style fields must declare their options.
func (a App) SetEntityField(ctx context.Context, f domain.EntityField) (domain.EntityField, error) {
	if f.EntityID == "" {
		return domain.EntityField{}, errors.New("entity_id is required")
	}
	if f.Key == "" {
		return domain.EntityField{}, errors.New("key is required")
	}
	if !fieldTypes[f.Type] {
		return domain.EntityField{}, fmt.Errorf("unknown field type %q", f.Type)
	}
	if (f.Type == domain.FieldSelect || f.Type == domain.FieldMultiSelect) && len(f.Options) == 0 {
		return domain.EntityField{}, fmt.Errorf("field type %q requires options", f.Type)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := a.Repo.UpsertEntityField(ctx, f); err != nil {
		return domain.EntityField{}, err
	}
	return f, nil
}

func (a App) CreateDashboard(ctx context.Context, tenantID, name, slug string) (domain.Dashboard, error) {
	if name == "" {
		return domain.Dashboard{}, errors.New("name is required")
	}
	if slug == "" {
		return domain.Dashboard{}, errors.New("slug is required")
	}
	now := a.nowRFC3339()
	d := domain.Dashboard{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Repo.InsertDashboard(ctx, d); err != nil {
		return domain.Dashboard{}, err
	}
	return d, nil
}

var widgetTypes = map[domain.WidgetType]bool{
	domain.WidgetKPI: true, domain.WidgetBar: true, domain.WidgetLine: true,
	domain.WidgetPie: true, domain.WidgetTable: true, domain.WidgetList: true,
}

func (a App) CreateWidget(ctx context.Context, w domain.Widget) (domain.Widget, error) {
	if !widgetTypes[w.Type] {
		return domain.Widget{}, fmt.Errorf("unknown widget type %q", w.Type)
	}
	if w.Title == "" {
		return domain.Widget{}, errors.New("title is required")
	}
	if _, err := a.Repo.GetDashboard(ctx, w.DashboardID); err != nil {
		return domain.Widget{}, fmt.Errorf("dashboard %s: %w", w.DashboardID, err)
	}
	if _, err := a.Repo.GetEntity(ctx, w.EntityID); err != nil {
		return domain.Widget{}, fmt.Errorf("entity %s: %w", w.EntityID, err)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := a.nowRFC3339()
	w.CreatedAt = now
	w.UpdatedAt = now
	if err := a.Repo.InsertWidget(ctx, w); err != nil {
		return domain.Widget{}, err
	}
	return w, nil
}

// WidgetData loads a widget, compiles its stored config into a query
// spec and executes it.
func (a App) WidgetData(ctx context.Context, widgetID string) (*analytics.WidgetData, error) {
	w, err := a.Repo.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, err
	}
	spec, err := widgetSpec(w)
	if err != nil {
		return nil, err
	}
	return a.Widgets.Data(ctx, spec)
}

func widgetSpec(w domain.Widget) (analytics.WidgetQuerySpec, error) {
	var spec analytics.WidgetQuerySpec
	if w.ConfigJSON != "" {
		if err := decodeWidgetConfig(w.ConfigJSON, &spec); err != nil {
			return spec, fmt.Errorf("widget %s config: %w", w.ID, err)
		}
	}
	spec.TenantID = w.TenantID
	spec.EntityID = w.EntityID
	spec.WidgetType = w.Type
	if spec.MetricType == "" {
		spec.MetricType = analytics.MetricCount
	}
	return spec, nil
}

// NewAPIKey mints a tenant-scoped key and stores only its hash. The
// plaintext is returned once and never persisted.
func (a App) NewAPIKey(ctx context.Context, tenantID, userID, name string) (domain.APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := "sbk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: a.nowRFC3339(),
	}
	if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}
