package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"synkboard/internal/config"
	"synkboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants(id,name,slug,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Slug, t.CreatedAt)
	return err
}

func scanTenant(row *sql.Row) (domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.DB.QueryRowContext(ctx, `SELECT id,name,slug,created_at FROM tenants WHERE id=?`, id))
}

func (r Repo) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return scanTenant(r.DB.QueryRowContext(ctx, `SELECT id,name,slug,created_at FROM tenants WHERE slug=?`, slug))
}

func (r Repo) SingleTenant(ctx context.Context) (domain.Tenant, error) {
	tenants, err := r.ListTenants(ctx)
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(tenants) == 0 {
		return domain.Tenant{}, ErrNotFound
	}
	if len(tenants) > 1 {
		return domain.Tenant{}, fmt.Errorf("multiple tenants exist; specify --tenant")
	}
	return tenants[0], nil
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,slug,created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) DeleteTenant(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tenants WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertTenantConfig(ctx context.Context, tenantID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Tenant.ID = tenantID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO tenant_configs(tenant_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(tenant_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, tenantID, string(payload), now, now)
	return err
}

func (r Repo) GetTenantConfig(ctx context.Context, tenantID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM tenant_configs WHERE tenant_id=?`, tenantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Tenant.ID == "" {
		cfg.Tenant.ID = tenantID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,tenant_id,name,email,role,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.TenantID, u.Name, u.Email, u.Role, u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,email,role,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,email,role,created_at FROM users WHERE tenant_id=? AND email=?`, tenantID, email))
}

func (r Repo) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,email,role,created_at FROM users WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, nil
}

func (r Repo) InsertEntity(ctx context.Context, e domain.Entity) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO entities(id,tenant_id,name,slug,icon,color,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TenantID, e.Name, e.Slug, nullable(e.Icon), nullable(e.Color), boolInt(e.IsActive), e.CreatedAt, e.UpdatedAt)
	return err
}

func scanEntity(row *sql.Row) (domain.Entity, error) {
	var e domain.Entity
	var icon, color sql.NullString
	var active int
	err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.Slug, &icon, &color, &active, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if icon.Valid {
		e.Icon = icon.String
	}
	if color.Valid {
		e.Color = color.String
	}
	e.IsActive = active != 0
	return e, err
}

func (r Repo) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return scanEntity(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,slug,icon,color,is_active,created_at,updated_at FROM entities WHERE id=?`, id))
}

func (r Repo) GetEntityBySlug(ctx context.Context, tenantID, slug string) (domain.Entity, error) {
	return scanEntity(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,slug,icon,color,is_active,created_at,updated_at FROM entities WHERE tenant_id=? AND slug=?`, tenantID, slug))
}

func (r Repo) ListEntities(ctx context.Context, tenantID string) ([]domain.Entity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,slug,icon,color,is_active,created_at,updated_at FROM entities WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Entity
	for rows.Next() {
		var e domain.Entity
		var icon, color sql.NullString
		var active int
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.Slug, &icon, &color, &active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if icon.Valid {
			e.Icon = icon.String
		}
		if color.Valid {
			e.Color = color.String
		}
		e.IsActive = active != 0
		res = append(res, e)
	}
	return res, nil
}

func (r Repo) UpdateEntity(ctx context.Context, id string, name, icon, color *string, isActive *bool, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if icon != nil {
		fields = append(fields, "icon=?")
		args = append(args, nullable(*icon))
	}
	if color != nil {
		fields = append(fields, "color=?")
		args = append(args, nullable(*color))
	}
	if isActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, boolInt(*isActive))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE entities SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEntity(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM entities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertEntityField(ctx context.Context, f domain.EntityField) error {
	options := ""
	if len(f.Options) > 0 {
		data, err := json.Marshal(f.Options)
		if err != nil {
			return err
		}
		options = string(data)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO entity_fields(id,entity_id,key,label,type,options_json,is_required,is_filterable,is_sortable,position)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(entity_id,key) DO UPDATE SET label=excluded.label, type=excluded.type, options_json=excluded.options_json,
is_required=excluded.is_required, is_filterable=excluded.is_filterable, is_sortable=excluded.is_sortable, position=excluded.position`,
		f.ID, f.EntityID, f.Key, nullable(f.Label), f.Type, nullable(options),
		boolInt(f.IsRequired), boolInt(f.IsFilterable), boolInt(f.IsSortable), f.Position)
	return err
}

// EntityFields returns the field allow-list for an entity, tenant-scoped
// through the owning entity.
func (r Repo) EntityFields(ctx context.Context, tenantID, entityID string) ([]domain.EntityField, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT f.id,f.entity_id,f.key,f.label,f.type,f.options_json,f.is_required,f.is_filterable,f.is_sortable,f.position
FROM entity_fields f JOIN entities e ON e.id=f.entity_id
WHERE e.tenant_id=? AND f.entity_id=? ORDER BY f.position ASC, f.key ASC`, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EntityField
	for rows.Next() {
		var f domain.EntityField
		var label, options sql.NullString
		var required, filterable, sortable int
		if err := rows.Scan(&f.ID, &f.EntityID, &f.Key, &label, &f.Type, &options, &required, &filterable, &sortable, &f.Position); err != nil {
			return nil, err
		}
		if label.Valid {
			f.Label = label.String
		}
		if options.Valid && options.String != "" {
			if err := json.Unmarshal([]byte(options.String), &f.Options); err != nil {
				return nil, fmt.Errorf("field %s options: %w", f.Key, err)
			}
		}
		f.IsRequired = required != 0
		f.IsFilterable = filterable != 0
		f.IsSortable = sortable != 0
		res = append(res, f)
	}
	return res, nil
}

func (r Repo) DeleteEntityField(ctx context.Context, entityID, key string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM entity_fields WHERE entity_id=? AND key=?`, entityID, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
