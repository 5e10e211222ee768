package repo

import (
	"context"
	"database/sql"

	"synkboard/internal/domain"
)

func (r Repo) InsertDashboard(ctx context.Context, d domain.Dashboard) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO dashboards(id,tenant_id,name,slug,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		d.ID, d.TenantID, d.Name, d.Slug, d.CreatedAt, d.UpdatedAt)
	return err
}

func scanDashboard(row *sql.Row) (domain.Dashboard, error) {
	var d domain.Dashboard
	err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Slug, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetDashboard(ctx context.Context, id string) (domain.Dashboard, error) {
	return scanDashboard(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,slug,created_at,updated_at FROM dashboards WHERE id=?`, id))
}

func (r Repo) GetDashboardBySlug(ctx context.Context, tenantID, slug string) (domain.Dashboard, error) {
	return scanDashboard(r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,slug,created_at,updated_at FROM dashboards WHERE tenant_id=? AND slug=?`, tenantID, slug))
}

func (r Repo) ListDashboards(ctx context.Context, tenantID string) ([]domain.Dashboard, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,slug,created_at,updated_at FROM dashboards WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dashboard
	for rows.Next() {
		var d domain.Dashboard
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Slug, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func (r Repo) DeleteDashboard(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM dashboards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertWidget(ctx context.Context, w domain.Widget) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO widgets(id,dashboard_id,tenant_id,entity_id,type,title,config_json,position,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.DashboardID, w.TenantID, w.EntityID, w.Type, w.Title, nullable(w.ConfigJSON), w.Position, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) UpdateWidget(ctx context.Context, w domain.Widget) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE widgets SET type=?, title=?, config_json=?, position=?, updated_at=? WHERE id=?`,
		w.Type, w.Title, nullable(w.ConfigJSON), w.Position, w.UpdatedAt, w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWidget(ctx context.Context, id string) (domain.Widget, error) {
	var w domain.Widget
	var cfg sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,dashboard_id,tenant_id,entity_id,type,title,config_json,position,created_at,updated_at FROM widgets WHERE id=?`, id).
		Scan(&w.ID, &w.DashboardID, &w.TenantID, &w.EntityID, &w.Type, &w.Title, &cfg, &w.Position, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if cfg.Valid {
		w.ConfigJSON = cfg.String
	}
	return w, err
}

func (r Repo) ListWidgets(ctx context.Context, dashboardID string) ([]domain.Widget, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,dashboard_id,tenant_id,entity_id,type,title,config_json,position,created_at,updated_at FROM widgets WHERE dashboard_id=? ORDER BY position ASC, created_at ASC`, dashboardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Widget
	for rows.Next() {
		var w domain.Widget
		var cfg sql.NullString
		if err := rows.Scan(&w.ID, &w.DashboardID, &w.TenantID, &w.EntityID, &w.Type, &w.Title, &cfg, &w.Position, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		if cfg.Valid {
			w.ConfigJSON = cfg.String
		}
		res = append(res, w)
	}
	return res, nil
}

func (r Repo) DeleteWidget(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM widgets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
