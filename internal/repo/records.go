package repo

import (
	"context"
	"database/sql"
	"strings"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

func (r Repo) InsertRecord(ctx context.Context, rec domain.Record) error {
	fields, err := rec.Fields.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO records(id,tenant_id,entity_id,fields_json,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.TenantID, rec.EntityID, string(fields), nullable(rec.CreatedBy), rec.CreatedAt, nullable(rec.UpdatedAt))
	return err
}

func (r Repo) UpdateRecordFields(ctx context.Context, id string, fields *value.Map, updatedAt string) error {
	payload, err := fields.MarshalJSON()
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE records SET fields_json=?, updated_at=? WHERE id=?`, string(payload), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(fieldsJSON string, createdBy, updatedAt sql.NullString, rec *domain.Record) error {
	fields, err := value.ParseFields([]byte(fieldsJSON))
	if err != nil {
		return err
	}
	rec.Fields = fields
	if createdBy.Valid {
		rec.CreatedBy = createdBy.String
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.String
	}
	return nil
}

func (r Repo) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	var rec domain.Record
	var fieldsJSON string
	var createdBy, updatedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,entity_id,fields_json,created_by,created_at,updated_at FROM records WHERE id=?`, id).
		Scan(&rec.ID, &rec.TenantID, &rec.EntityID, &fieldsJSON, &createdBy, &rec.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	return rec, scanRecord(fieldsJSON, createdBy, updatedAt, &rec)
}

type RecordFilters struct {
	TenantID        string
	EntityID        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRecords(ctx context.Context, f RecordFilters) ([]domain.Record, error) {
	clauses := []string{"tenant_id=?", "entity_id=?"}
	args := []any{f.TenantID, f.EntityID}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,tenant_id,entity_id,fields_json,created_by,created_at,updated_at FROM records ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Record
	for rows.Next() {
		var rec domain.Record
		var fieldsJSON string
		var createdBy, updatedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.EntityID, &fieldsJSON, &createdBy, &rec.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := scanRecord(fieldsJSON, createdBy, updatedAt, &rec); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

func (r Repo) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM records WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountRecords(ctx context.Context, tenantID, entityID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE tenant_id=? AND entity_id=?`, tenantID, entityID).Scan(&n)
	return n, err
}
