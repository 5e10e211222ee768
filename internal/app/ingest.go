package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"synkboard/internal/config"
	"synkboard/internal/domain"
	"synkboard/internal/rules"
	"synkboard/internal/value"
)

// FieldError reports one rejected ingest field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IngestOptions describe one record create or update.
type IngestOptions struct {
	TenantID   string
	EntitySlug string
	RecordID   string // set for updates
	Fields     *value.Map
	UserID     string
}

// IngestResult is what the ingesting caller gets back: the record and a
// triggered-rule count, never per-rule errors.
type IngestResult struct {
	Record    domain.Record `json:"record"`
	Triggered int           `json:"rules_triggered"`
}

// IngestRecord validates and persists a record, then evaluates the
// entity's active rules. The write commits before evaluation starts and
// is never rolled back by rule or action failures.
func (a App) IngestRecord(ctx context.Context, opts IngestOptions) (IngestResult, error) {
	entity, err := a.Repo.GetEntityBySlug(ctx, opts.TenantID, opts.EntitySlug)
	if err != nil {
		return IngestResult{}, fmt.Errorf("entity %q: %w", opts.EntitySlug, err)
	}
	if !entity.IsActive {
		return IngestResult{}, fmt.Errorf("entity %q is inactive", opts.EntitySlug)
	}

	meta, err := a.Repo.EntityFields(ctx, opts.TenantID, entity.ID)
	if err != nil {
		return IngestResult{}, err
	}
	fields, err := ValidateFields(opts.Fields, meta, a.maxFields())
	if err != nil {
		return IngestResult{}, err
	}

	op := domain.TriggerCreate
	now := a.nowRFC3339()
	rec := domain.Record{
		ID:        opts.RecordID,
		TenantID:  opts.TenantID,
		EntityID:  entity.ID,
		Fields:    fields,
		CreatedBy: opts.UserID,
		CreatedAt: now,
	}
	if opts.RecordID == "" {
		rec.ID = uuid.NewString()
		if err := a.Repo.InsertRecord(ctx, rec); err != nil {
			return IngestResult{}, fmt.Errorf("insert record: %w", err)
		}
	} else {
		op = domain.TriggerUpdate
		existing, err := a.Repo.GetRecord(ctx, opts.RecordID)
		if err != nil {
			return IngestResult{}, err
		}
		if existing.TenantID != opts.TenantID || existing.EntityID != entity.ID {
			return IngestResult{}, errors.New("record does not belong to this entity")
		}
		if err := a.Repo.UpdateRecordFields(ctx, opts.RecordID, fields, now); err != nil {
			return IngestResult{}, fmt.Errorf("update record: %w", err)
		}
		rec.CreatedBy = existing.CreatedBy
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = now
	}

	triggered := a.evaluateRules(ctx, entity, rec, opts.UserID, op)
	return IngestResult{Record: rec, Triggered: triggered}, nil
}

// evaluateRules runs the rule engine for a committed record write.
// Failures are logged, never returned: the write already happened.
func (a App) evaluateRules(ctx context.Context, entity domain.Entity, rec domain.Record, userID string, op domain.TriggerOp) int {
	ec := rules.Context{Record: rec, Entity: entity}
	if t, err := a.Repo.GetTenant(ctx, rec.TenantID); err == nil {
		ec.Tenant = t
	} else {
		a.Log.Warn("tenant lookup for rule context", "tenant_id", rec.TenantID, "error", err)
		ec.Tenant = domain.Tenant{ID: rec.TenantID}
	}
	if userID != "" {
		if u, err := a.Repo.GetUser(ctx, userID); err == nil {
			ec.User = u
		}
	}

	batch, err := a.Engine.EvaluateRecord(ctx, ec, op)
	if err != nil {
		a.Log.Error("rule evaluation", "record_id", rec.ID, "error", err)
		return 0
	}
	return batch.Triggered
}

func (a App) maxFields() int {
	if a.Config != nil && a.Config.Ingest.MaxFields > 0 {
		return a.Config.Ingest.MaxFields
	}
	return 100
}

// ValidateFields checks an ingest payload against the entity's runtime
// schema and returns the coerced field map. Unknown keys and type
// mismatches are rejected; numeric strings coerce to numbers.
func ValidateFields(fields *value.Map, meta []domain.EntityField, maxFields int) (*value.Map, error) {
	if fields == nil {
		fields = value.NewMap()
	}
	if fields.Len() > maxFields {
		return nil, fmt.Errorf("too many fields: %d > %d", fields.Len(), maxFields)
	}

	byKey := make(map[string]domain.EntityField, len(meta))
	for _, f := range meta {
		byKey[f.Key] = f
	}

	out := value.NewMap()
	var err error
	fields.Range(func(key string, v value.Value) bool {
		f, ok := byKey[key]
		if !ok {
			err = fieldErr(key, "not defined on this entity")
			return false
		}
		coerced, cerr := coerceField(f, v)
		if cerr != nil {
			err = cerr
			return false
		}
		out.Set(key, coerced)
		return true
	})
	if err != nil {
		return nil, err
	}

	for _, f := range meta {
		if !f.IsRequired {
			continue
		}
		v, ok := out.Get(f.Key)
		if !ok || v.IsNull() {
			return nil, fieldErr(f.Key, "is required")
		}
	}
	return out, nil
}

func coerceField(f domain.EntityField, v value.Value) (value.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch f.Type {
	case domain.FieldNumber, domain.FieldRating:
		n, ok := v.AsNumber()
		if !ok {
			return v, fieldErr(f.Key, "expected a number, got %q", v.AsString())
		}
		return value.Number(n), nil
	case domain.FieldBoolean:
		if v.Kind() != value.KindBool {
			return v, fieldErr(f.Key, "expected a boolean")
		}
		return v, nil
	case domain.FieldDate:
		s := v.AsString()
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return v, fieldErr(f.Key, "expected an RFC 3339 date, got %q", s)
			}
		}
		return value.String(s), nil
	case domain.FieldSelect:
		s := v.AsString()
		if !optionAllowed(f.Options, s) {
			return v, fieldErr(f.Key, "value %q is not an allowed option", s)
		}
		return value.String(s), nil
	case domain.FieldMultiSelect:
		if v.Kind() != value.KindArray {
			return v, fieldErr(f.Key, "expected an array of options")
		}
		for _, item := range v.Items() {
			if !optionAllowed(f.Options, item.AsString()) {
				return v, fieldErr(f.Key, "value %q is not an allowed option", item.AsString())
			}
		}
		return v, nil
	case domain.FieldText, domain.FieldUser:
		if v.Kind() == value.KindArray || v.Kind() == value.KindObject {
			return v, fieldErr(f.Key, "expected a scalar value")
		}
		return value.String(v.AsString()), nil
	case domain.FieldJSON:
		return v, nil
	}
	return v, fieldErr(f.Key, "unknown field type %q", f.Type)
}

func optionAllowed(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func configJSON(cfg *config.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

func decodeWidgetConfig(raw string, spec any) error {
	return json.Unmarshal([]byte(raw), spec)
}
