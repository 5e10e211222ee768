package server

import (
	"synkboard/internal/analytics"
	"synkboard/internal/domain"
	"synkboard/internal/value"
)

// Request payloads

type CreateTenantRequest struct {
	Name string `json:"name,omitempty"`
	Slug string `json:"slug"`
}

type CreateUserRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty" enum:"admin,editor,viewer"`
}

type CreateEntityRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

type UpdateEntityRequest struct {
	Name     *string `json:"name,omitempty"`
	Icon     *string `json:"icon,omitempty"`
	Color    *string `json:"color,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type SetFieldRequest struct {
	Key          string   `json:"key"`
	Label        string   `json:"label,omitempty"`
	Type         string   `json:"type" enum:"text,number,boolean,date,select,multiselect,rating,user,json"`
	Options      []string `json:"options,omitempty"`
	IsRequired   bool     `json:"is_required,omitempty"`
	IsFilterable bool     `json:"is_filterable,omitempty"`
	IsSortable   bool     `json:"is_sortable,omitempty"`
	Position     int      `json:"position,omitempty"`
}

// IngestRequest is decoded from the raw body so field order survives
// into the stored record.
type IngestRequest struct {
	Fields *value.Map `json:"fields"`
}

type CreateRuleRequest struct {
	EntityID   string             `json:"entity_id"`
	Name       string             `json:"name"`
	RunOn      string             `json:"run_on,omitempty" enum:"create,update,both"`
	IsActive   *bool              `json:"is_active,omitempty"`
	Conditions []domain.Condition `json:"conditions,omitempty"`
	Actions    domain.Actions     `json:"actions,omitempty"`
}

type UpdateRuleRequest struct {
	Name       *string             `json:"name,omitempty"`
	RunOn      *string             `json:"run_on,omitempty" enum:"create,update,both"`
	IsActive   *bool               `json:"is_active,omitempty"`
	Conditions *[]domain.Condition `json:"conditions,omitempty"`
	Actions    *domain.Actions     `json:"actions,omitempty"`
}

type TestRuleRequest struct {
	Fields *value.Map `json:"fields"`
}

type PreviewRequest struct {
	Conditions []domain.Condition `json:"conditions"`
	Fields     *value.Map         `json:"fields"`
}

type CreateDashboardRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CreateWidgetRequest struct {
	EntityID string `json:"entity_id"`
	Type     string `json:"type" enum:"kpi,bar,line,pie,table,list"`
	Title    string `json:"title"`
	Config   string `json:"config,omitempty"`
	Position int    `json:"position,omitempty"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Response payloads

type IngestResponse struct {
	RecordID       string `json:"record_id"`
	RulesTriggered int    `json:"rules_triggered"`
}

type RecordResponse struct {
	ID        string     `json:"id"`
	EntityID  string     `json:"entity_id"`
	Fields    *value.Map `json:"fields"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

type APIKeyResponse struct {
	Key       domain.APIKey `json:"key"`
	Plaintext string        `json:"plaintext"`
}

type WidgetDataResponse struct {
	Widget domain.Widget         `json:"widget"`
	Data   *analytics.WidgetData `json:"data"`
}

func recordResponse(rec domain.Record) RecordResponse {
	return RecordResponse{
		ID:        rec.ID,
		EntityID:  rec.EntityID,
		Fields:    rec.Fields,
		CreatedBy: rec.CreatedBy,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
