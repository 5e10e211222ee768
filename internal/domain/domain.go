package domain

import "synkboard/internal/value"

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,editor,viewer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Entity is a tenant-defined record type with a runtime field schema.
type Entity struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldRating      FieldType = "rating"
	FieldUser        FieldType = "user"
	FieldJSON        FieldType = "json"
)

// EntityField is the allow-list entry every dynamic query consults.
type EntityField struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entity_id"`
	Key          string    `json:"key"`
	Label        string    `json:"label,omitempty"`
	Type         FieldType `json:"type" enum:"text,number,boolean,date,select,multiselect,rating,user,json"`
	Options      []string  `json:"options,omitempty"`
	IsRequired   bool      `json:"is_required"`
	IsFilterable bool      `json:"is_filterable"`
	IsSortable   bool      `json:"is_sortable"`
	Position     int       `json:"position"`
}

// Record is an immutable snapshot once handed to the rule engine; the
// field map preserves ingestion order.
type Record struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	EntityID  string     `json:"entity_id"`
	Fields    *value.Map `json:"fields"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt string     `json:"created_at" format:"date-time"`
	UpdatedAt string     `json:"updated_at,omitempty" format:"date-time"`
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpGreaterEq   Operator = "gte"
	OpLessEq      Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpChanged     Operator = "changed"
)

type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator" enum:"equals,not_equals,gt,lt,gte,lte,contains,not_contains,in,not_in,is_empty,is_not_empty,changed"`
	Value    value.Value `json:"value,omitempty"`
}

type TriggerOp string

const (
	TriggerCreate TriggerOp = "create"
	TriggerUpdate TriggerOp = "update"
	TriggerBoth   TriggerOp = "both"
)

// Matches reports whether a rule configured with t fires for op.
func (t TriggerOp) Matches(op TriggerOp) bool {
	return t == TriggerBoth || t == op
}

type Rule struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	EntityID   string      `json:"entity_id"`
	Name       string      `json:"name"`
	RunOn      TriggerOp   `json:"run_on" enum:"create,update,both"`
	IsActive   bool        `json:"is_active"`
	Conditions []Condition `json:"conditions"`
	Actions    Actions     `json:"actions"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
	UpdatedAt  string      `json:"updated_at" format:"date-time"`
}

type ExecutionStatus string

const (
	ExecutionMatched ExecutionStatus = "matched"
	ExecutionSkipped ExecutionStatus = "skipped"
	ExecutionFailed  ExecutionStatus = "failed"
)

// RuleExecution is one audit row per (rule, record, operation) event.
type RuleExecution struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenant_id"`
	RuleID     string          `json:"rule_id"`
	RecordID   string          `json:"record_id"`
	Status     ExecutionStatus `json:"status" enum:"matched,skipped,failed"`
	DurationMS int64           `json:"duration_ms"`
	Output     string          `json:"output,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

type Dashboard struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type WidgetType string

const (
	WidgetKPI   WidgetType = "kpi"
	WidgetBar   WidgetType = "bar"
	WidgetLine  WidgetType = "line"
	WidgetPie   WidgetType = "pie"
	WidgetTable WidgetType = "table"
	WidgetList  WidgetType = "list"
)

// Widget stores its query configuration as JSON; the aggregation planner
// validates it against entity metadata before anything touches storage.
type Widget struct {
	ID          string     `json:"id"`
	DashboardID string     `json:"dashboard_id"`
	TenantID    string     `json:"tenant_id"`
	EntityID    string     `json:"entity_id"`
	Type        WidgetType `json:"type" enum:"kpi,bar,line,pie,table,list"`
	Title       string     `json:"title"`
	ConfigJSON  string     `json:"config_json,omitempty"`
	Position    int        `json:"position"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
