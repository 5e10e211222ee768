package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"synkboard/internal/db"
	"synkboard/internal/domain"
	"synkboard/internal/migrate"
	"synkboard/internal/repo"
	"synkboard/internal/value"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedTenant(t *testing.T, r repo.Repo, id, slug string) {
	t.Helper()
	err := r.InsertTenant(context.Background(), domain.Tenant{
		ID: id, Name: "Tenant " + id, Slug: slug, CreatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
}

func seedEntity(t *testing.T, r repo.Repo, tenantID, id, slug string) {
	t.Helper()
	err := r.InsertEntity(context.Background(), domain.Entity{
		ID: id, TenantID: tenantID, Name: "Entity " + id, Slug: slug, IsActive: true,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert entity: %v", err)
	}
}

func TestTenantLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")

	got, err := r.GetTenantBySlug(ctx, "acme")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if got.ID != "ten-1" {
		t.Fatalf("got tenant %s, want ten-1", got.ID)
	}

	single, err := r.SingleTenant(ctx)
	if err != nil {
		t.Fatalf("single tenant: %v", err)
	}
	if single.ID != "ten-1" {
		t.Fatalf("single tenant = %s, want ten-1", single.ID)
	}

	seedTenant(t, r, "ten-2", "globex")
	if _, err := r.SingleTenant(ctx); err == nil {
		t.Fatal("expected error with two tenants and no selector")
	}

	if err := r.DeleteTenant(ctx, "ten-2"); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	if _, err := r.GetTenant(ctx, "ten-2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get deleted tenant: err = %v, want ErrNotFound", err)
	}
	if err := r.DeleteTenant(ctx, "ten-2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestUserLookupByEmail(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedTenant(t, r, "ten-2", "globex")

	err := r.InsertUser(ctx, domain.User{
		ID: "user-1", TenantID: "ten-1", Name: "Sam", Email: "sam@acme.test",
		Role: "admin", CreatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	u, err := r.GetUserByEmail(ctx, "ten-1", "sam@acme.test")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u.Role != "admin" {
		t.Fatalf("role = %s, want admin", u.Role)
	}

	// Email lookup is tenant scoped.
	if _, err := r.GetUserByEmail(ctx, "ten-2", "sam@acme.test"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-tenant lookup: err = %v, want ErrNotFound", err)
	}
}

func TestEntityPartialUpdate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")

	ent := domain.Entity{
		ID: "ent-1", TenantID: "ten-1", Name: "Leads", Slug: "leads",
		Icon: "chart", Color: "#00f", IsActive: true,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := r.InsertEntity(ctx, ent); err != nil {
		t.Fatalf("insert entity: %v", err)
	}

	name := "Sales Leads"
	if err := r.UpdateEntity(ctx, "ent-1", &name, nil, nil, nil, "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("update entity: %v", err)
	}

	got, err := r.GetEntityBySlug(ctx, "ten-1", "leads")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if got.Name != "Sales Leads" {
		t.Fatalf("name = %q, want Sales Leads", got.Name)
	}
	if got.Icon != "chart" || got.Color != "#00f" {
		t.Fatalf("untouched columns changed: icon=%q color=%q", got.Icon, got.Color)
	}
	if got.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Fatalf("updated_at = %s", got.UpdatedAt)
	}

	if err := r.UpdateEntity(ctx, "missing", &name, nil, nil, nil, "2024-01-02T00:00:00Z"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update missing entity: err = %v, want ErrNotFound", err)
	}
}

func TestEntityFieldsUpsertAndOrdering(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedEntity(t, r, "ten-1", "ent-1", "leads")

	fields := []domain.EntityField{
		{ID: "fld-2", EntityID: "ent-1", Key: "stage", Type: domain.FieldSelect,
			Options: []string{"new", "won", "lost"}, IsFilterable: true, Position: 2},
		{ID: "fld-1", EntityID: "ent-1", Key: "amount", Type: domain.FieldNumber,
			IsFilterable: true, IsSortable: true, Position: 1},
	}
	for _, f := range fields {
		if err := r.UpsertEntityField(ctx, f); err != nil {
			t.Fatalf("upsert field %s: %v", f.Key, err)
		}
	}

	// Re-upserting the same key updates in place instead of duplicating.
	if err := r.UpsertEntityField(ctx, domain.EntityField{
		ID: "fld-2b", EntityID: "ent-1", Key: "stage", Label: "Deal Stage",
		Type: domain.FieldSelect, Options: []string{"new", "won"}, Position: 2,
	}); err != nil {
		t.Fatalf("re-upsert field: %v", err)
	}

	got, err := r.EntityFields(ctx, "ten-1", "ent-1")
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d fields, want 2", len(got))
	}
	if got[0].Key != "amount" || got[1].Key != "stage" {
		t.Fatalf("field order = [%s %s], want [amount stage]", got[0].Key, got[1].Key)
	}
	if got[1].Label != "Deal Stage" || len(got[1].Options) != 2 {
		t.Fatalf("upsert did not replace stage: label=%q options=%v", got[1].Label, got[1].Options)
	}

	// Tenant scope flows through the entity join.
	other, err := r.EntityFields(ctx, "ten-other", "ent-1")
	if err != nil {
		t.Fatalf("scoped list: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("fields leaked across tenants: %d", len(other))
	}

	if err := r.DeleteEntityField(ctx, "ent-1", "amount"); err != nil {
		t.Fatalf("delete field: %v", err)
	}
	if err := r.DeleteEntityField(ctx, "ent-1", "amount"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete missing field: err = %v, want ErrNotFound", err)
	}
}

func seedRecord(t *testing.T, r repo.Repo, id, createdAt string, fields *value.Map) {
	t.Helper()
	err := r.InsertRecord(context.Background(), domain.Record{
		ID: id, TenantID: "ten-1", EntityID: "ent-1", Fields: fields, CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert record %s: %v", id, err)
	}
}

func TestRecordRoundTripKeepsFieldOrder(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedEntity(t, r, "ten-1", "ent-1", "leads")

	seedRecord(t, r, "rec-1", "2024-01-01T10:00:00Z",
		value.MapOf("zulu", 1, "alpha", "two", "mike", true))

	got, err := r.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	keys := got.Fields.Keys()
	if fmt.Sprint(keys) != "[zulu alpha mike]" {
		t.Fatalf("field order = %v, want [zulu alpha mike]", keys)
	}

	if err := r.UpdateRecordFields(ctx, "rec-1", value.MapOf("alpha", "three"), "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("update fields: %v", err)
	}
	got, err = r.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Fatalf("updated_at = %s", got.UpdatedAt)
	}
	if v, _ := got.Fields.Get("alpha"); v.AsString() != "three" {
		t.Fatalf("alpha = %s, want three", v.AsString())
	}
}

func TestListRecordsCursorPagination(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedEntity(t, r, "ten-1", "ent-1", "leads")

	// rec-3b shares a timestamp with rec-3; the id breaks the tie.
	seedRecord(t, r, "rec-1", "2024-01-01T10:00:00Z", value.MapOf("n", 1))
	seedRecord(t, r, "rec-2", "2024-01-02T10:00:00Z", value.MapOf("n", 2))
	seedRecord(t, r, "rec-3", "2024-01-03T10:00:00Z", value.MapOf("n", 3))
	seedRecord(t, r, "rec-3b", "2024-01-03T10:00:00Z", value.MapOf("n", 4))

	page1, err := r.ListRecords(ctx, repo.RecordFilters{TenantID: "ten-1", EntityID: "ent-1", Limit: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "rec-3b" || page1[1].ID != "rec-3" {
		t.Fatalf("page 1 = %v", recordIDs(page1))
	}

	last := page1[len(page1)-1]
	page2, err := r.ListRecords(ctx, repo.RecordFilters{
		TenantID: "ten-1", EntityID: "ent-1", Limit: 2,
		CursorCreatedAt: last.CreatedAt, CursorID: last.ID,
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 2 || page2[0].ID != "rec-2" || page2[1].ID != "rec-1" {
		t.Fatalf("page 2 = %v", recordIDs(page2))
	}

	if err := r.DeleteRecord(ctx, "rec-1"); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	n, err := r.CountRecords(ctx, "ten-1", "ent-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func recordIDs(recs []domain.Record) []string {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids
}

func TestRuleRoundTripAndActiveOrdering(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedEntity(t, r, "ten-1", "ent-1", "leads")

	rule := domain.Rule{
		ID: "rule-2", TenantID: "ten-1", EntityID: "ent-1", Name: "big deals",
		RunOn: domain.TriggerCreate, IsActive: true,
		Conditions: []domain.Condition{
			{Field: "amount", Operator: domain.OpGreaterThan, Value: value.Number(1000)},
		},
		Actions: domain.Actions{
			domain.WebhookAction{URL: "https://hooks.test/deal"},
			domain.NotifyAction{Message: "big deal", Level: "info"},
		},
		CreatedAt: "2024-01-02T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z",
	}
	if err := r.InsertRule(ctx, rule); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	got, err := r.GetRule(ctx, "rule-2")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Operator != domain.OpGreaterThan {
		t.Fatalf("conditions did not round-trip: %+v", got.Conditions)
	}
	if n, ok := got.Conditions[0].Value.AsNumber(); !ok || n != 1000 {
		t.Fatalf("condition value = %v", got.Conditions[0].Value)
	}
	if len(got.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(got.Actions))
	}
	if _, ok := got.Actions[0].(domain.WebhookAction); !ok {
		t.Fatalf("action 0 decoded as %T, want WebhookAction", got.Actions[0])
	}
	if notify, ok := got.Actions[1].(domain.NotifyAction); !ok || notify.Message != "big deal" {
		t.Fatalf("action 1 = %#v", got.Actions[1])
	}

	older := rule
	older.ID, older.Name = "rule-1", "older"
	older.CreatedAt = "2024-01-01T00:00:00Z"
	if err := r.InsertRule(ctx, older); err != nil {
		t.Fatalf("insert older rule: %v", err)
	}
	inactive := rule
	inactive.ID, inactive.Name, inactive.IsActive = "rule-3", "paused", false
	if err := r.InsertRule(ctx, inactive); err != nil {
		t.Fatalf("insert inactive rule: %v", err)
	}

	active, err := r.ActiveRules(ctx, "ten-1", "ent-1")
	if err != nil {
		t.Fatalf("active rules: %v", err)
	}
	if len(active) != 2 || active[0].ID != "rule-1" || active[1].ID != "rule-2" {
		t.Fatalf("active rules order wrong: %v", ruleIDs(active))
	}

	got.IsActive = false
	got.Name = "renamed"
	got.UpdatedAt = "2024-01-03T00:00:00Z"
	if err := r.UpdateRule(ctx, got); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	active, err = r.ActiveRules(ctx, "ten-1", "ent-1")
	if err != nil {
		t.Fatalf("active rules after update: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("deactivated rule still listed: %v", ruleIDs(active))
	}

	if err := r.DeleteRule(ctx, "rule-3"); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if err := r.DeleteRule(ctx, "rule-3"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete missing rule: err = %v, want ErrNotFound", err)
	}
}

func ruleIDs(rules []domain.Rule) []string {
	ids := make([]string, len(rules))
	for i, rule := range rules {
		ids[i] = rule.ID
	}
	return ids
}

func TestExecutionLogFiltersAndCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")

	rows := []domain.RuleExecution{
		{TenantID: "ten-1", RuleID: "rule-1", RecordID: "rec-1", Status: domain.ExecutionMatched, DurationMS: 12, Output: `{"matched":true}`},
		{TenantID: "ten-1", RuleID: "rule-1", RecordID: "rec-2", Status: domain.ExecutionSkipped},
		{TenantID: "ten-1", RuleID: "rule-2", RecordID: "rec-1", Status: domain.ExecutionFailed, Output: `{"error":"boom"}`},
	}
	for i, e := range rows {
		e.CreatedAt = fmt.Sprintf("2024-01-01T10:0%d:00Z", i)
		if err := r.RecordExecution(ctx, e); err != nil {
			t.Fatalf("record execution %d: %v", i, err)
		}
	}

	all, err := r.ListExecutions(ctx, repo.ExecutionFilters{TenantID: "ten-1"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].RuleID != "rule-2" {
		t.Fatalf("list all: got %d rows, newest = %s", len(all), all[0].RuleID)
	}

	matched, err := r.ListExecutions(ctx, repo.ExecutionFilters{TenantID: "ten-1", Status: "matched"})
	if err != nil {
		t.Fatalf("list matched: %v", err)
	}
	if len(matched) != 1 || matched[0].Output != `{"matched":true}` {
		t.Fatalf("matched filter: %+v", matched)
	}

	byRecord, err := r.ListExecutions(ctx, repo.ExecutionFilters{TenantID: "ten-1", RecordID: "rec-1"})
	if err != nil {
		t.Fatalf("list by record: %v", err)
	}
	if len(byRecord) != 2 {
		t.Fatalf("record filter: got %d rows, want 2", len(byRecord))
	}

	// Cursor pages strictly backwards by row id.
	next, err := r.ListExecutions(ctx, repo.ExecutionFilters{TenantID: "ten-1", CursorID: all[0].ID, Limit: 1})
	if err != nil {
		t.Fatalf("list cursor: %v", err)
	}
	if len(next) != 1 || next[0].ID >= all[0].ID {
		t.Fatalf("cursor page: %+v", next)
	}
}

func TestAPIKeyHashLookup(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")

	plaintext := "sk_live_abc123"
	err := r.InsertAPIKey(ctx, domain.APIKey{
		ID: "key-1", TenantID: "ten-1", UserID: "user-1", Name: "ci",
		KeyHash: repo.HashAPIKey(plaintext),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plaintext))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.UserID != "user-1" || got.Name != "ci" {
		t.Fatalf("key = %+v", got)
	}

	// Hashing trims, so a pasted key with whitespace still resolves.
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("  "+plaintext+"\n")); err != nil {
		t.Fatalf("trimmed lookup: %v", err)
	}

	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("bad key: err = %v, want ErrNotFound", err)
	}

	keys, err := r.ListAPIKeys(ctx, "ten-1", "user-1")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	keys, err = r.ListAPIKeys(ctx, "ten-1", "user-other")
	if err != nil {
		t.Fatalf("list keys other user: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("user filter leaked %d keys", len(keys))
	}

	if err := r.DeleteAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plaintext)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted key still resolves: %v", err)
	}
}

func TestDashboardWidgetsOrderedByPosition(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedTenant(t, r, "ten-1", "acme")
	seedEntity(t, r, "ten-1", "ent-1", "leads")

	dash := domain.Dashboard{
		ID: "dash-1", TenantID: "ten-1", Name: "Sales", Slug: "sales",
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := r.InsertDashboard(ctx, dash); err != nil {
		t.Fatalf("insert dashboard: %v", err)
	}
	if _, err := r.GetDashboardBySlug(ctx, "ten-1", "sales"); err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if _, err := r.GetDashboardBySlug(ctx, "ten-other", "sales"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-tenant slug lookup: err = %v, want ErrNotFound", err)
	}

	for i, id := range []string{"wid-b", "wid-a"} {
		err := r.InsertWidget(ctx, domain.Widget{
			ID: id, DashboardID: "dash-1", TenantID: "ten-1", EntityID: "ent-1",
			Type: domain.WidgetKPI, Title: id, Position: 2 - i,
			CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
		})
		if err != nil {
			t.Fatalf("insert widget %s: %v", id, err)
		}
	}

	widgets, err := r.ListWidgets(ctx, "dash-1")
	if err != nil {
		t.Fatalf("list widgets: %v", err)
	}
	if len(widgets) != 2 || widgets[0].ID != "wid-a" || widgets[1].ID != "wid-b" {
		t.Fatalf("widget order wrong: %+v", widgets)
	}

	w := widgets[0]
	w.Title = "Revenue"
	w.ConfigJSON = `{"metric_type":"sum","target_field":"amount"}`
	if err := r.UpdateWidget(ctx, w); err != nil {
		t.Fatalf("update widget: %v", err)
	}
	got, err := r.GetWidget(ctx, "wid-a")
	if err != nil {
		t.Fatalf("get widget: %v", err)
	}
	if got.Title != "Revenue" || got.ConfigJSON == "" {
		t.Fatalf("widget update lost: %+v", got)
	}

	// Deleting the dashboard cascades to its widgets.
	if err := r.DeleteDashboard(ctx, "dash-1"); err != nil {
		t.Fatalf("delete dashboard: %v", err)
	}
	if _, err := r.GetWidget(ctx, "wid-a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("widget survived cascade: err = %v", err)
	}
}
