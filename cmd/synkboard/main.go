package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"synkboard/internal/app"
	"synkboard/internal/db"
	"synkboard/internal/domain"
	"synkboard/internal/logger"
	"synkboard/internal/migrate"
	"synkboard/internal/repo"
	"synkboard/internal/server"
	"synkboard/internal/value"
)

var rootCmd = &cobra.Command{
	Use:   "synkboard",
	Short: "SynkBoard CLI",
	Long: `SynkBoard ingests schema-less records into tenant-defined entities,
runs automation rules on every write, and serves dashboard widgets
computed from the stored fields.

- Entities: named record types whose fields are defined at runtime.
- Records: JSON field maps validated against the entity's field schema.
- Rules: condition lists plus actions (webhook, notify, tag, rate, slack)
  evaluated on record create/update; every evaluation is logged.
- Dashboards: widgets (kpi, bar, line, pie, table, list) aggregating
  records live, with KPI trend deltas against the previous period.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SYNKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (overrides the single-tenant default)")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(entityCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(widgetCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	cmd.AddCommand(tenantCreateCmd())
	cmd.AddCommand(tenantListCmd())
	cmd.AddCommand(tenantShowCmd())
	return cmd
}

func tenantCreateCmd() *cobra.Command {
	var name, slug string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, a app.App) error {
				t, err := a.CreateTenant(ctx, "", name, slug)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tenant name")
	cmd.Flags().StringVar(&slug, "slug", "", "tenant slug")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, a app.App) error {
				tenants, err := a.Repo.ListTenants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(tenants)
			})
		},
	}
}

func tenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active tenant and its config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				t, err := a.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"tenant": t, "config": a.Config})
			})
		},
	}
}

func entityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "entity", Short: "Manage entities and their fields"}
	cmd.AddCommand(entityCreateCmd())
	cmd.AddCommand(entityListCmd())
	cmd.AddCommand(entityShowCmd())
	cmd.AddCommand(entityFieldSetCmd())
	cmd.AddCommand(entityFieldRemoveCmd())
	return cmd
}

func entityCreateCmd() *cobra.Command {
	var name, slug, icon, color string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.CreateEntity(ctx, tenantID, name, slug, icon, color)
				if err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "entity name")
	cmd.Flags().StringVar(&slug, "slug", "", "entity slug")
	cmd.Flags().StringVar(&icon, "icon", "", "icon")
	cmd.Flags().StringVar(&color, "color", "", "color")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func entityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				entities, err := a.Repo.ListEntities(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entities)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Slug", "Active"})
				for _, e := range entities {
					tw.AppendRow(table.Row{e.ID, e.Name, e.Slug, e.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func entityShowCmd() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show entity with field schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, slug)
				if err != nil {
					return err
				}
				fields, err := a.Repo.EntityFields(ctx, tenantID, e.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"entity": e, "fields": fields})
			})
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "entity slug")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func entityFieldSetCmd() *cobra.Command {
	var slug, key, label, fieldType, options string
	var required, filterable, sortable bool
	var position int
	cmd := &cobra.Command{
		Use:   "field-set",
		Short: "Create or update an entity field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, slug)
				if err != nil {
					return err
				}
				var opts []string
				if options != "" {
					opts = strings.Split(options, ",")
				}
				f, err := a.SetEntityField(ctx, domain.EntityField{
					EntityID:     e.ID,
					Key:          key,
					Label:        label,
					Type:         domain.FieldType(fieldType),
					Options:      opts,
					IsRequired:   required,
					IsFilterable: filterable,
					IsSortable:   sortable,
					Position:     position,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&slug, "entity", "", "entity slug")
	cmd.Flags().StringVar(&key, "key", "", "field key")
	cmd.Flags().StringVar(&label, "label", "", "display label")
	cmd.Flags().StringVar(&fieldType, "type", "text", "field type (text|number|boolean|date|select|multiselect|rating|user|json)")
	cmd.Flags().StringVar(&options, "options", "", "comma-separated options for select/multiselect")
	cmd.Flags().BoolVar(&required, "required", false, "field is required")
	cmd.Flags().BoolVar(&filterable, "filterable", false, "field can be used in widget filters")
	cmd.Flags().BoolVar(&sortable, "sortable", false, "field can be used for grouping/sorting")
	cmd.Flags().IntVar(&position, "position", 0, "ordering position")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func entityFieldRemoveCmd() *cobra.Command {
	var slug, key string
	cmd := &cobra.Command{
		Use:   "field-rm",
		Short: "Remove an entity field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, slug)
				if err != nil {
					return err
				}
				return a.Repo.DeleteEntityField(ctx, e.ID, key)
			})
		},
	}
	cmd.Flags().StringVar(&slug, "entity", "", "entity slug")
	cmd.Flags().StringVar(&key, "key", "", "field key")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Ingest and inspect records"}
	cmd.AddCommand(recordIngestCmd())
	cmd.AddCommand(recordListCmd())
	cmd.AddCommand(recordShowCmd())
	cmd.AddCommand(recordDeleteCmd())
	return cmd
}

// parseFieldsArg reads record fields from an inline JSON object or,
// with @path, from a file. Key order in the JSON is kept.
func parseFieldsArg(arg string) (*value.Map, error) {
	if arg == "" {
		return nil, fmt.Errorf("--fields required (inline JSON or @file)")
	}
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	return value.ParseFields(data)
}

func recordIngestCmd() *cobra.Command {
	var entitySlug, fieldsArg string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Validate and store a record, then run rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				fields, err := parseFieldsArg(fieldsArg)
				if err != nil {
					return err
				}
				res, err := a.IngestRecord(ctx, app.IngestOptions{
					TenantID:   tenantID,
					EntitySlug: entitySlug,
					Fields:     fields,
					UserID:     viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&entitySlug, "entity", "", "entity slug")
	cmd.Flags().StringVar(&fieldsArg, "fields", "", "record fields as JSON object, or @file")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func recordListCmd() *cobra.Command {
	var entitySlug string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, entitySlug)
				if err != nil {
					return err
				}
				records, err := a.Repo.ListRecords(ctx, repo.RecordFilters{
					TenantID: tenantID,
					EntityID: e.ID,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Created", "By", "Fields"})
				for _, rec := range records {
					fieldsJSON, _ := json.Marshal(rec.Fields)
					tw.AppendRow(table.Row{rec.ID, rec.CreatedAt, rec.CreatedBy, string(fieldsJSON)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entitySlug, "entity", "", "entity slug")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func recordShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				rec, err := a.Repo.GetRecord(ctx, id)
				if err != nil {
					return err
				}
				if rec.TenantID != tenantID {
					return repo.ErrNotFound
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func recordDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				rec, err := a.Repo.GetRecord(ctx, id)
				if err != nil {
					return err
				}
				if rec.TenantID != tenantID {
					return repo.ErrNotFound
				}
				return a.Repo.DeleteRecord(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ruleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rule", Short: "Manage automation rules"}
	cmd.AddCommand(ruleCreateCmd())
	cmd.AddCommand(ruleListCmd())
	cmd.AddCommand(ruleShowCmd())
	cmd.AddCommand(ruleDeleteCmd())
	cmd.AddCommand(ruleTestCmd())
	return cmd
}

func ruleCreateCmd() *cobra.Command {
	var entitySlug, name, runOn, conditionsArg, actionsArg string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, entitySlug)
				if err != nil {
					return err
				}
				rule := domain.Rule{
					TenantID: tenantID,
					EntityID: e.ID,
					Name:     name,
					RunOn:    domain.TriggerOp(runOn),
					IsActive: true,
				}
				if conditionsArg != "" {
					if err := json.Unmarshal([]byte(conditionsArg), &rule.Conditions); err != nil {
						return fmt.Errorf("parse conditions: %w", err)
					}
				}
				if actionsArg != "" {
					actions, err := domain.DecodeActions(json.RawMessage(actionsArg))
					if err != nil {
						return fmt.Errorf("parse actions: %w", err)
					}
					rule.Actions = actions
				}
				created, err := a.CreateRule(ctx, rule)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&entitySlug, "entity", "", "entity slug")
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&runOn, "run-on", "both", "trigger (create|update|both)")
	cmd.Flags().StringVar(&conditionsArg, "conditions", "", "conditions as JSON array")
	cmd.Flags().StringVar(&actionsArg, "actions", "", "actions as JSON array")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func ruleListCmd() *cobra.Command {
	var entitySlug string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				entityID := ""
				if entitySlug != "" {
					e, err := a.Repo.GetEntityBySlug(ctx, tenantID, entitySlug)
					if err != nil {
						return err
					}
					entityID = e.ID
				}
				rules, err := a.Repo.ListRules(ctx, tenantID, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rules)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Run On", "Active", "Conditions", "Actions"})
				for _, r := range rules {
					tw.AppendRow(table.Row{r.ID, r.Name, r.RunOn, r.IsActive, len(r.Conditions), len(r.Actions)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entitySlug, "entity", "", "filter by entity slug")
	return cmd
}

func ruleShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				rule, err := a.Repo.GetRule(ctx, id)
				if err != nil {
					return err
				}
				if rule.TenantID != tenantID {
					return repo.ErrNotFound
				}
				return printJSONOrTable(rule)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ruleDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				rule, err := a.Repo.GetRule(ctx, id)
				if err != nil {
					return err
				}
				if rule.TenantID != tenantID {
					return repo.ErrNotFound
				}
				return a.Repo.DeleteRule(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ruleTestCmd() *cobra.Command {
	var id, fieldsArg string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run a rule's conditions against sample fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				rule, err := a.Repo.GetRule(ctx, id)
				if err != nil {
					return err
				}
				if rule.TenantID != tenantID {
					return repo.ErrNotFound
				}
				fields, err := parseFieldsArg(fieldsArg)
				if err != nil {
					return err
				}
				res, err := a.TestRule(ctx, id, fields)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rule id")
	cmd.Flags().StringVar(&fieldsArg, "fields", "", "sample fields as JSON object, or @file")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Rule execution log",
	}
	cmd.AddCommand(execTailCmd())
	return cmd
}

func execTailCmd() *cobra.Command {
	var ruleID, recordID, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent rule executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				execs, err := a.Repo.ListExecutions(ctx, repo.ExecutionFilters{
					TenantID: tenantID,
					RuleID:   ruleID,
					RecordID: recordID,
					Status:   status,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(execs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Rule", "Record", "Status", "Duration", "At"})
				for _, ex := range execs {
					tw.AppendRow(table.Row{ex.ID, ex.RuleID, ex.RecordID, ex.Status, fmt.Sprintf("%dms", ex.DurationMS), ex.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule", "", "filter by rule id")
	cmd.Flags().StringVar(&recordID, "record", "", "filter by record id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (matched|skipped|failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dashboard", Short: "Manage dashboards"}
	cmd.AddCommand(dashboardCreateCmd())
	cmd.AddCommand(dashboardListCmd())
	cmd.AddCommand(dashboardShowCmd())
	return cmd
}

func dashboardCreateCmd() *cobra.Command {
	var name, slug string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				d, err := a.CreateDashboard(ctx, tenantID, name, slug)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "dashboard name")
	cmd.Flags().StringVar(&slug, "slug", "", "dashboard slug")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func dashboardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dashboards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				dashboards, err := a.Repo.ListDashboards(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSONOrTable(dashboards)
			})
		},
	}
}

func dashboardShowCmd() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show dashboard with widgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				d, err := a.Repo.GetDashboardBySlug(ctx, tenantID, slug)
				if err != nil {
					return err
				}
				widgets, err := a.Repo.ListWidgets(ctx, d.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"dashboard": d, "widgets": widgets})
			})
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "dashboard slug")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func widgetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "widget", Short: "Manage dashboard widgets"}
	cmd.AddCommand(widgetCreateCmd())
	cmd.AddCommand(widgetDataCmd())
	cmd.AddCommand(widgetDeleteCmd())
	return cmd
}

func widgetCreateCmd() *cobra.Command {
	var dashboardSlug, entitySlug, widgetType, title, configArg string
	var position int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create widget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				d, err := a.Repo.GetDashboardBySlug(ctx, tenantID, dashboardSlug)
				if err != nil {
					return err
				}
				e, err := a.Repo.GetEntityBySlug(ctx, tenantID, entitySlug)
				if err != nil {
					return err
				}
				w, err := a.CreateWidget(ctx, domain.Widget{
					DashboardID: d.ID,
					TenantID:    tenantID,
					EntityID:    e.ID,
					Type:        domain.WidgetType(widgetType),
					Title:       title,
					ConfigJSON:  configArg,
					Position:    position,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&dashboardSlug, "dashboard", "", "dashboard slug")
	cmd.Flags().StringVar(&entitySlug, "entity", "", "entity slug")
	cmd.Flags().StringVar(&widgetType, "type", "", "widget type (kpi|bar|line|pie|table|list)")
	cmd.Flags().StringVar(&title, "title", "", "widget title")
	cmd.Flags().StringVar(&configArg, "config", "", "widget query config as JSON")
	cmd.Flags().IntVar(&position, "position", 0, "ordering position")
	_ = cmd.MarkFlagRequired("dashboard")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func widgetDataCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Run a widget's aggregation and print the data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				w, err := a.Repo.GetWidget(ctx, id)
				if err != nil {
					return err
				}
				if w.TenantID != tenantID {
					return repo.ErrNotFound
				}
				data, err := a.WidgetData(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(data)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "widget id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func widgetDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete widget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				w, err := a.Repo.GetWidget(ctx, id)
				if err != nil {
					return err
				}
				if w.TenantID != tenantID {
					return repo.ErrNotFound
				}
				return a.Repo.DeleteWidget(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "widget id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (plaintext printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				key, plaintext, err := a.NewAPIKey(ctx, tenantID, userID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"key": key, "plaintext": plaintext})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				keys, err := a.Repo.ListAPIKeys(ctx, tenantID, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				return a.Repo.DeleteAPIKey(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a app.App, tenantID string) error {
				authCfg := server.AuthConfig{
					JWTSecret:      os.Getenv("SYNKBOARD_JWT_SECRET"),
					EnableDevLogin: devLogin,
					Logger:         a.Log,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("SYNKBOARD_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving SynkBoard API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the unauthenticated dev token endpoint")
	return cmd
}

// withDB opens the workspace database and hands a config-less App to fn.
// Used by commands that run before any tenant exists.
func withDB(ctx context.Context, fn func(context.Context, app.App) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, app.New(conn, nil, logger.Setup(os.Stderr)))
}

// withApp resolves the active tenant and its stored config before
// handing a fully wired App to fn.
func withApp(ctx context.Context, fn func(context.Context, app.App, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	log := logger.Setup(os.Stderr)
	bootstrap := app.New(conn, nil, log)
	tenantID, cfg, err := app.ResolveTenantAndConfig(ctx, bootstrap, viper.GetString("tenant"))
	if err != nil {
		return err
	}
	return fn(ctx, app.New(conn, cfg, log), tenantID)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
