package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models synkboard.yml. One config exists per tenant and is
// stored in the database; the file form is used for import/export.
type Config struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		Slug string `yaml:"slug"`
	} `yaml:"tenant"`
	Rules struct {
		WebhookTimeoutMS int `yaml:"webhook_timeout_ms"`
		MaxConditions    int `yaml:"max_conditions"`
		MaxActions       int `yaml:"max_actions"`
	} `yaml:"rules"`
	Dashboards struct {
		GroupLimit int `yaml:"group_limit"`
		PageSize   int `yaml:"page_size"`
		ListLimit  int `yaml:"list_limit"`
	} `yaml:"dashboards"`
	Ingest struct {
		MaxFields      int `yaml:"max_fields"`
		MaxPayloadKB   int `yaml:"max_payload_kb"`
		TrendPeriodDay int `yaml:"trend_period_days"`
	} `yaml:"ingest"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with synkboard tenant config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if c.Tenant.Slug == "" {
		return fmt.Errorf("config.tenant.slug is required")
	}
	if c.Rules.WebhookTimeoutMS <= 0 {
		return fmt.Errorf("config.rules.webhook_timeout_ms must be positive")
	}
	if c.Rules.MaxConditions <= 0 {
		return fmt.Errorf("config.rules.max_conditions must be positive")
	}
	if c.Rules.MaxActions <= 0 {
		return fmt.Errorf("config.rules.max_actions must be positive")
	}
	if c.Dashboards.GroupLimit <= 0 {
		return fmt.Errorf("config.dashboards.group_limit must be positive")
	}
	if c.Dashboards.PageSize <= 0 {
		return fmt.Errorf("config.dashboards.page_size must be positive")
	}
	if c.Dashboards.ListLimit <= 0 {
		return fmt.Errorf("config.dashboards.list_limit must be positive")
	}
	if c.Ingest.MaxFields <= 0 {
		return fmt.Errorf("config.ingest.max_fields must be positive")
	}
	if c.Ingest.MaxPayloadKB <= 0 {
		return fmt.Errorf("config.ingest.max_payload_kb must be positive")
	}
	if c.Ingest.TrendPeriodDay <= 0 {
		return fmt.Errorf("config.ingest.trend_period_days must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "synkboard.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID, slug string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, tenantID, slug, slug))).Decode(&cfg)
	cfg.Tenant.ID = tenantID
	cfg.Tenant.Slug = slug
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `tenant:
  id: %s
  name: %s
  slug: %s

rules:
  webhook_timeout_ms: 10000
  max_conditions: 20
  max_actions: 10

dashboards:
  group_limit: 10
  page_size: 20
  list_limit: 10

ingest:
  max_fields: 100
  max_payload_kb: 256
  trend_period_days: 7
`
