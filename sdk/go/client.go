package synkboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SynkBoard HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	TenantSlug  string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID, tenantSlug string) *Client {
	return &Client{
		BaseURL:    baseURL,
		TenantID:   tenantID,
		TenantSlug: tenantSlug,
		Timeout:    10 * time.Second,
	}
}

// IngestResult is the API's answer to an ingest call.
type IngestResult struct {
	RecordID       string `json:"record_id"`
	RulesTriggered int    `json:"rules_triggered"`
}

// Record represents a stored record. Fields come back as raw JSON so
// the submitted key order is visible to the caller.
type Record struct {
	ID        string          `json:"id"`
	EntityID  string          `json:"entity_id"`
	Fields    json.RawMessage `json:"fields"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// RuleExecution is one entry of the execution log.
type RuleExecution struct {
	ID         int64  `json:"id"`
	RuleID     string `json:"rule_id"`
	RecordID   string `json:"record_id"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// WidgetData is a widget's computed payload, raw because its shape
// depends on the widget type.
type WidgetData struct {
	Widget json.RawMessage `json:"widget"`
	Data   json.RawMessage `json:"data"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Ingest submits record fields to an entity. fields may be any
// JSON-marshalable object; use json.RawMessage to control key order.
func (c *Client) Ingest(ctx context.Context, entitySlug string, fields any) (IngestResult, error) {
	var resp IngestResult
	endpoint := fmt.Sprintf("v1/ingest/%s/%s", url.PathEscape(c.TenantSlug), url.PathEscape(entitySlug))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"fields": fields}, &resp)
	return resp, err
}

// UpdateRecord replaces a record's fields and re-runs rules.
func (c *Client) UpdateRecord(ctx context.Context, entitySlug, recordID string, fields any) (IngestResult, error) {
	var resp IngestResult
	endpoint := c.tenantPath(fmt.Sprintf("entities/%s/records/%s", url.PathEscape(entitySlug), url.PathEscape(recordID)))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"fields": fields}, &resp)
	return resp, err
}

// Records lists an entity's records, newest first.
func (c *Client) Records(ctx context.Context, entitySlug string, limit int) ([]Record, error) {
	endpoint := c.tenantPath(fmt.Sprintf("entities/%s/records", url.PathEscape(entitySlug)))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Record
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Executions lists rule execution log entries, optionally filtered by rule.
func (c *Client) Executions(ctx context.Context, ruleID string, limit int) ([]RuleExecution, error) {
	endpoint := c.tenantPath("rule-executions")
	params := url.Values{}
	if ruleID != "" {
		params.Set("rule_id", ruleID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []RuleExecution
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WidgetData runs a widget's aggregation and returns the result.
func (c *Client) WidgetData(ctx context.Context, widgetID string) (WidgetData, error) {
	var resp WidgetData
	endpoint := c.tenantPath(fmt.Sprintf("widgets/%s/data", url.PathEscape(widgetID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v1/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
