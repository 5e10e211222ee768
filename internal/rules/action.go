package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"synkboard/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// maxResponseBody bounds how much of a webhook response is kept in the
// execution output.
const maxResponseBody = 4 << 10

// ActionResult is the uniform per-action outcome aggregated into a
// rule's evaluation output.
type ActionResult struct {
	ActionType domain.ActionType `json:"action_type"`
	Success    bool              `json:"success"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Output     map[string]any    `json:"output,omitempty"`
}

// Notifier delivers notify-action intents. The engine itself only
// records the intent; delivery is a collaborator concern.
type Notifier interface {
	Notify(ctx context.Context, tenantID, message, level string, channels []string) error
}

// Executor dispatches one action variant and captures the outcome.
// Failures are data, never panics or returned errors.
type Executor struct {
	Client   *http.Client
	Notifier Notifier
	Log      *slog.Logger
	Timeout  time.Duration
	Now      func() time.Time
}

func NewExecutor(log *slog.Logger) *Executor {
	return &Executor{
		Client:  &http.Client{},
		Log:     log,
		Timeout: defaultWebhookTimeout,
		Now:     time.Now,
	}
}

// Execute runs a single action against the evaluation context. The
// switch is exhaustive over the closed action set.
func (x *Executor) Execute(ctx context.Context, action domain.Action, ec Context) ActionResult {
	start := x.Now()
	res := ActionResult{ActionType: action.ActionType()}

	switch a := action.(type) {
	case domain.WebhookAction:
		x.executeWebhook(ctx, a, ec, &res)
	case domain.NotifyAction:
		x.executeNotify(ctx, a, ec, &res)
	case domain.TagAction:
		x.executeTag(a, ec, &res)
	case domain.RateAction:
		x.executeRate(a, ec, &res)
	case domain.SlackAction:
		x.executeSlack(ctx, a, ec, &res)
	default:
		res.Error = fmt.Sprintf("unknown action type %q", action.ActionType())
	}

	res.DurationMS = x.Now().Sub(start).Milliseconds()
	observeAction(res)
	return res
}

func (x *Executor) executeWebhook(ctx context.Context, a domain.WebhookAction, ec Context, res *ActionResult) {
	if a.URL == "" {
		res.Error = "webhook url is empty"
		return
	}
	url := Interpolate(a.URL, ec)

	payload, err := InterpolateJSON(a.Payload, ec)
	if err != nil {
		res.Error = err.Error()
		return
	}

	method := a.Method
	if method == "" {
		method = http.MethodPost
	}

	timeout := x.Timeout
	if a.TimeoutMS > 0 {
		timeout = time.Duration(a.TimeoutMS) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		res.Error = fmt.Sprintf("build webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.Headers {
		req.Header.Set(k, Interpolate(v, ec))
	}

	resp, err := x.Client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("webhook call failed: %v", err)
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	// A received response counts as success; callers inspect status_code
	// when they care about 2xx.
	res.Success = true
	res.Output = map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}
}

func (x *Executor) executeNotify(ctx context.Context, a domain.NotifyAction, ec Context, res *ActionResult) {
	message := Interpolate(a.Message, ec)
	level := a.Level
	if level == "" {
		level = "info"
	}

	if x.Notifier != nil {
		if err := x.Notifier.Notify(ctx, ec.Tenant.ID, message, level, a.Channels); err != nil {
			res.Error = fmt.Sprintf("notify failed: %v", err)
			return
		}
	}

	res.Success = true
	res.Output = map[string]any{
		"message":  message,
		"level":    level,
		"channels": a.Channels,
	}
}

// Tag and rate record the intended field mutation without persisting it,
// matching the source platform. See DESIGN.md for the open question on
// whether mutations should apply to the record.

func (x *Executor) executeTag(a domain.TagAction, ec Context, res *ActionResult) {
	if a.Field == "" {
		res.Error = "tag field is empty"
		return
	}
	val := Interpolate(a.Value, ec)
	op := a.Operation
	if op == "" {
		op = "set"
	}
	x.Log.Info("tag action",
		"rule_id", ec.Rule.ID, "record_id", ec.Record.ID,
		"field", a.Field, "value", val, "operation", op)
	res.Success = true
	res.Output = map[string]any{"field": a.Field, "value": val, "operation": op}
}

func (x *Executor) executeRate(a domain.RateAction, ec Context, res *ActionResult) {
	if a.Field == "" {
		res.Error = "rate field is empty"
		return
	}
	val := Interpolate(a.Value, ec)
	x.Log.Info("rate action",
		"rule_id", ec.Rule.ID, "record_id", ec.Record.ID,
		"field", a.Field, "value", val)
	res.Success = true
	res.Output = map[string]any{"field": a.Field, "value": val}
}

func (x *Executor) executeSlack(ctx context.Context, a domain.SlackAction, ec Context, res *ActionResult) {
	if a.WebhookURL == "" {
		res.Error = "slack webhook_url is empty"
		return
	}

	msg := map[string]any{"text": Interpolate(a.Message, ec)}
	if a.Channel != "" {
		msg["channel"] = a.Channel
	}
	if a.Username != "" {
		msg["username"] = a.Username
	}
	if a.Icon != "" {
		msg["icon_emoji"] = a.Icon
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		res.Error = fmt.Sprintf("build slack payload: %v", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, x.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		res.Error = fmt.Sprintf("build slack request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.Client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("slack call failed: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	res.Success = true
	res.Output = map[string]any{"status_code": resp.StatusCode}
}
