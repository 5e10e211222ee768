package rules

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synkboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotBody  []byte
		gotToken string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotToken = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	x := NewExecutor(testLogger())
	ec := templateContext()

	res := x.Execute(context.Background(), domain.WebhookAction{
		URL:     srv.URL + "/hooks/{{entity.slug}}",
		Headers: map[string]string{"Authorization": "Bearer {{tenant.id}}"},
		Payload: json.RawMessage(`{"deal":"{{fields.name}}"}`),
	}, ec)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, domain.ActionWebhook, res.ActionType)
	assert.Equal(t, http.StatusCreated, res.Output["status_code"])
	assert.Equal(t, `{"ok":true}`, res.Output["body"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/hooks/leads", gotPath)
	assert.Equal(t, "Bearer ten-1", gotToken)
	assert.JSONEq(t, `{"deal":"Big Deal"}`, string(gotBody))
}

func TestExecuteWebhookUnreachable(t *testing.T) {
	x := NewExecutor(testLogger())
	x.Timeout = 200 * time.Millisecond

	res := x.Execute(context.Background(), domain.WebhookAction{
		URL: "http://127.0.0.1:1/nope",
	}, templateContext())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "webhook call failed")
}

func TestExecuteWebhookBrokenPayload(t *testing.T) {
	x := NewExecutor(testLogger())

	res := x.Execute(context.Background(), domain.WebhookAction{
		URL:     "http://example.invalid",
		Payload: json.RawMessage(`{"deal":{{fields.name}}}`),
	}, templateContext())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not valid JSON")
}

type fakeNotifier struct {
	tenantID string
	message  string
	level    string
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, tenantID, message, level string, _ []string) error {
	f.tenantID = tenantID
	f.message = message
	f.level = level
	return f.err
}

func TestExecuteNotify(t *testing.T) {
	n := &fakeNotifier{}
	x := NewExecutor(testLogger())
	x.Notifier = n

	res := x.Execute(context.Background(), domain.NotifyAction{
		Message: "{{fields.name}} needs attention",
	}, templateContext())

	require.True(t, res.Success)
	assert.Equal(t, "Big Deal needs attention", n.message)
	assert.Equal(t, "ten-1", n.tenantID)
	assert.Equal(t, "info", n.level, "level defaults to info")
	assert.Equal(t, "Big Deal needs attention", res.Output["message"])
}

func TestExecuteTagAndRate(t *testing.T) {
	x := NewExecutor(testLogger())
	ec := templateContext()

	res := x.Execute(context.Background(), domain.TagAction{Field: "status", Value: "hot"}, ec)
	require.True(t, res.Success)
	assert.Equal(t, "set", res.Output["operation"], "operation defaults to set")

	res = x.Execute(context.Background(), domain.RateAction{Field: "score", Value: "{{fields.amount}}"}, ec)
	require.True(t, res.Success)
	assert.Equal(t, "1500", res.Output["value"])

	res = x.Execute(context.Background(), domain.TagAction{Value: "x"}, ec)
	assert.False(t, res.Success)
}

func TestExecuteSlack(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	x := NewExecutor(testLogger())
	res := x.Execute(context.Background(), domain.SlackAction{
		WebhookURL: srv.URL,
		Message:    "{{fields.name}} won",
		Channel:    "#sales",
		Icon:       ":tada:",
	}, templateContext())

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "Big Deal won", got["text"])
	assert.Equal(t, "#sales", got["channel"])
	assert.Equal(t, ":tada:", got["icon_emoji"])
}
