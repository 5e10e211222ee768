package domain

import (
	"encoding/json"
	"fmt"
)

type ActionType string

const (
	ActionWebhook ActionType = "webhook"
	ActionNotify  ActionType = "notify"
	ActionTag     ActionType = "tag"
	ActionRate    ActionType = "rate"
	ActionSlack   ActionType = "slack"
)

// Action is a closed sum: one variant struct per action kind. The
// executor dispatches with an exhaustive type switch, so adding a
// variant without an executor branch fails to build rather than
// silently no-op at runtime.
type Action interface {
	ActionType() ActionType
}

type WebhookAction struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
}

func (WebhookAction) ActionType() ActionType { return ActionWebhook }

type NotifyAction struct {
	Message  string   `json:"message"`
	Level    string   `json:"level,omitempty" enum:"info,warning,critical"`
	Channels []string `json:"channels,omitempty"`
}

func (NotifyAction) ActionType() ActionType { return ActionNotify }

type TagAction struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Operation string `json:"operation,omitempty" enum:"set,append,remove"`
}

func (TagAction) ActionType() ActionType { return ActionTag }

type RateAction struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (RateAction) ActionType() ActionType { return ActionRate }

type SlackAction struct {
	WebhookURL string `json:"webhook_url"`
	Message    string `json:"message"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	Icon       string `json:"icon,omitempty"`
}

func (SlackAction) ActionType() ActionType { return ActionSlack }

// actionEnvelope is the stored/wire form: a type tag plus the variant's
// own config object.
type actionEnvelope struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config"`
}

// DecodeAction parses one tagged action. Unknown tags are an error at
// decode time so malformed rules are rejected on write, not mid-dispatch.
func DecodeAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	cfg := env.Config
	if len(cfg) == 0 {
		cfg = []byte("{}")
	}
	switch env.Type {
	case ActionWebhook:
		var a WebhookAction
		if err := json.Unmarshal(cfg, &a); err != nil {
			return nil, fmt.Errorf("decode webhook action: %w", err)
		}
		return a, nil
	case ActionNotify:
		var a NotifyAction
		if err := json.Unmarshal(cfg, &a); err != nil {
			return nil, fmt.Errorf("decode notify action: %w", err)
		}
		return a, nil
	case ActionTag:
		var a TagAction
		if err := json.Unmarshal(cfg, &a); err != nil {
			return nil, fmt.Errorf("decode tag action: %w", err)
		}
		return a, nil
	case ActionRate:
		var a RateAction
		if err := json.Unmarshal(cfg, &a); err != nil {
			return nil, fmt.Errorf("decode rate action: %w", err)
		}
		return a, nil
	case ActionSlack:
		var a SlackAction
		if err := json.Unmarshal(cfg, &a); err != nil {
			return nil, fmt.Errorf("decode slack action: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}
}

// Actions is an ordered action list whose JSON form is an array of
// {type, config} envelopes.
type Actions []Action

// DecodeActions parses a JSON array of tagged actions.
func DecodeActions(data []byte) (Actions, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	actions := make(Actions, 0, len(raw))
	for i, item := range raw {
		a, err := DecodeAction(item)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// EncodeActions serializes actions back into the tagged envelope array.
func EncodeActions(actions Actions) ([]byte, error) {
	out := make([]actionEnvelope, 0, len(actions))
	for _, a := range actions {
		cfg, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out = append(out, actionEnvelope{Type: a.ActionType(), Config: cfg})
	}
	return json.Marshal(out)
}

func (a Actions) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return EncodeActions(a)
}

func (a *Actions) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeActions(data)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}
