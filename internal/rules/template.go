package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"synkboard/internal/domain"
	"synkboard/internal/value"
)

// Context is the immutable bundle every template path resolves against.
// It is assembled once per rule evaluation and shared by all actions.
type Context struct {
	Record domain.Record
	Entity domain.Entity
	User   domain.User
	Rule   domain.Rule
	Tenant domain.Tenant
}

// TemplateError reports a structured payload that no longer parses
// after interpolation.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("interpolated payload is not valid JSON: %v", e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.\-]+)\s*\}\}`)

// Interpolate substitutes {{dotted.path}} placeholders from the
// context. Unresolved paths keep their literal placeholder so a
// misconfigured rule stays visible in the action output instead of
// silently emptying.
func Interpolate(template string, ctx Context) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		if resolved, ok := resolvePath(path, ctx); ok {
			return resolved
		}
		return match
	})
}

// InterpolateJSON interpolates a structured payload by serializing,
// substituting, and re-parsing. A payload broken by substitution is a
// TemplateError, never a partial result.
func InterpolateJSON(raw json.RawMessage, ctx Context) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := Interpolate(string(raw), ctx)
	var check any
	if err := json.Unmarshal([]byte(out), &check); err != nil {
		return nil, &TemplateError{Err: err}
	}
	return json.RawMessage(out), nil
}

func resolvePath(path string, ctx Context) (string, bool) {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "record":
		return resolveRecord(parts[1:], ctx.Record)
	case "fields":
		// Shorthand for record.fields.
		return resolveFields(parts[1:], ctx.Record.Fields)
	case "entity":
		return resolveScalar(parts[1:], map[string]string{
			"id": ctx.Entity.ID, "name": ctx.Entity.Name, "slug": ctx.Entity.Slug,
		})
	case "user":
		return resolveScalar(parts[1:], map[string]string{
			"id": ctx.User.ID, "name": ctx.User.Name, "email": ctx.User.Email,
		})
	case "rule":
		return resolveScalar(parts[1:], map[string]string{
			"id": ctx.Rule.ID, "name": ctx.Rule.Name,
		})
	case "tenant":
		return resolveScalar(parts[1:], map[string]string{
			"id": ctx.Tenant.ID, "name": ctx.Tenant.Name,
		})
	}
	return "", false
}

func resolveRecord(parts []string, rec domain.Record) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	switch parts[0] {
	case "id":
		return rec.ID, len(parts) == 1
	case "created_at":
		return rec.CreatedAt, len(parts) == 1
	case "updated_at":
		return rec.UpdatedAt, len(parts) == 1
	case "fields":
		return resolveFields(parts[1:], rec.Fields)
	}
	return "", false
}

// resolveFields walks the remaining path into the field map, descending
// through nested objects and numeric array indices.
func resolveFields(parts []string, fields *value.Map) (string, bool) {
	if len(parts) == 0 || fields == nil {
		return "", false
	}
	current, ok := fields.Get(parts[0])
	if !ok {
		return "", false
	}
	for _, part := range parts[1:] {
		switch current.Kind() {
		case value.KindObject:
			current, ok = current.Fields().Get(part)
			if !ok {
				return "", false
			}
		case value.KindArray:
			idx, err := strconv.Atoi(part)
			items := current.Items()
			if err != nil || idx < 0 || idx >= len(items) {
				return "", false
			}
			current = items[idx]
		default:
			return "", false
		}
	}
	return current.AsString(), true
}

func resolveScalar(parts []string, attrs map[string]string) (string, bool) {
	if len(parts) != 1 {
		return "", false
	}
	s, ok := attrs[parts[0]]
	return s, ok
}
