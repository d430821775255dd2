// Package mapping resolves subscription field mappings against events.
//
// A mapping is a JSON object whose values are either literals or directives:
//
//	{"@path": "$.properties.email"}
//	{"@template": "{{ .properties.first_name }} {{ .properties.last_name }}"}
//	{"@literal": {"@path": "not resolved"}}
//	{"@if": {"exists": {"@path": "$.userId"}, "then": ..., "else": ...}}
//
// Directives may be nested inside objects and arrays. Keys whose value
// resolves to nothing are left out of the payload.
package mapping

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/template"
)

const (
	PathDirective     = "@path"
	TemplateDirective = "@template"
	LiteralDirective  = "@literal"
	IfDirective       = "@if"
)

// ErrInvalidMapping indicates a malformed directive.
var ErrInvalidMapping = errors.New("invalid mapping")

// Resolve builds the action payload for event. A nil mapping yields an empty payload.
func Resolve(mapping map[string]any, event models.Event) (map[string]any, error) {
	out := make(map[string]any, len(mapping))
	event = event.Clone()

	for key, value := range mapping {
		resolved, ok, err := resolve(value, event)
		if err != nil {
			return nil, mappingError(key, err)
		}

		if ok {
			out[key] = resolved
		}
	}

	return out, nil
}

func mappingError(key string, err error) error {
	return integration.NewValidationError(fmt.Sprintf("invalid mapping for %q: %v", key, err))
}

func resolve(value any, event models.Event) (any, bool, error) {
	switch v := value.(type) {
	case map[string]any:
		if directive, arg, ok := asDirective(v); ok {
			return resolveDirective(directive, arg, event)
		}

		out := make(map[string]any, len(v))

		for key, item := range v {
			resolved, ok, err := resolve(item, event)
			if err != nil {
				return nil, false, fmt.Errorf("%s: %w", key, err)
			}

			if ok {
				out[key] = resolved
			}
		}

		return out, true, nil
	case []any:
		out := make([]any, 0, len(v))

		for i, item := range v {
			resolved, ok, err := resolve(item, event)
			if err != nil {
				return nil, false, fmt.Errorf("[%d]: %w", i, err)
			}

			if ok {
				out = append(out, resolved)
			}
		}

		return out, true, nil
	default:
		return v, true, nil
	}
}

func asDirective(v map[string]any) (string, any, bool) {
	if len(v) != 1 {
		return "", nil, false
	}

	for key, arg := range v {
		if strings.HasPrefix(key, "@") {
			return key, arg, true
		}
	}

	return "", nil, false
}

func resolveDirective(directive string, arg any, event models.Event) (any, bool, error) {
	switch directive {
	case PathDirective:
		path, ok := arg.(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: @path expects a string", ErrInvalidMapping)
		}

		value, found := Lookup(event, path)

		return value, found && value != nil, nil
	case TemplateDirective:
		tmpl, ok := arg.(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: @template expects a string", ErrInvalidMapping)
		}

		value, err := template.Render(tmpl, map[string]any(event))
		if err != nil {
			return nil, false, err
		}

		return value, true, nil
	case LiteralDirective:
		return arg, true, nil
	case IfDirective:
		return resolveIf(arg, event)
	default:
		return nil, false, fmt.Errorf("%w: unknown directive %s", ErrInvalidMapping, directive)
	}
}

func resolveIf(arg any, event models.Event) (any, bool, error) {
	cond, ok := arg.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: @if expects an object", ErrInvalidMapping)
	}

	exists, ok := cond["exists"]
	if !ok {
		return nil, false, fmt.Errorf("%w: @if requires exists", ErrInvalidMapping)
	}

	_, found, err := resolve(exists, event)
	if err != nil {
		return nil, false, err
	}

	branch, ok := cond["else"]
	if found {
		branch, ok = cond["then"]
	}

	if !ok {
		return nil, false, nil
	}

	return resolve(branch, event)
}

// Lookup reads a JSON path such as "$.properties.items.0.sku" from event.
func Lookup(event models.Event, path string) (any, bool) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return map[string]any(event), event != nil
	}

	var current any = map[string]any(event)

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case models.Event:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}
