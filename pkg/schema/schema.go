package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/courier/pkg/integration"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates values against a compiled set of fields.
type Validator struct {
	schema *gojsonschema.Schema
	raw    map[string]any
}

// JSONSchema converts field definitions into a JSON Schema object.
func JSONSchema(fields map[string]Field) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0)

	for name, field := range fields {
		properties[name] = fieldSchema(field)

		if field.Required {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	out := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		out["required"] = required
	}

	return out
}

func fieldSchema(field Field) map[string]any {
	item := map[string]any{}

	switch field.Type {
	case TypeString, TypeText, TypePassword, TypeDatetime:
		item["type"] = "string"
	case TypeNumber:
		item["type"] = "number"
	case TypeInteger:
		item["type"] = "integer"
	case TypeBoolean:
		item["type"] = "boolean"
	case TypeObject:
		item["type"] = "object"

		if len(field.Properties) > 0 {
			nested := JSONSchema(field.Properties)
			delete(nested, "$schema")

			item = nested
		}
	}

	if len(field.Choices) > 0 {
		choices := make([]any, len(field.Choices))
		for i, choice := range field.Choices {
			choices[i] = choice
		}

		item["enum"] = choices
	}

	if field.Minimum != nil {
		item["minimum"] = *field.Minimum
	}

	if field.Maximum != nil {
		item["maximum"] = *field.Maximum
	}

	if field.Description != "" {
		item["description"] = field.Description
	}

	if field.Multiple {
		return map[string]any{"type": "array", "items": item}
	}

	return item
}

// Compile builds a validator for the given fields.
func Compile(fields map[string]Field) (*Validator, error) {
	raw := JSONSchema(fields)

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: compiled, raw: raw}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(fields map[string]Field) *Validator {
	v, err := Compile(fields)
	if err != nil {
		panic(err)
	}

	return v
}

// Schema returns the JSON Schema the validator was compiled from.
func (v *Validator) Schema() map[string]any {
	return v.raw
}

// Validate returns an integration validation error (status 400) when data
// does not satisfy the schema.
func (v *Validator) Validate(data any) error {
	if v == nil {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return integration.NewValidationError(fmt.Sprintf("unable to validate payload: %v", err))
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return integration.NewValidationError(strings.Join(messages, "; "))
	}

	return nil
}
