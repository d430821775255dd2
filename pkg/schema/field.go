// Package schema turns declarative field definitions into compiled JSON Schema validators.
package schema

// FieldType is the declared type of a settings or payload field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypePassword FieldType = "password"
	TypeNumber   FieldType = "number"
	TypeInteger  FieldType = "integer"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeObject   FieldType = "object"
)

// Field describes one input of an action, an authentication scheme or an audience.
type Field struct {
	Label       string           `json:"label"`
	Description string           `json:"description,omitempty"`
	Type        FieldType        `json:"type"`
	Required    bool             `json:"required,omitempty"`
	Multiple    bool             `json:"multiple,omitempty"`
	Dynamic     bool             `json:"dynamic,omitempty"`
	Default     any              `json:"default,omitempty"`
	Choices     []string         `json:"choices,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Maximum     *float64         `json:"maximum,omitempty"`
	Properties  map[string]Field `json:"properties,omitempty"`
}

// Defaults returns the default value of every field that declares one.
func Defaults(fields map[string]Field) map[string]any {
	out := make(map[string]any)

	for name, field := range fields {
		if field.Default != nil {
			out[name] = field.Default
		}
	}

	return out
}
