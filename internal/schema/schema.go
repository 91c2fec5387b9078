// Package schema defines the parameter schema value shared by function
// definitions. One Schema serves two purposes: it marshals directly into the
// JSON-schema fragment a chat completion provider expects for a tool, and it
// validates raw argument payloads before dispatch.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Schema types.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Schema is a tagged JSON-schema value. Only the subset needed for tool
// parameters is modeled: flat objects of typed properties with optional
// enums, nesting for arrays and objects.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Object builds an object schema from its properties and required names.
func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: properties, Required: required}
}

// String builds a string property schema.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// StringEnum builds a string property restricted to the given values.
func StringEnum(description string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: values}
}

// Number builds a number property schema.
func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

// Integer builds an integer property schema.
func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

// Boolean builds a boolean property schema.
func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

// Array builds an array property schema with the given item schema.
func Array(description string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: items}
}

// ValidationError describes why an argument payload does not conform to a
// schema. It is meant to be surfaced verbatim as a failed function result.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Reason)
}

// Validate checks a raw JSON argument payload against the schema. The schema
// must be an object schema. Required properties must be present and every
// present property must match its declared type and enum. Properties not
// declared in the schema are ignored.
func (s *Schema) Validate(raw json.RawMessage) error {
	if s.Type != TypeObject {
		return fmt.Errorf("schema root must be an object, got %q", s.Type)
	}

	var args map[string]json.RawMessage
	if len(raw) == 0 {
		args = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(raw, &args); err != nil {
		return &ValidationError{Reason: "arguments are not a JSON object"}
	}

	for _, name := range s.Required {
		v, ok := args[name]
		if !ok || isJSONNull(v) {
			return &ValidationError{Field: name, Reason: "required field is missing"}
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			continue
		}
		if isJSONNull(value) {
			// Optional fields may be explicitly null; required ones were
			// already rejected above.
			continue
		}
		if err := prop.validateValue(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateValue(field string, raw json.RawMessage) error {
	switch s.Type {
	case TypeString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ValidationError{Field: field, Reason: "must be a string"}
		}
		if len(s.Enum) > 0 && !containsString(s.Enum, v) {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("must be one of: %s", strings.Join(s.Enum, ", "))}
		}
	case TypeNumber:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ValidationError{Field: field, Reason: "must be a number"}
		}
	case TypeInteger:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ValidationError{Field: field, Reason: "must be an integer"}
		}
		if v != math.Trunc(v) {
			return &ValidationError{Field: field, Reason: "must be an integer"}
		}
	case TypeBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ValidationError{Field: field, Reason: "must be a boolean"}
		}
	case TypeArray:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return &ValidationError{Field: field, Reason: "must be an array"}
		}
		if s.Items != nil {
			for i, item := range items {
				if err := s.Items.validateValue(fmt.Sprintf("%s[%d]", field, i), item); err != nil {
					return err
				}
			}
		}
	case TypeObject:
		if err := s.Validate(raw); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				prefixed := *ve
				if prefixed.Field != "" {
					prefixed.Field = field + "." + prefixed.Field
				} else {
					prefixed.Field = field
				}
				return &prefixed
			}
			return err
		}
	default:
		return fmt.Errorf("unsupported schema type %q for field '%s'", s.Type, field)
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 4 && string(raw) == "null"
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
