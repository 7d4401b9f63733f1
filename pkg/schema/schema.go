package schema

import (
	"encoding/json"
	"fmt"
)

// FieldType is the declared semantic type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field declares one field of a target schema.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Definition is a caller-supplied target schema: the set of fields a backend
// response should be coerced into.
type Definition struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Parse decodes and checks a schema definition from JSON.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Check verifies the definition is usable: named, non-empty, no duplicate
// fields, only known field types.
func (d Definition) Check() error {
	if d.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("schema %s declares no fields", d.Name)
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s has a field with no name", d.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s declares field %s twice", d.Name, f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		default:
			return fmt.Errorf("schema %s field %s has unknown type %q", d.Name, f.Name, f.Type)
		}
	}
	return nil
}

// RequiredFields returns the names of all required fields.
func (d Definition) RequiredFields() []string {
	var names []string
	for _, f := range d.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
