// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// ArgumentSchema describes args as a JSON object schema. Validator-backed
// arguments carry no type since only the validator knows what it accepts.
func ArgumentSchema(args []Argument) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(args)),
	}
	for _, arg := range args {
		prop := &jsonschema.Schema{Description: arg.Description}
		switch arg.Kind.Tag {
		case KindEnumerator:
			for _, opt := range arg.Kind.Options() {
				prop.Enum = append(prop.Enum, opt.Value)
			}
		case KindLiteral:
			switch arg.Kind.Type {
			case TypeString, TypeNumber, TypeInteger, TypeBoolean:
				prop.Type = arg.Kind.Type
			}
		}
		schema.Properties[arg.Name] = prop
		schema.PropertyOrder = append(schema.PropertyOrder, arg.Name)
		if arg.Required {
			schema.Required = append(schema.Required, arg.Name)
		}
	}
	return schema
}

// Schema describes the skill's full argument set.
func (s *Skill) Schema() *jsonschema.Schema {
	schema := ArgumentSchema(s.Arguments)
	schema.Title = s.Name
	schema.Description = s.Title()
	return schema
}
