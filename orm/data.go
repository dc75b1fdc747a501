// Package orm organizes kernel CI report data into typed objects linked
// by parent/child relations, without an object-oriented interface. It
// defines the object type schema, a pattern language for selecting
// object sets across relations, and sources serving raw object data.
package orm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"go.kernelci.org/kcidb/go/kcerr"
)

// FieldValueType is the value type of an object ID field.
type FieldValueType int

const (
	// FieldValueString is a string-valued ID field.
	FieldValueString FieldValueType = iota
	// FieldValueInt is an integer-valued ID field.
	FieldValueInt
)

// IDField describes one field of an object type's globally-identifying
// ID.
type IDField struct {
	Name string
	Type FieldValueType
}

// ParseValue converts the string representation of an ID field value,
// as found in pattern strings, to its typed value.
func (f IDField) ParseValue(str string) (any, error) {
	switch f.Type {
	case FieldValueInt:
		value, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, kcerr.Fmt("invalid integer %q", str)
		}
		return value, nil
	default:
		return str, nil
	}
}

// Relation is a parent/child relation between two object types.
type Relation struct {
	Parent *Type
	Child  *Type
	// RefFields names the child's fields holding the values of the
	// parent's ID fields, in the same order.
	RefFields []string
}

// Type is an object type.
type Type struct {
	// Name is the type name.
	Name string
	// Fields maps field names to JSON schemas of their values, for
	// when the values are present.
	Fields map[string]map[string]any
	// IDFields describe the fields identifying an object globally, in
	// significance order.
	IDFields []IDField
	// Relations holds all relations of this type, in the order they
	// were registered.
	Relations []*Relation
	// Parents and Children map related type names to the relation.
	Parents  map[string]*Relation
	Children map[string]*Relation

	required    map[string]bool
	jsonSchema  map[string]any
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
}

// ID returns the values of the object's globally-identifying fields, in
// IDFields order.
func (t *Type) ID(obj map[string]any) []any {
	id := make([]any, len(t.IDFields))
	for i, field := range t.IDFields {
		id[i] = obj[field.Name]
	}
	return id
}

// ParentID returns the values of the object's fields referencing its
// parent of the named type, in the parent's ID field order.
func (t *Type) ParentID(parentTypeName string, obj map[string]any) []any {
	relation := t.Parents[parentTypeName]
	if relation == nil {
		panic(fmt.Sprintf("type %q has no parent type %q", t.Name, parentTypeName))
	}
	id := make([]any, len(relation.RefFields))
	for i, field := range relation.RefFields {
		id[i] = obj[field]
	}
	return id
}

func (t *Type) schema() (*gojsonschema.Schema, error) {
	t.compileOnce.Do(func() {
		t.compiled, t.compileErr = gojsonschema.NewSchema(
			gojsonschema.NewGoLoader(t.jsonSchema))
	})
	if t.compileErr != nil {
		return nil, kcerr.Wrapf(t.compileErr, "compiling schema of type %q", t.Name)
	}
	return t.compiled, nil
}

// Validate checks raw object data against the type's JSON schema: every
// field must be present, and optional fields may be null.
func (t *Type) Validate(obj map[string]any) error {
	schema, err := t.schema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return kcerr.Wrapf(err, "validating %q object", t.Name)
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			descs = append(descs, resultError.String())
		}
		return kcerr.Fmt("invalid %q object: %s", t.Name, strings.Join(descs, "; "))
	}
	return nil
}

// IsValid reports whether raw object data adheres to the type's JSON
// schema.
func (t *Type) IsValid(obj map[string]any) bool {
	return t.Validate(obj) == nil
}

// TypeDef describes one object type for NewSchema.
type TypeDef struct {
	// Fields maps field names to JSON schemas of their present values.
	Fields map[string]map[string]any
	// RequiredFields names the fields which may not be null.
	RequiredFields []string
	// IDFields describe the globally-identifying fields, in
	// significance order. Must be a subset of Fields.
	IDFields []IDField
	// Children maps child type names to the names of the child's
	// fields referencing this type's ID fields, in the same order.
	Children map[string][]string
}

// Schema is a repository of recognized object types and their relations.
type Schema struct {
	// Types maps type names to their descriptions.
	Types map[string]*Type
	// Relations holds every relation between the types, ordered by
	// parent then child type name.
	Relations []*Relation
}

// NewSchema builds an object type schema from type definitions,
// checking their consistency.
func NewSchema(defs map[string]TypeDef) (*Schema, error) {
	schema := &Schema{Types: make(map[string]*Type, len(defs))}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		objType := &Type{
			Name:     name,
			Fields:   def.Fields,
			IDFields: def.IDFields,
			Parents:  map[string]*Relation{},
			Children: map[string]*Relation{},
			required: map[string]bool{},
		}
		if len(def.IDFields) == 0 {
			return nil, kcerr.Fmt("type %q has no ID fields", name)
		}
		for _, field := range def.IDFields {
			if _, ok := def.Fields[field.Name]; !ok {
				return nil, kcerr.Fmt("ID field %q of type %q is not among its fields",
					field.Name, name)
			}
		}
		for _, field := range def.RequiredFields {
			if _, ok := def.Fields[field]; !ok {
				return nil, kcerr.Fmt("required field %q of type %q is not among its fields",
					field, name)
			}
			objType.required[field] = true
		}
		objType.jsonSchema = buildTypeJSONSchema(objType)
		schema.Types[name] = objType
	}

	for _, name := range names {
		parent := schema.Types[name]
		childNames := make([]string, 0, len(defs[name].Children))
		for childName := range defs[name].Children {
			childNames = append(childNames, childName)
		}
		sort.Strings(childNames)
		for _, childName := range childNames {
			refFields := defs[name].Children[childName]
			child, ok := schema.Types[childName]
			if !ok {
				return nil, kcerr.Fmt("cannot find child %q of type %q", childName, name)
			}
			if len(refFields) != len(parent.IDFields) {
				return nil, kcerr.Fmt(
					"child %q of type %q references it with %d fields, expecting %d",
					childName, name, len(refFields), len(parent.IDFields))
			}
			for _, refField := range refFields {
				if _, ok := child.Fields[refField]; !ok {
					return nil, kcerr.Fmt(
						"reference field %q of type %q is not among its fields",
						refField, childName)
				}
			}
			relation := &Relation{Parent: parent, Child: child, RefFields: refFields}
			schema.Relations = append(schema.Relations, relation)
			parent.Relations = append(parent.Relations, relation)
			parent.Children[childName] = relation
			if child != parent {
				child.Relations = append(child.Relations, relation)
			}
			child.Parents[name] = relation
		}
	}
	return schema, nil
}

func mustNewSchema(defs map[string]TypeDef) *Schema {
	schema, err := NewSchema(defs)
	if err != nil {
		panic(err)
	}
	return schema
}

func buildTypeJSONSchema(t *Type) map[string]any {
	properties := make(map[string]any, len(t.Fields))
	required := make([]string, 0, len(t.Fields))
	for name, fieldSchema := range t.Fields {
		if t.required[name] {
			properties[name] = fieldSchema
		} else {
			properties[name] = map[string]any{
				"anyOf": []any{
					map[string]any{"type": "null"},
					fieldSchema,
				},
			}
		}
		required = append(required, name)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// Validate checks raw object-oriented data, a map of type names to
// lists of objects, against the schema.
func (s *Schema) Validate(data map[string][]map[string]any) error {
	for typeName, objs := range data {
		objType, ok := s.Types[typeName]
		if !ok {
			return kcerr.Fmt("unknown object type %q", typeName)
		}
		for _, obj := range objs {
			if err := objType.Validate(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsValid reports whether raw object-oriented data adheres to the
// schema.
func (s *Schema) IsValid(data map[string][]map[string]any) bool {
	return s.Validate(data) == nil
}

// FormatDot renders the directed graph of object type relations in the
// DOT language, suitable for visualizing with e.g. "dot -Tx11".
func (s *Schema) FormatDot() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, relation := range s.Relations {
		fmt.Fprintf(&b, "%s -> %s\n", relation.Parent.Name, relation.Child.Name)
	}
	b.WriteString("}\n")
	return b.String()
}
