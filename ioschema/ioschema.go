// Package ioschema defines the versioned interchange schema for kernel CI
// report data: the JSON shape used to move reports in and out of the
// database layer. Versions form a single lineage; each version knows how
// to validate data directly compatible with it and how to upgrade data
// from its predecessor.
//
// Interchange data is represented as map[string]any with the shape
// produced by encoding/json: a "version" field carrying major/minor
// numbers, plus object lists keyed by pluralized type names.
package ioschema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"go.kernelci.org/kcidb/go/kcerr"
)

// Version describes one version of the interchange schema.
//
// Versions are defined as an explicit ordered lineage (see versions.go)
// rather than derived from each other: every instance fully describes its
// own object graph and validation schema, and carries the data migration
// from its predecessor.
type Version struct {
	// Major and Minor are the version numbers. A major number change
	// breaks backwards compatibility.
	Major int
	Minor int

	// Graph maps each object list name to the list names of its child
	// object lists. The empty key maps to the top-level (root) lists.
	Graph map[string][]string

	// ObjectLists holds the object list names in canonical order.
	ObjectLists []string

	// Previous is the version this one directly upgrades from, nil for
	// the oldest version in the lineage.
	Previous *Version

	// schemaJSON is the JSON Schema source validating a whole report.
	schemaJSON string

	// inherit upgrades data valid for Previous into data valid for
	// this version, modifying it in place.
	inherit func(data map[string]any)

	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
}

// String returns the dotted version number, e.g. "4.1".
func (v *Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v *Version) schema() (*gojsonschema.Schema, error) {
	v.compileOnce.Do(func() {
		v.compiled, v.compileErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(v.schemaJSON))
	})
	if v.compileErr != nil {
		return nil, kcerr.Wrapf(v.compileErr, "compiling interchange schema v%s", v)
	}
	return v.compiled, nil
}

// DataVersion extracts the major and minor version numbers from
// interchange data.
func DataVersion(data map[string]any) (major, minor int, err error) {
	raw, ok := data["version"]
	if !ok {
		return 0, 0, kcerr.Fmt("data has no version field")
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return 0, 0, kcerr.Fmt("data version is %T, not an object", raw)
	}
	major, err = intField(fields, "major")
	if err != nil {
		return 0, 0, err
	}
	// Minor is optional and defaults to zero.
	if _, ok := fields["minor"]; ok {
		minor, err = intField(fields, "minor")
		if err != nil {
			return 0, 0, err
		}
	}
	return major, minor, nil
}

func intField(fields map[string]any, name string) (int, error) {
	switch n := fields[name].(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, kcerr.Fmt("version %s %v is not an integer", name, n)
		}
		return int(n), nil
	default:
		return 0, kcerr.Fmt("version %s is %T, not a number", name, fields[name])
	}
}

// IsCompatibleDirectly reports whether data claims a version this schema
// version can validate and accept without upgrading: the same major
// version and a minor version not newer than this one.
func (v *Version) IsCompatibleDirectly(data map[string]any) bool {
	major, minor, err := DataVersion(data)
	if err != nil {
		return false
	}
	return major == v.Major && minor <= v.Minor
}

// IsCompatible reports whether data claims a version compatible with this
// schema version or any of its ancestors.
func (v *Version) IsCompatible(data map[string]any) bool {
	return v.compatibleAncestor(data) != nil
}

// compatibleAncestor returns the newest version in this version's lineage
// (itself included) directly compatible with data, or nil.
func (v *Version) compatibleAncestor(data map[string]any) *Version {
	for s := v; s != nil; s = s.Previous {
		if s.IsCompatibleDirectly(data) {
			return s
		}
	}
	return nil
}

// ValidateExactly validates data against this schema version alone.
func (v *Version) ValidateExactly(data map[string]any) error {
	schema, err := v.schema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return kcerr.Wrapf(err, "validating data against schema v%s", v)
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			descs = append(descs, resultError.String())
		}
		return kcerr.Fmt("data does not adhere to schema v%s: %s",
			v, strings.Join(descs, "; "))
	}
	return nil
}

// IsValidExactly reports whether data validates against this schema
// version alone.
func (v *Version) IsValidExactly(data map[string]any) bool {
	return v.ValidateExactly(data) == nil
}

// Validate validates data against the newest version in this version's
// lineage the data is directly compatible with.
func (v *Version) Validate(data map[string]any) error {
	ancestor := v.compatibleAncestor(data)
	if ancestor == nil {
		major, minor, err := DataVersion(data)
		if err != nil {
			return err
		}
		return kcerr.Fmt("data version %d.%d is not compatible with schema v%s or its ancestors",
			major, minor, v)
	}
	return ancestor.ValidateExactly(data)
}

// Upgrade migrates data to this schema version, applying every
// intermediate version's migration in order. The data must be valid for
// the version it claims; it is modified in place and returned. Use Copy
// first to preserve the original.
func (v *Version) Upgrade(data map[string]any) (map[string]any, error) {
	if v.IsCompatibleDirectly(data) {
		return data, nil
	}
	if v.Previous == nil {
		major, minor, err := DataVersion(data)
		if err != nil {
			return nil, err
		}
		return nil, kcerr.Fmt("cannot upgrade data version %d.%d to schema v%s",
			major, minor, v)
	}
	data, err := v.Previous.Upgrade(data)
	if err != nil {
		return nil, err
	}
	v.inherit(data)
	setVersion(data, v)
	return data, nil
}

// NewData returns empty interchange data adhering to this schema version.
func (v *Version) NewData() map[string]any {
	data := map[string]any{}
	setVersion(data, v)
	return data
}

func setVersion(data map[string]any, v *Version) {
	data["version"] = map[string]any{
		"major": v.Major,
		"minor": v.Minor,
	}
}

// ObjectCount returns the total number of objects across all object
// lists in data.
func (v *Version) ObjectCount(data map[string]any) int {
	count := 0
	for _, name := range v.ObjectLists {
		if list, ok := data[name].([]any); ok {
			count += len(list)
		}
	}
	return count
}

// Merge upgrades target and every report to this schema version and
// concatenates the reports' object lists onto target. Both target and
// the reports are consumed: they are modified in place. Returns the
// merged target.
func (v *Version) Merge(target map[string]any, reports []map[string]any) (map[string]any, error) {
	target, err := v.Upgrade(target)
	if err != nil {
		return nil, kcerr.Wrapf(err, "upgrading merge target")
	}
	for _, report := range reports {
		report, err := v.Upgrade(report)
		if err != nil {
			return nil, kcerr.Wrapf(err, "upgrading merged report")
		}
		for _, name := range v.ObjectLists {
			list, ok := report[name].([]any)
			if !ok || len(list) == 0 {
				continue
			}
			existing, _ := target[name].([]any)
			target[name] = append(existing, list...)
		}
	}
	return target, nil
}

// Copy returns a deep copy of interchange data.
func Copy(data map[string]any) map[string]any {
	return copyValue(data).(map[string]any)
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	default:
		return value
	}
}
