package db

import (
	"fmt"

	"go.kernelci.org/kcidb/ioschema"
)

// Version identifies a database schema version. Major version changes
// are backwards-incompatible, minor ones are not.
type Version struct {
	Major int
	Minor int
}

// String returns the dotted version number, e.g. "4.1".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Cmp compares v with other, returning -1 if v is older, 0 if equal,
// and 1 if newer.
func (v Version) Cmp(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	}
	return 0
}

// SchemaVersion pairs a database schema version with the interchange
// schema it supports.
type SchemaVersion struct {
	Version Version
	IO      *ioschema.Version
}

// FindSchema returns the entry for the given version in a schema
// version list, or false if the list has no such version.
func FindSchema(schemas []SchemaVersion, version Version) (SchemaVersion, bool) {
	for _, s := range schemas {
		if s.Version == version {
			return s, true
		}
	}
	return SchemaVersion{}, false
}
