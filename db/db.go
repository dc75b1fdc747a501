// Package db provides access to kernel CI report databases through
// interchangeable backend drivers.
//
// A database is named by a specification string of the form
// "<driver>[:<params>]", e.g. "sqlite:reports.db" or "null". Drivers
// register themselves under their name (see Register); Open and
// OpenSpec resolve specifications against the registry. The Client
// type wraps a driver with argument validation and operation metrics
// and is what most callers should use.
//
// Every driver maintains its database under one of a list of database
// schema versions, each supporting a particular version of the
// interchange schema (ioschema). Databases are initialized to a chosen
// schema version and upgraded forward through every intervening
// version, never backwards.
package db

import (
	"context"
	"os"
	"time"

	"go.kernelci.org/kcidb/orm"
)

// heavyAsserts enables expensive structural validation of data passing
// through the database layer. Off by default to keep load and dump
// paths cheap.
var heavyAsserts = os.Getenv("KCIDB_HEAVY_ASSERTS") != ""

// HeavyAsserts reports whether expensive validation passes are enabled
// through the KCIDB_HEAVY_ASSERTS environment variable.
func HeavyAsserts() bool {
	return heavyAsserts
}

// DumpOpts control a dump operation.
type DumpOpts struct {
	// ObjectsPerReport is the maximum number of objects in each
	// returned report. Zero means a single unlimited report.
	ObjectsPerReport int
	// WithMetadata includes database-generated metadata fields
	// (underscore-prefixed) in the dumped objects.
	WithMetadata bool
}

// QueryOpts control a query operation.
type QueryOpts struct {
	// IDs maps object list names to the IDs of the objects to match.
	// Nil matches nothing (unless Children or Parents pull objects
	// in through another list).
	IDs map[string][]string
	// Children matches all descendants of matched objects.
	Children bool
	// Parents matches all ancestors of matched objects.
	Parents bool
	// ObjectsPerReport is the maximum number of objects in each
	// returned report. Zero means a single unlimited report.
	ObjectsPerReport int
	// WithMetadata includes database-generated metadata fields
	// (underscore-prefixed) in the fetched objects.
	WithMetadata bool
}

// Driver is a database backend.
//
// Apart from IsInitialized, GetSchemas and Close, operations require
// the database to be initialized first. Drivers return plain errors
// for precondition violations; they do not retry.
type Driver interface {
	// IsInitialized reports whether the database is initialized.
	IsInitialized(ctx context.Context) (bool, error)

	// Init initializes the database to the given schema version,
	// which must be one of the versions reported by GetSchemas.
	// The database must be uninitialized.
	Init(ctx context.Context, version Version) error

	// Cleanup deinitializes the database, removing all data.
	Cleanup(ctx context.Context) error

	// Empty removes all data from the database, leaving it
	// initialized.
	Empty(ctx context.Context) error

	// Purge removes all data that arrived before the given database
	// server time, if the database supports that, and reports whether
	// it does. A zero time removes nothing and only probes support.
	Purge(ctx context.Context, before time.Time) (bool, error)

	// GetCurrentTime returns the current time of the database server.
	GetCurrentTime(ctx context.Context) (time.Time, error)

	// GetLastModified returns the time the database data was last
	// modified. Drivers that do not track modification return the
	// zero time.
	GetLastModified(ctx context.Context) (time.Time, error)

	// GetSchemas returns the database schema versions known to the
	// driver, in ascending version order, each with the interchange
	// schema it supports.
	GetSchemas() []SchemaVersion

	// GetSchema returns the schema version the database currently
	// uses, with the interchange schema accepted for loading.
	GetSchema(ctx context.Context) (SchemaVersion, error)

	// Upgrade upgrades the database to the target schema version,
	// applying the migration of every intervening version in order.
	// The target must be one of the versions reported by GetSchemas
	// and must not be older than the current version.
	Upgrade(ctx context.Context, target Version) error

	// DumpIter dumps all data from the database as a lazy sequence
	// of interchange reports.
	DumpIter(ctx context.Context, opts DumpOpts) (*Reports, error)

	// QueryIter matches and fetches objects from the database as a
	// lazy sequence of interchange reports.
	QueryIter(ctx context.Context, opts QueryOpts) (*Reports, error)

	// OOQuery fetches raw object-oriented data matching a set of
	// patterns: a map of object type names to lists of objects, one
	// entry per requested type.
	OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error)

	// Load loads interchange data into the database. The data must be
	// directly compatible with the current database schema's
	// interchange schema: callers upgrade explicitly, the driver never
	// does it for them. With withMetadata set, metadata fields present
	// in the data are stored; otherwise the database generates its
	// own.
	Load(ctx context.Context, data map[string]any, withMetadata bool) error

	// Close releases the resources of the driver instance.
	Close() error
}
