package db

import "fmt"

// NotFoundError reports a database that does not exist.
type NotFoundError struct {
	// Database is the specification of the missing database.
	Database string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Database %q not found", e.Database)
}

// UnsupportedSchemaError reports a database schema version the driver
// does not support: either found on an existing database, or requested
// for initialization or upgrade.
type UnsupportedSchemaError struct {
	Version Version
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("Database schema v%d.%d is unsupported",
		e.Version.Major, e.Version.Minor)
}

// IncompatibleSchemaError reports interchange data that cannot be
// loaded into the database's current schema without an explicit
// upgrade or downgrade.
type IncompatibleSchemaError struct {
	// DB is the interchange schema version the database accepts.
	DB Version
	// Data is the version the rejected data claims.
	Data Version
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("Database schema v%d.%d is incompatible with I/O data v%d.%d",
		e.DB.Major, e.DB.Minor, e.Data.Major, e.Data.Minor)
}
