// Package null provides the null database driver: it discards all
// loaded data and returns nothing for any query. Useful as a data sink
// and in driver plumbing tests.
package null

import (
	"context"
	"time"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

const doc = `The null driver discards any loaded data and returns nothing for
any query. This driver does not take parameters.`

func init() {
	db.Register("null", doc, func(ctx context.Context, params *string) (db.Driver, error) {
		if params != nil {
			return nil, kcerr.Fmt("Database parameters are not accepted")
		}
		return &Driver{}, nil
	})
}

// Driver is the null database driver. The database is always
// initialized, permanently empty, and holds the single schema version
// 0.0 supporting the latest interchange schema.
type Driver struct{}

var _ db.Driver = (*Driver)(nil)

var schemas = []db.SchemaVersion{
	{Version: db.Version{Major: 0, Minor: 0}, IO: ioschema.Latest},
}

// IsInitialized implements db.Driver.
func (d *Driver) IsInitialized(ctx context.Context) (bool, error) {
	return true, nil
}

// Init implements db.Driver.
func (d *Driver) Init(ctx context.Context, version db.Version) error {
	return nil
}

// Cleanup implements db.Driver.
func (d *Driver) Cleanup(ctx context.Context) error {
	return nil
}

// Empty implements db.Driver.
func (d *Driver) Empty(ctx context.Context) error {
	return nil
}

// Purge implements db.Driver. There is never anything to remove.
func (d *Driver) Purge(ctx context.Context, before time.Time) (bool, error) {
	return true, nil
}

// GetCurrentTime implements db.Driver.
func (d *Driver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

// GetLastModified implements db.Driver.
func (d *Driver) GetLastModified(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

// GetSchemas implements db.Driver.
func (d *Driver) GetSchemas() []db.SchemaVersion {
	return schemas
}

// GetSchema implements db.Driver.
func (d *Driver) GetSchema(ctx context.Context) (db.SchemaVersion, error) {
	return schemas[0], nil
}

// Upgrade implements db.Driver.
func (d *Driver) Upgrade(ctx context.Context, target db.Version) error {
	return nil
}

// DumpIter implements db.Driver, producing a single empty report.
func (d *Driver) DumpIter(ctx context.Context, opts db.DumpOpts) (*db.Reports, error) {
	return db.ReportsOf(ioschema.Latest.NewData()), nil
}

// QueryIter implements db.Driver, producing a single empty report.
func (d *Driver) QueryIter(ctx context.Context, opts db.QueryOpts) (*db.Reports, error) {
	return db.ReportsOf(ioschema.Latest.NewData()), nil
}

// OOQuery implements db.Driver, matching nothing.
func (d *Driver) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	return map[string][]map[string]any{}, nil
}

// Load implements db.Driver, discarding the data.
func (d *Driver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	return nil
}

// Close implements db.Driver.
func (d *Driver) Close() error {
	return nil
}
