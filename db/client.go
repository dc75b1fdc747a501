package db

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

var (
	metricObjectsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kcidb_db_loaded_objects_total",
		Help: "Number of report objects loaded into databases.",
	})
	metricOOQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kcidb_db_oo_queries_total",
		Help: "Number of object-oriented queries served.",
	})
)

// Client provides checked access to a kernel CI report database. It
// validates operation arguments and preconditions before handing off
// to the driver, and keeps operation metrics. Client implements
// orm.Source.
type Client struct {
	driver Driver
}

var _ orm.Source = (*Client)(nil)

// NewClient returns a client running on top of the given driver.
func NewClient(driver Driver) *Client {
	return &Client{driver: driver}
}

// OpenSpec opens the database named by a specification string (see
// Open) and returns a client for it.
func OpenSpec(ctx context.Context, spec string) (*Client, error) {
	driver, err := Open(ctx, spec)
	if err != nil {
		return nil, err
	}
	return NewClient(driver), nil
}

// Driver returns the driver the client runs on.
func (c *Client) Driver() Driver {
	return c.driver
}

// Close releases the resources of the client and its driver.
func (c *Client) Close() error {
	return c.driver.Close()
}

// IsInitialized reports whether the database is initialized.
func (c *Client) IsInitialized(ctx context.Context) (bool, error) {
	return c.driver.IsInitialized(ctx)
}

// GetSchemas returns the database schema versions the driver can
// maintain, in ascending version order.
func (c *Client) GetSchemas() []SchemaVersion {
	return c.driver.GetSchemas()
}

// GetSchema returns the schema version the database currently uses.
func (c *Client) GetSchema(ctx context.Context) (SchemaVersion, error) {
	if err := c.checkInitialized(ctx); err != nil {
		return SchemaVersion{}, err
	}
	return c.driver.GetSchema(ctx)
}

// Init initializes the database to the given schema version.
func (c *Client) Init(ctx context.Context, version Version) error {
	initialized, err := c.driver.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return kcerr.Fmt("Database is already initialized")
	}
	if _, ok := FindSchema(c.driver.GetSchemas(), version); !ok {
		return &UnsupportedSchemaError{Version: version}
	}
	return c.driver.Init(ctx, version)
}

// Cleanup deinitializes the database, removing all data.
func (c *Client) Cleanup(ctx context.Context) error {
	if err := c.checkInitialized(ctx); err != nil {
		return err
	}
	return c.driver.Cleanup(ctx)
}

// Empty removes all data from the database, leaving it initialized.
func (c *Client) Empty(ctx context.Context) error {
	if err := c.checkInitialized(ctx); err != nil {
		return err
	}
	return c.driver.Empty(ctx)
}

// Purge removes all data that arrived before the given database server
// time, if the database supports that, and reports whether it does.
// A zero time removes nothing and only probes support.
func (c *Client) Purge(ctx context.Context, before time.Time) (bool, error) {
	if err := c.checkInitialized(ctx); err != nil {
		return false, err
	}
	return c.driver.Purge(ctx, before)
}

// GetCurrentTime returns the current time of the database server.
func (c *Client) GetCurrentTime(ctx context.Context) (time.Time, error) {
	return c.driver.GetCurrentTime(ctx)
}

// GetLastModified returns the time the database data was last
// modified, or the zero time if the driver does not track it.
func (c *Client) GetLastModified(ctx context.Context) (time.Time, error) {
	return c.driver.GetLastModified(ctx)
}

// Upgrade upgrades the database to the target schema version,
// applying the migration of every intervening version in order.
func (c *Client) Upgrade(ctx context.Context, target Version) error {
	current, err := c.GetSchema(ctx)
	if err != nil {
		return err
	}
	if _, ok := FindSchema(c.driver.GetSchemas(), target); !ok {
		return &UnsupportedSchemaError{Version: target}
	}
	if target.Cmp(current.Version) < 0 {
		return kcerr.Fmt("Target schema v%s is older than the current schema v%s",
			target, current.Version)
	}
	return c.driver.Upgrade(ctx, target)
}

// DumpIter dumps all data from the database as a lazy sequence of
// interchange reports, each holding at most opts.ObjectsPerReport
// objects.
func (c *Client) DumpIter(ctx context.Context, opts DumpOpts) (*Reports, error) {
	if opts.ObjectsPerReport < 0 {
		return nil, kcerr.Fmt("Invalid number of objects per report: %d", opts.ObjectsPerReport)
	}
	if err := c.checkInitialized(ctx); err != nil {
		return nil, err
	}
	return c.driver.DumpIter(ctx, opts)
}

// Dump dumps all data from the database as a single interchange
// report.
func (c *Client) Dump(ctx context.Context, withMetadata bool) (map[string]any, error) {
	reports, err := c.DumpIter(ctx, DumpOpts{WithMetadata: withMetadata})
	if err != nil {
		return nil, err
	}
	return c.singleReport(ctx, reports)
}

// QueryIter matches and fetches objects from the database as a lazy
// sequence of interchange reports.
func (c *Client) QueryIter(ctx context.Context, opts QueryOpts) (*Reports, error) {
	if opts.ObjectsPerReport < 0 {
		return nil, kcerr.Fmt("Invalid number of objects per report: %d", opts.ObjectsPerReport)
	}
	if err := c.checkInitialized(ctx); err != nil {
		return nil, err
	}
	return c.driver.QueryIter(ctx, opts)
}

// Query matches and fetches objects from the database as a single
// interchange report.
func (c *Client) Query(ctx context.Context, opts QueryOpts) (map[string]any, error) {
	opts.ObjectsPerReport = 0
	reports, err := c.QueryIter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c.singleReport(ctx, reports)
}

// singleReport drains an unlimited-chunk report sequence into its one
// report, or an empty report if the database held no matching objects.
func (c *Client) singleReport(ctx context.Context, reports *Reports) (map[string]any, error) {
	defer reports.Close()
	var data map[string]any
	if reports.Next() {
		data = reports.Report()
	}
	if err := reports.Err(); err != nil {
		return nil, err
	}
	if data == nil {
		schema, err := c.driver.GetSchema(ctx)
		if err != nil {
			return nil, err
		}
		data = schema.IO.NewData()
	}
	return data, nil
}

// OOQuery fetches raw object-oriented data matching a set of patterns.
func (c *Client) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	if err := c.checkInitialized(ctx); err != nil {
		return nil, err
	}
	response, err := c.driver.OOQuery(ctx, patterns)
	if err != nil {
		return nil, err
	}
	metricOOQueries.Inc()
	return response, nil
}

// Load loads interchange data into the database. The data must be
// directly compatible with the database's current interchange schema;
// data of other versions is rejected with IncompatibleSchemaError
// rather than upgraded implicitly. With withMetadata set, metadata
// fields in the data are stored; otherwise the database generates its
// own.
func (c *Client) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	schema, err := c.GetSchema(ctx)
	if err != nil {
		return err
	}
	if !schema.IO.IsCompatibleDirectly(data) {
		major, minor, err := ioschema.DataVersion(data)
		if err != nil {
			return err
		}
		return &IncompatibleSchemaError{
			DB:   Version{Major: schema.IO.Major, Minor: schema.IO.Minor},
			Data: Version{Major: major, Minor: minor},
		}
	}
	if HeavyAsserts() {
		if err := schema.IO.ValidateExactly(data); err != nil {
			return err
		}
	}
	if err := c.driver.Load(ctx, data, withMetadata); err != nil {
		return err
	}
	metricObjectsLoaded.Add(float64(schema.IO.ObjectCount(data)))
	return nil
}

func (c *Client) checkInitialized(ctx context.Context) error {
	initialized, err := c.driver.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		return kcerr.Fmt("Database is not initialized")
	}
	return nil
}
