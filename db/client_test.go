package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

// fakeDriver is an in-memory Driver recording the calls the client
// passes through to it.
type fakeDriver struct {
	initialized bool
	schemas     []SchemaVersion
	current     Version
	now         time.Time
	modified    time.Time
	dump        []map[string]any
	loaded      []map[string]any
	upgraded    []Version
	purged      []time.Time
	closed      bool
}

var _ Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		schemas: []SchemaVersion{
			{Version: Version{4, 0}, IO: ioschema.V4_0},
			{Version: Version{4, 1}, IO: ioschema.V4_1},
		},
	}
}

func (d *fakeDriver) IsInitialized(ctx context.Context) (bool, error) {
	return d.initialized, nil
}

func (d *fakeDriver) Init(ctx context.Context, version Version) error {
	d.initialized = true
	d.current = version
	return nil
}

func (d *fakeDriver) Cleanup(ctx context.Context) error {
	d.initialized = false
	d.current = Version{}
	return nil
}

func (d *fakeDriver) Empty(ctx context.Context) error {
	d.dump = nil
	return nil
}

func (d *fakeDriver) Purge(ctx context.Context, before time.Time) (bool, error) {
	d.purged = append(d.purged, before)
	return true, nil
}

func (d *fakeDriver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	return d.now, nil
}

func (d *fakeDriver) GetLastModified(ctx context.Context) (time.Time, error) {
	return d.modified, nil
}

func (d *fakeDriver) GetSchemas() []SchemaVersion {
	return d.schemas
}

func (d *fakeDriver) GetSchema(ctx context.Context) (SchemaVersion, error) {
	schema, _ := FindSchema(d.schemas, d.current)
	return schema, nil
}

func (d *fakeDriver) Upgrade(ctx context.Context, target Version) error {
	d.upgraded = append(d.upgraded, target)
	d.current = target
	return nil
}

func (d *fakeDriver) DumpIter(ctx context.Context, opts DumpOpts) (*Reports, error) {
	return ReportsOf(d.dump...), nil
}

func (d *fakeDriver) QueryIter(ctx context.Context, opts QueryOpts) (*Reports, error) {
	return ReportsOf(d.dump...), nil
}

func (d *fakeDriver) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	return map[string][]map[string]any{}, nil
}

func (d *fakeDriver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	d.loaded = append(d.loaded, data)
	return nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

func TestClientInit(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	client := NewClient(driver)

	require.NoError(t, client.Init(ctx, Version{4, 1}))
	assert.Equal(t, Version{4, 1}, driver.current)

	err := client.Init(ctx, Version{4, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestClientInitUnsupported(t *testing.T) {
	ctx := context.Background()
	client := NewClient(newFakeDriver())

	err := client.Init(ctx, Version{5, 0})
	require.Error(t, err)
	var unsupported *UnsupportedSchemaError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, Version{5, 0}, unsupported.Version)
}

func TestClientUpgrade(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	driver.initialized = true
	driver.current = Version{4, 0}
	client := NewClient(driver)

	// Upgrading to the current version is a no-op, not an error.
	require.NoError(t, client.Upgrade(ctx, Version{4, 0}))
	require.NoError(t, client.Upgrade(ctx, Version{4, 1}))
	assert.Equal(t, []Version{{4, 0}, {4, 1}}, driver.upgraded)

	err := client.Upgrade(ctx, Version{4, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than the current schema")

	err = client.Upgrade(ctx, Version{5, 0})
	var unsupported *UnsupportedSchemaError
	require.True(t, errors.As(err, &unsupported))
}

func TestClientLoad(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	driver.initialized = true
	driver.current = Version{4, 0}
	client := NewClient(driver)

	require.NoError(t, client.Load(ctx, ioschema.V4_0.NewData(), false))
	assert.Len(t, driver.loaded, 1)

	// Data newer than the database schema is rejected, not upgraded.
	err := client.Load(ctx, ioschema.V4_1.NewData(), false)
	require.Error(t, err)
	var incompatible *IncompatibleSchemaError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, Version{4, 0}, incompatible.DB)
	assert.Equal(t, Version{4, 1}, incompatible.Data)
	assert.Len(t, driver.loaded, 1)

	// Data older within the same major version loads directly.
	driver.current = Version{4, 1}
	require.NoError(t, client.Load(ctx, ioschema.V4_0.NewData(), false))
	assert.Len(t, driver.loaded, 2)

	require.Error(t, client.Load(ctx, map[string]any{}, false))
}

func TestClientDumpEmpty(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	driver.initialized = true
	driver.current = Version{4, 1}
	client := NewClient(driver)

	// An empty database dumps as a single empty report.
	data, err := client.Dump(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, ioschema.V4_1.NewData(), data)
}

func TestClientQuery(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	driver.initialized = true
	driver.current = Version{4, 1}
	report := ioschema.V4_1.NewData()
	report["checkouts"] = []any{map[string]any{"id": "origin:1", "origin": "origin"}}
	driver.dump = []map[string]any{report}
	client := NewClient(driver)

	data, err := client.Query(ctx, QueryOpts{IDs: map[string][]string{"checkouts": {"origin:1"}}})
	require.NoError(t, err)
	assert.Equal(t, report, data)

	_, err = client.QueryIter(ctx, QueryOpts{ObjectsPerReport: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid number of objects per report")
}

func TestClientUninitialized(t *testing.T) {
	ctx := context.Background()
	client := NewClient(newFakeDriver())

	check := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not initialized")
	}

	_, err := client.GetSchema(ctx)
	check(err)
	check(client.Cleanup(ctx))
	check(client.Empty(ctx))
	_, err = client.Purge(ctx, time.Time{})
	check(err)
	check(client.Upgrade(ctx, Version{4, 1}))
	_, err = client.DumpIter(ctx, DumpOpts{})
	check(err)
	_, err = client.QueryIter(ctx, QueryOpts{})
	check(err)
	_, err = client.OOQuery(ctx, orm.PatternSet{})
	check(err)
	check(client.Load(ctx, ioschema.V4_1.NewData(), false))
}

func TestClientDelegates(t *testing.T) {
	ctx := context.Background()
	driver := newFakeDriver()
	driver.initialized = true
	driver.current = Version{4, 1}
	driver.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	driver.modified = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	client := NewClient(driver)

	now, err := client.GetCurrentTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, driver.now, now)

	modified, err := client.GetLastModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, driver.modified, modified)

	supported, err := client.Purge(ctx, driver.now)
	require.NoError(t, err)
	assert.True(t, supported)
	assert.Equal(t, []time.Time{driver.now}, driver.purged)

	require.NoError(t, client.Close())
	assert.True(t, driver.closed)
}
