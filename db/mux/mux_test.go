package mux

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/db/dbtest"
	"go.kernelci.org/kcidb/db/sqlite"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

// fakeDriver is a configurable in-memory member recording the calls
// the mux makes on it.
type fakeDriver struct {
	schemas        []db.SchemaVersion
	initialized    bool
	current        int
	inits          []db.Version
	upgrades       []db.Version
	loads          []map[string]any
	report         map[string]any
	objects        map[string][]map[string]any
	serverTime     time.Time
	lastModified   time.Time
	purgeSupported bool
	purges         []time.Time
	closed         bool
	closeErr       error
}

var _ db.Driver = (*fakeDriver)(nil)

func (f *fakeDriver) setCurrent(version db.Version) {
	for i, s := range f.schemas {
		if s.Version == version {
			f.current = i
			return
		}
	}
	panic("fake driver has no schema version " + version.String())
}

func (f *fakeDriver) IsInitialized(ctx context.Context) (bool, error) {
	return f.initialized, nil
}

func (f *fakeDriver) Init(ctx context.Context, version db.Version) error {
	f.inits = append(f.inits, version)
	f.setCurrent(version)
	f.initialized = true
	return nil
}

func (f *fakeDriver) Cleanup(ctx context.Context) error {
	f.initialized = false
	return nil
}

func (f *fakeDriver) Empty(ctx context.Context) error { return nil }

func (f *fakeDriver) Purge(ctx context.Context, before time.Time) (bool, error) {
	f.purges = append(f.purges, before)
	return f.purgeSupported, nil
}

func (f *fakeDriver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	return f.serverTime, nil
}

func (f *fakeDriver) GetLastModified(ctx context.Context) (time.Time, error) {
	return f.lastModified, nil
}

func (f *fakeDriver) GetSchemas() []db.SchemaVersion { return f.schemas }

func (f *fakeDriver) GetSchema(ctx context.Context) (db.SchemaVersion, error) {
	if !f.initialized {
		return db.SchemaVersion{}, errors.New("not initialized")
	}
	return f.schemas[f.current], nil
}

func (f *fakeDriver) Upgrade(ctx context.Context, target db.Version) error {
	f.upgrades = append(f.upgrades, target)
	f.setCurrent(target)
	return nil
}

func (f *fakeDriver) DumpIter(ctx context.Context, opts db.DumpOpts) (*db.Reports, error) {
	return db.ReportsOf(f.report), nil
}

func (f *fakeDriver) QueryIter(ctx context.Context, opts db.QueryOpts) (*db.Reports, error) {
	return db.ReportsOf(f.report), nil
}

func (f *fakeDriver) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	return f.objects, nil
}

func (f *fakeDriver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	f.loads = append(f.loads, data)
	return nil
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return f.closeErr
}

// fullHistory returns a five-version member schema list, one major
// version per interchange schema generation.
func fullHistory() []db.SchemaVersion {
	out := make([]db.SchemaVersion, len(ioschema.History))
	for i, io := range ioschema.History {
		out[i] = db.SchemaVersion{Version: db.Version{Major: i + 1}, IO: io}
	}
	return out
}

func newMux(t *testing.T, drivers ...db.Driver) *Driver {
	t.Helper()
	d, err := New(context.Background(), drivers)
	require.NoError(t, err)
	return d
}

// Two uninitialized members with full five-version histories yield a
// nine-step composite lattice alternating member advances, with a
// major bump on every step and the interchange schema of each step
// trailing the most-behind member.
func TestCompositeVersions(t *testing.T) {
	a := &fakeDriver{schemas: fullHistory()}
	b := &fakeDriver{schemas: fullHistory()}
	d := newMux(t, a, b)

	schemas := d.GetSchemas()
	require.Len(t, schemas, 9)
	wantIO := []*ioschema.Version{
		ioschema.V1_1, ioschema.V1_1,
		ioschema.V2_0, ioschema.V2_0,
		ioschema.V3_0, ioschema.V3_0,
		ioschema.V4_0, ioschema.V4_0,
		ioschema.V4_1,
	}
	for i, schema := range schemas {
		assert.Equal(t, db.Version{Major: i}, schema.Version)
		assert.Same(t, wantIO[i], schema.IO)
	}
	for i, step := range d.schemas {
		assert.Equal(t, db.Version{Major: 1 + (i+1)/2}, step.members[0])
		assert.Equal(t, db.Version{Major: 1 + i/2}, step.members[1])
	}
}

// Initialized members start the lattice at their current versions, so
// composite (0, 0) describes the databases as found.
func TestCompositeVersionsInitialized(t *testing.T) {
	a := &fakeDriver{schemas: fullHistory(), initialized: true, current: 2}
	b := &fakeDriver{schemas: fullHistory(), initialized: true, current: 1}
	d := newMux(t, a, b)

	schemas := d.GetSchemas()
	require.Len(t, schemas, 6)
	for i, schema := range schemas {
		assert.Equal(t, db.Version{Major: i}, schema.Version)
	}
	assert.Equal(t, []db.Version{{Major: 3}, {Major: 2}}, d.schemas[0].members)
	assert.Equal(t, []db.Version{{Major: 5}, {Major: 5}}, d.schemas[5].members)

	schema, err := d.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.Version{}, schema.Version)
	assert.Same(t, ioschema.V2_0, schema.IO)
}

func TestInconsistentState(t *testing.T) {
	ctx := context.Background()
	a := &fakeDriver{schemas: fullHistory(), initialized: true}
	b := &fakeDriver{schemas: fullHistory()}
	_, err := New(ctx, []db.Driver{a, b})
	require.ErrorIs(t, err, ErrInconsistentState)

	b.initialized = true
	d := newMux(t, a, b)
	b.initialized = false
	_, err = d.IsInitialized(ctx)
	require.ErrorIs(t, err, ErrInconsistentState)
	_, err = d.GetSchema(ctx)
	require.ErrorIs(t, err, ErrInconsistentState)
}

func TestInitAppliesMemberVersions(t *testing.T) {
	ctx := context.Background()
	a := &fakeDriver{schemas: fullHistory()}
	b := &fakeDriver{schemas: fullHistory()}
	d := newMux(t, a, b)

	var unsupported *db.UnsupportedSchemaError
	err := d.Init(ctx, db.Version{Major: 9, Minor: 9})
	require.ErrorAs(t, err, &unsupported)

	require.NoError(t, d.Init(ctx, db.Version{Major: 3}))
	assert.Equal(t, []db.Version{{Major: 3}}, a.inits)
	assert.Equal(t, []db.Version{{Major: 2}}, b.inits)

	schema, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 3}, schema.Version)
	assert.Same(t, ioschema.V2_0, schema.IO)

	err = d.Init(ctx, db.Version{Major: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestUpgradeWalksSteps(t *testing.T) {
	ctx := context.Background()
	a := &fakeDriver{schemas: fullHistory()}
	b := &fakeDriver{schemas: fullHistory()}
	d := newMux(t, a, b)
	require.NoError(t, d.Init(ctx, db.Version{Major: 3}))

	require.NoError(t, d.Upgrade(ctx, db.Version{Major: 6}))
	assert.Equal(t, []db.Version{{Major: 3}, {Major: 4}, {Major: 4}}, a.upgrades)
	assert.Equal(t, []db.Version{{Major: 3}, {Major: 3}, {Major: 4}}, b.upgrades)

	schema, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 6}, schema.Version)
	assert.Same(t, ioschema.V4_0, schema.IO)

	err = d.Upgrade(ctx, db.Version{Major: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than the current schema")

	var unsupported *db.UnsupportedSchemaError
	err = d.Upgrade(ctx, db.Version{Major: 9, Minor: 9})
	require.ErrorAs(t, err, &unsupported)
}

// Loads reach every member; members on a newer interchange schema
// receive an upgraded copy, with the caller's data left untouched.
func TestLoadFansOutUpgrading(t *testing.T) {
	ctx := context.Background()
	a := &fakeDriver{
		schemas:     []db.SchemaVersion{{Version: db.Version{Major: 1}, IO: ioschema.V3_0}},
		initialized: true,
	}
	b := &fakeDriver{
		schemas:     []db.SchemaVersion{{Version: db.Version{Major: 1}, IO: ioschema.V4_1}},
		initialized: true,
	}
	d := newMux(t, a, b)

	schema, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Same(t, ioschema.V3_0, schema.IO)

	data := map[string]any{
		"version": map[string]any{"major": 3, "minor": 0},
		"revisions": []any{
			map[string]any{
				"id":            "kernelci:revision1",
				"origin":        "kernelci",
				"patchset_hash": "",
			},
		},
	}
	require.NoError(t, d.Load(ctx, data, false))

	require.Len(t, a.loads, 1)
	assert.Contains(t, a.loads[0], "revisions")

	require.Len(t, b.loads, 1)
	assert.NotContains(t, b.loads[0], "revisions")
	require.Contains(t, b.loads[0], "checkouts")
	assert.Equal(t, map[string]any{"major": 4, "minor": 1}, b.loads[0]["version"])

	// The original was copied, not upgraded in place.
	assert.Contains(t, data, "revisions")
	assert.Equal(t, map[string]any{"major": 3, "minor": 0}, data["version"])
}

func TestReadsFromFirstMember(t *testing.T) {
	ctx := context.Background()
	a := &fakeDriver{
		schemas:     fullHistory(),
		initialized: true,
		report:      map[string]any{"member": "first"},
		objects:     map[string][]map[string]any{"checkout": {{"id": "kernelci:checkout1"}}},
	}
	b := &fakeDriver{
		schemas:     fullHistory(),
		initialized: true,
		report:      map[string]any{"member": "second"},
		objects:     map[string][]map[string]any{"checkout": {{"id": "kernelci:checkout2"}}},
	}
	d := newMux(t, a, b)

	reports, err := d.DumpIter(ctx, db.DumpOpts{})
	require.NoError(t, err)
	require.True(t, reports.Next())
	assert.Equal(t, map[string]any{"member": "first"}, reports.Report())
	require.NoError(t, reports.Close())

	reports, err = d.QueryIter(ctx, db.QueryOpts{})
	require.NoError(t, err)
	require.True(t, reports.Next())
	assert.Equal(t, map[string]any{"member": "first"}, reports.Report())
	require.NoError(t, reports.Close())

	objects, err := d.OOQuery(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, a.objects, objects)
}

func TestTimes(t *testing.T) {
	ctx := context.Background()
	early := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)
	a := &fakeDriver{schemas: fullHistory(), serverTime: late, lastModified: early}
	b := &fakeDriver{schemas: fullHistory(), serverTime: early, lastModified: late}
	d := newMux(t, a, b)

	current, err := d.GetCurrentTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, early, current)

	modified, err := d.GetLastModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, late, modified)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	a := &fakeDriver{schemas: fullHistory(), purgeSupported: true}
	b := &fakeDriver{schemas: fullHistory()}
	d := newMux(t, a, b)
	supported, err := d.Purge(ctx, before)
	require.NoError(t, err)
	assert.False(t, supported)
	assert.Equal(t, []time.Time{before}, a.purges)
	assert.Equal(t, []time.Time{before}, b.purges)

	b.purgeSupported = true
	supported, err = d.Purge(ctx, before)
	require.NoError(t, err)
	assert.True(t, supported)
}

func TestClose(t *testing.T) {
	a := &fakeDriver{schemas: fullHistory()}
	b := &fakeDriver{schemas: fullHistory(), closeErr: errors.New("refused")}
	c := &fakeDriver{schemas: fullHistory()}
	d := newMux(t, a, b, c)

	err := d.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.True(t, c.closed)
}

func TestOpenParams(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Database parameters must be specified")

	empty := "   "
	_, err = Open(ctx, &empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No databases specified")

	unterminated := `sqlite::memory:\`
	_, err = Open(ctx, &unterminated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incomplete escape sequence")

	unknown := "bogus:whatever"
	_, err = Open(ctx, &unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Unknown driver "bogus"`)
}

// End to end over two file-backed SQLite members: loads land in both
// databases, reads come from the first.
func TestSQLiteMembers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.db")
	pathB := filepath.Join(dir, "b.db")

	driver, err := db.Open(ctx, "mux:sqlite:"+pathA+" sqlite:"+pathB)
	require.NoError(t, err)

	schemas := driver.GetSchemas()
	require.Len(t, schemas, 5)
	assert.Equal(t, db.Version{}, schemas[0].Version)
	assert.Equal(t, db.Version{Minor: 4}, schemas[4].Version)

	require.NoError(t, driver.Init(ctx, db.Version{Minor: 4}))
	data := map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{"id": "kernelci:checkout1", "origin": "kernelci"},
		},
	}
	require.NoError(t, driver.Load(ctx, data, false))

	reports, err := driver.DumpIter(ctx, db.DumpOpts{})
	require.NoError(t, err)
	require.True(t, reports.Next())
	assert.Len(t, reports.Report()["checkouts"], 1)
	require.NoError(t, reports.Close())
	require.NoError(t, driver.Close())

	// Both member databases got the data, at schema v4.2.
	for _, path := range []string{pathA, pathB} {
		member, err := sqlite.Open(ctx, &path)
		require.NoError(t, err)
		schema, err := member.GetSchema(ctx)
		require.NoError(t, err)
		assert.Equal(t, db.Version{Major: 4, Minor: 2}, schema.Version)
		reports, err := member.DumpIter(ctx, db.DumpOpts{})
		require.NoError(t, err)
		require.True(t, reports.Next())
		assert.Len(t, reports.Report()["checkouts"], 1)
		require.NoError(t, reports.Close())
		require.NoError(t, member.Close())
	}
}

func TestDriverConformance(t *testing.T) {
	for name, subTest := range dbtest.SubTests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			driver, err := db.Open(ctx, "mux:sqlite:"+filepath.Join(dir, "a.db")+
				" sqlite:"+filepath.Join(dir, "b.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = driver.Close() })
			subTest(t, driver)
		})
	}
}
