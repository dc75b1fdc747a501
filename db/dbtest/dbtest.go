// Package dbtest has common code for tests of implementations of
// db.Driver.
//
// Each subtest expects a freshly opened driver on an uninitialized
// database and may leave it initialized and populated. Versions are
// taken from the driver's own schema list, so the suite runs against
// any driver storing reports, including composite ones with synthetic
// version numbering.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

// Data returns interchange data of the given schema version with one
// object in every list it defines, related top to bottom.
func Data(io *ioschema.Version) map[string]any {
	data := io.NewData()
	data["checkouts"] = []any{
		map[string]any{
			"id":              "origin:checkout1",
			"origin":          "origin",
			"git_commit_hash": "aabbccdd",
			"patchset_hash":   "",
			"start_time":      "2025-08-14T23:08:06.967000+00:00",
			"valid":           true,
			"misc":            map[string]any{"report": "first"},
		},
	}
	data["builds"] = []any{
		map[string]any{
			"id":           "origin:build1",
			"checkout_id":  "origin:checkout1",
			"origin":       "origin",
			"architecture": "x86_64",
			"duration":     600.0,
		},
	}
	data["tests"] = []any{
		map[string]any{
			"id":       "origin:test1",
			"build_id": "origin:build1",
			"origin":   "origin",
			"path":     "ltp.sem01",
			"status":   "FAIL",
			"waived":   false,
		},
	}
	if hasList(io, "issues") {
		data["issues"] = []any{
			map[string]any{
				"id":      "origin:issue1",
				"version": int64(1),
				"origin":  "origin",
				"culprit": map[string]any{"code": true},
			},
		}
		data["incidents"] = []any{
			map[string]any{
				"id":            "origin:incident1",
				"origin":        "origin",
				"issue_id":      "origin:issue1",
				"issue_version": int64(1),
				"test_id":       "origin:test1",
				"present":       true,
			},
		}
	}
	return data
}

func hasList(io *ioschema.Version, name string) bool {
	for _, listName := range io.ObjectLists {
		if listName == name {
			return true
		}
	}
	return false
}

func latestSchema(t *testing.T, d db.Driver) db.SchemaVersion {
	t.Helper()
	schemas := d.GetSchemas()
	require.NotEmpty(t, schemas)
	return schemas[len(schemas)-1]
}

func collect(t *testing.T, reports *db.Reports, err error) []map[string]any {
	t.Helper()
	require.NoError(t, err)
	defer reports.Close()
	var out []map[string]any
	for reports.Next() {
		out = append(out, reports.Report())
	}
	require.NoError(t, reports.Err())
	return out
}

func queryLists(t *testing.T, d db.Driver, io *ioschema.Version, opts db.QueryOpts) map[string][]string {
	t.Helper()
	iter, err := d.QueryIter(context.Background(), opts)
	reports := collect(t, iter, err)
	ids := map[string][]string{}
	for _, report := range reports {
		for _, listName := range io.ObjectLists {
			list, _ := report[listName].([]any)
			for _, item := range list {
				obj := item.(map[string]any)
				ids[listName] = append(ids[listName], obj["id"].(string))
			}
		}
	}
	return ids
}

func queryOO(t *testing.T, d db.Driver, patternString string) map[string][]map[string]any {
	t.Helper()
	patterns, err := orm.ParsePatterns(patternString, nil, nil)
	require.NoError(t, err)
	response, err := d.OOQuery(context.Background(), patterns)
	require.NoError(t, err)
	return response
}

// InitCleanup tests the initialization lifecycle across the driver's
// advertised schema versions.
func InitCleanup(t *testing.T, d db.Driver) {
	ctx := context.Background()
	schemas := d.GetSchemas()
	require.NotEmpty(t, schemas)

	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	require.False(t, initialized)
	_, err = d.GetSchema(ctx)
	require.Error(t, err)

	require.NoError(t, d.Init(ctx, schemas[0].Version))
	initialized, err = d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemas[0].Version, sv.Version)
	assert.Same(t, schemas[0].IO, sv.IO)

	err = d.Init(ctx, schemas[0].Version)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")

	require.NoError(t, d.Cleanup(ctx))
	initialized, err = d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)

	latest := schemas[len(schemas)-1]
	require.NoError(t, d.Init(ctx, latest.Version))
	sv, err = d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest.Version, sv.Version)
}

// LoadDumpRoundTrip tests that loaded data dumps back unchanged.
func LoadDumpRoundTrip(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	require.NoError(t, d.Load(ctx, Data(latest.IO), false))

	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	require.Len(t, reports, 1)
	assert.Equal(t, Data(latest.IO), reports[0])
}

// DumpChunked tests that dumps split into reports of at most the
// requested object count, covering all the data.
func DumpChunked(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	data := Data(latest.IO)
	require.NoError(t, d.Load(ctx, data, false))

	iter, err := d.DumpIter(ctx, db.DumpOpts{ObjectsPerReport: 2})
	reports := collect(t, iter, err)
	count := 0
	for _, report := range reports {
		n := latest.IO.ObjectCount(report)
		assert.Positive(t, n)
		assert.LessOrEqual(t, n, 2)
		count += n
	}
	assert.Equal(t, latest.IO.ObjectCount(data), count)
}

// Empty tests that emptying removes the data but not the schema.
func Empty(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	require.NoError(t, d.Load(ctx, Data(latest.IO), false))

	require.NoError(t, d.Empty(ctx))

	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	assert.Empty(t, reports)
	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

// QueryRelations tests object ID queries and relation traversal both
// ways along the interchange object graph.
func QueryRelations(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	require.NoError(t, d.Load(ctx, Data(latest.IO), false))

	// Nothing requested matches nothing.
	assert.Empty(t, queryLists(t, d, latest.IO, db.QueryOpts{}))

	// A plain ID match fetches just the object.
	assert.Equal(t,
		map[string][]string{"checkouts": {"origin:checkout1"}},
		queryLists(t, d, latest.IO, db.QueryOpts{
			IDs: map[string][]string{"checkouts": {"origin:checkout1"}},
		}))

	// Parents walks from a test up to its checkout.
	assert.Equal(t,
		map[string][]string{
			"checkouts": {"origin:checkout1"},
			"builds":    {"origin:build1"},
			"tests":     {"origin:test1"},
		},
		queryLists(t, d, latest.IO, db.QueryOpts{
			IDs:     map[string][]string{"tests": {"origin:test1"}},
			Parents: true,
		}))

	// Children walks from the checkout to every descendant.
	want := map[string][]string{
		"checkouts": {"origin:checkout1"},
		"builds":    {"origin:build1"},
		"tests":     {"origin:test1"},
	}
	if hasList(latest.IO, "incidents") {
		want["incidents"] = []string{"origin:incident1"}
	}
	assert.Equal(t, want,
		queryLists(t, d, latest.IO, db.QueryOpts{
			IDs:      map[string][]string{"checkouts": {"origin:checkout1"}},
			Children: true,
		}))
}

// OOQueryObjects tests object-oriented pattern queries against the
// loaded data.
func OOQueryObjects(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	require.NoError(t, d.Load(ctx, Data(latest.IO), false))

	response := queryOO(t, d, ">checkout[origin:checkout1]#")
	require.Len(t, response["checkout"], 1)
	checkout := response["checkout"][0]
	assert.Equal(t, "origin:checkout1", checkout["id"])
	assert.Equal(t, true, checkout["valid"])
	assert.Equal(t, map[string]any{"report": "first"}, checkout["misc"])

	// Child traversal from the checkout to its builds.
	response = queryOO(t, d, ">checkout[origin:checkout1]>build#")
	require.Len(t, response["build"], 1)
	assert.Equal(t, "origin:build1", response["build"][0]["id"])

	// Parent traversal from a test back to its checkout.
	response = queryOO(t, d, ">test[origin:test1]<build<checkout#")
	require.Len(t, response["checkout"], 1)
	assert.Equal(t, "origin:checkout1", response["checkout"][0]["id"])

	// Revisions deduplicate checkouts by commit and patchset hashes.
	response = queryOO(t, d, `>revision[aabbccdd, ""]#`)
	require.Len(t, response["revision"], 1)
	assert.Equal(t, "aabbccdd", response["revision"][0]["git_commit_hash"])

	// A non-matching ID produces an empty, non-nil entry, and so does
	// an empty ID list.
	response = queryOO(t, d, ">checkout[origin:nonexistent]#")
	require.Contains(t, response, "checkout")
	assert.NotNil(t, response["checkout"])
	assert.Empty(t, response["checkout"])

	response = queryOO(t, d, ">checkout[]#")
	require.Contains(t, response, "checkout")
	assert.Empty(t, response["checkout"])
}

// OOQuerySubtree tests that requesting the whole subtree of a
// checkout with no builds returns the checkout and empty child lists,
// not an error.
func OOQuerySubtree(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	data := latest.IO.NewData()
	data["checkouts"] = []any{
		map[string]any{"id": "origin:1", "origin": "origin"},
	}
	require.NoError(t, d.Load(ctx, data, false))

	response := queryOO(t, d, `>checkout["origin:1"]#>*#`)
	require.Len(t, response["checkout"], 1)
	assert.Equal(t, "origin:1", response["checkout"][0]["id"])
	for _, typeName := range []string{"build", "test", "incident"} {
		require.Contains(t, response, typeName)
		assert.Empty(t, response[typeName])
	}
}

// Upgrade tests that upgrading from the oldest schema version to the
// latest preserves the loaded data.
func Upgrade(t *testing.T, d db.Driver) {
	ctx := context.Background()
	schemas := d.GetSchemas()
	require.NotEmpty(t, schemas)
	oldest, latest := schemas[0], schemas[len(schemas)-1]
	require.NoError(t, d.Init(ctx, oldest.Version))
	require.NoError(t, d.Load(ctx, Data(oldest.IO), false))

	require.NoError(t, d.Upgrade(ctx, latest.Version))
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest.Version, sv.Version)
	assert.Same(t, latest.IO, sv.IO)

	want := Data(oldest.IO)
	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	require.Len(t, reports, 1)
	assert.Equal(t, want["checkouts"], reports[0]["checkouts"])
	assert.Equal(t, want["builds"], reports[0]["builds"])
	assert.Equal(t, want["tests"], reports[0]["tests"])

	// Upgrading to the current version is a no-op, downgrading an
	// error.
	require.NoError(t, d.Upgrade(ctx, latest.Version))
	if oldest.Version != latest.Version {
		err = d.Upgrade(ctx, oldest.Version)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "older than the current schema")
	}
}

// Purge tests that data older than a cutoff can be removed, where the
// driver supports purging at its latest schema version.
func Purge(t *testing.T, d db.Driver) {
	ctx := context.Background()
	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))

	// A zero time only probes support.
	supported, err := d.Purge(ctx, time.Time{})
	require.NoError(t, err)
	if !supported {
		t.Skip("the driver does not support purging")
	}

	data := latest.IO.NewData()
	data["checkouts"] = []any{
		map[string]any{
			"id": "origin:old", "origin": "origin",
			"_timestamp": "2000-01-01T00:00:00.000000+00:00",
		},
		map[string]any{
			"id": "origin:new", "origin": "origin",
			"_timestamp": "2100-01-01T00:00:00.000000+00:00",
		},
	}
	require.NoError(t, d.Load(ctx, data, true))

	supported, err = d.Purge(ctx, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, supported)

	ids := queryLists(t, d, latest.IO, db.QueryOpts{
		IDs: map[string][]string{"checkouts": {"origin:old", "origin:new"}},
	})
	assert.Equal(t, map[string][]string{"checkouts": {"origin:new"}}, ids)
}

// Times tests the server clock and modification time reporting.
// Drivers that do not track modification times report the zero time.
func Times(t *testing.T, d db.Driver) {
	ctx := context.Background()

	// The server clock is readable without initialization.
	now, err := d.GetCurrentTime(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), now, time.Hour)

	latest := latestSchema(t, d)
	require.NoError(t, d.Init(ctx, latest.Version))
	require.NoError(t, d.Load(ctx, Data(latest.IO), false))

	modified, err := d.GetLastModified(ctx)
	require.NoError(t, err)
	if !modified.IsZero() {
		assert.WithinDuration(t, now, modified, time.Hour)
	}
}

// Uninitialized tests that data operations refuse to run before
// initialization.
func Uninitialized(t *testing.T, d db.Driver) {
	ctx := context.Background()

	_, err := d.DumpIter(ctx, db.DumpOpts{})
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.QueryIter(ctx, db.QueryOpts{})
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.OOQuery(ctx, orm.PatternSet{})
	assert.ErrorContains(t, err, "not initialized")
	err = d.Load(ctx, Data(latestSchema(t, d).IO), false)
	assert.ErrorContains(t, err, "not initialized")
	err = d.Empty(ctx)
	assert.ErrorContains(t, err, "not initialized")
	err = d.Cleanup(ctx)
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.Purge(ctx, time.Time{})
	assert.ErrorContains(t, err, "not initialized")
	err = d.Upgrade(ctx, latestSchema(t, d).Version)
	assert.ErrorContains(t, err, "not initialized")
}

// SubTestFunction is a func we will call to test one aspect of an
// implementation of db.Driver.
type SubTestFunction func(t *testing.T, d db.Driver)

// SubTests are all the subtests we have for db.Driver.
var SubTests = map[string]SubTestFunction{
	"Driver_InitCleanup":       InitCleanup,
	"Driver_LoadDumpRoundTrip": LoadDumpRoundTrip,
	"Driver_DumpChunked":       DumpChunked,
	"Driver_Empty":             Empty,
	"Driver_QueryRelations":    QueryRelations,
	"Driver_OOQueryObjects":    OOQueryObjects,
	"Driver_OOQuerySubtree":    OOQuerySubtree,
	"Driver_Upgrade":           Upgrade,
	"Driver_Purge":             Purge,
	"Driver_Times":             Times,
	"Driver_Uninitialized":     Uninitialized,
}
