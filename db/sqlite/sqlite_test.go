package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/db/dbtest"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

func openMemory(t *testing.T) *Driver {
	t.Helper()
	params := ":memory:"
	driver, err := Open(context.Background(), &params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	return driver.(*Driver)
}

func openPath(t *testing.T, path string) *Driver {
	t.Helper()
	driver, err := Open(context.Background(), &path)
	require.NoError(t, err)
	return driver.(*Driver)
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

// loadedData returns interchange data with one object of every v4.1
// list, related top to bottom.
func loadedData() map[string]any {
	return map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{
				"id":              "origin:checkout1",
				"origin":          "origin",
				"git_commit_hash": "aabbccdd",
				"patchset_hash":   "",
				"start_time":      "2025-08-14T23:08:06.967000+00:00",
				"valid":           true,
				"misc":            map[string]any{"report": "first"},
			},
		},
		"builds": []any{
			map[string]any{
				"id":           "origin:build1",
				"checkout_id":  "origin:checkout1",
				"origin":       "origin",
				"architecture": "x86_64",
				"duration":     600.0,
				"input_files": []any{
					map[string]any{
						"name": "config",
						"url":  "https://example.com/config",
					},
				},
			},
		},
		"tests": []any{
			map[string]any{
				"id":       "origin:test1",
				"build_id": "origin:build1",
				"origin":   "origin",
				"path":     "ltp.sem01",
				"status":   "FAIL",
				"waived":   false,
				"environment": map[string]any{
					"comment": "qemu-x86",
					"misc":    map[string]any{"arch": "x86_64"},
				},
			},
		},
		"issues": []any{
			map[string]any{
				"id":         "origin:issue1",
				"version":    int64(1),
				"origin":     "origin",
				"report_url": "https://bugs.example.com/1",
				"culprit":    map[string]any{"code": true},
				"comment":    "broken semaphores",
			},
		},
		"incidents": []any{
			map[string]any{
				"id":            "origin:incident1",
				"origin":        "origin",
				"issue_id":      "origin:issue1",
				"issue_version": int64(1),
				"build_id":      "origin:build1",
				"test_id":       "origin:test1",
				"present":       true,
			},
		},
	}
}

func TestOpenParams(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Database parameters must be specified")

	params := "!:memory:"
	driver, err := Open(ctx, &params)
	require.NoError(t, err)
	defer driver.Close()
	d := driver.(*Driver)
	assert.True(t, d.loadPrioDB)
	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestOpenEscapedBang(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	ctx := context.Background()
	params := "!!reports.db"
	driver, err := Open(ctx, &params)
	require.NoError(t, err)
	defer driver.Close()
	require.NoError(t, driver.Init(ctx, db.Version{Major: 4, Minor: 2}))
	_, err = os.Stat("!reports.db")
	require.NoError(t, err)
}

func TestGetSchemas(t *testing.T) {
	d := openMemory(t)
	schemas := d.GetSchemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, db.Version{Major: 4, Minor: 0}, schemas[0].Version)
	assert.Same(t, ioschema.V4_0, schemas[0].IO)
	assert.Equal(t, db.Version{Major: 4, Minor: 1}, schemas[1].Version)
	assert.Same(t, ioschema.V4_1, schemas[1].IO)
	assert.Equal(t, db.Version{Major: 4, Minor: 2}, schemas[2].Version)
	assert.Same(t, ioschema.V4_1, schemas[2].IO)
}

func TestInitCleanup(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)

	_, err := d.GetSchema(ctx)
	require.Error(t, err)

	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 0}))
	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 0}, sv.Version)
	assert.Same(t, ioschema.V4_0, sv.IO)

	err = d.Init(ctx, db.Version{Major: 4, Minor: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")

	require.NoError(t, d.Cleanup(ctx))
	initialized, err = d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)

	// The tables are gone, so a newer version initializes cleanly.
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 2}))
	sv, err = d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 2}, sv.Version)
}

func TestInitUnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	err := d.Init(ctx, db.Version{Major: 9, Minor: 9})
	require.Error(t, err)
	var unsupported *db.UnsupportedSchemaError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, db.Version{Major: 9, Minor: 9}, unsupported.Version)
}

func TestReopenResolvesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")

	d := openPath(t, path)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Close())

	d = openPath(t, path)
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 1}, sv.Version)

	// A database written by a newer minor version of the schema is
	// accessed with the latest older schema of the same major version.
	_, err = d.conn.ExecContext(ctx, "PRAGMA user_version = 4005")
	require.NoError(t, err)
	require.NoError(t, d.Close())
	d = openPath(t, path)
	sv, err = d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 2}, sv.Version)

	// A different major version is out of reach.
	_, err = d.conn.ExecContext(ctx, "PRAGMA user_version = 5000")
	require.NoError(t, err)
	require.NoError(t, d.Close())
	_, err = Open(ctx, &path)
	require.Error(t, err)
	var unsupported *db.UnsupportedSchemaError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, db.Version{Major: 5, Minor: 0}, unsupported.Version)
}

func TestLoadDumpRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))

	require.NoError(t, d.Load(ctx, loadedData(), false))

	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	require.Len(t, reports, 1)
	assert.Equal(t, loadedData(), reports[0])
}

func TestDumpEmpty(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	assert.Empty(t, reports)
}

func TestDumpChunked(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 0}))

	data := map[string]any{
		"version": map[string]any{"major": 4, "minor": 0},
		"checkouts": []any{
			map[string]any{"id": "origin:1", "origin": "origin"},
			map[string]any{"id": "origin:2", "origin": "origin"},
		},
		"builds": []any{
			map[string]any{
				"id": "origin:build1", "checkout_id": "origin:1", "origin": "origin",
			},
		},
	}
	require.NoError(t, d.Load(ctx, data, false))

	iter, err := d.DumpIter(ctx, db.DumpOpts{ObjectsPerReport: 2})
	reports := collect(t, iter, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 2, ioschema.V4_0.ObjectCount(reports[0]))
	assert.Len(t, reports[0]["checkouts"], 2)
	assert.Equal(t, 1, ioschema.V4_0.ObjectCount(reports[1]))
	assert.Len(t, reports[1]["builds"], 1)
}

func TestEmpty(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	require.NoError(t, d.Empty(ctx))

	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	assert.Empty(t, reports)
	initialized, err := d.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func queryLists(t *testing.T, d *Driver, opts db.QueryOpts) map[string][]string {
	t.Helper()
	iter, err := d.QueryIter(context.Background(), opts)
	reports := collect(t, iter, err)
	ids := map[string][]string{}
	for _, report := range reports {
		for _, listName := range ioschema.V4_1.ObjectLists {
			list, _ := report[listName].([]any)
			for _, item := range list {
				obj := item.(map[string]any)
				ids[listName] = append(ids[listName], obj["id"].(string))
			}
		}
	}
	return ids
}

func TestQueryRelations(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	// Nothing requested matches nothing.
	assert.Empty(t, queryLists(t, d, db.QueryOpts{}))

	// A plain ID match fetches just the object.
	assert.Equal(t,
		map[string][]string{"checkouts": {"origin:checkout1"}},
		queryLists(t, d, db.QueryOpts{
			IDs: map[string][]string{"checkouts": {"origin:checkout1"}},
		}))

	// Parents walks from a test up to its checkout, but not sideways.
	assert.Equal(t,
		map[string][]string{
			"checkouts": {"origin:checkout1"},
			"builds":    {"origin:build1"},
			"tests":     {"origin:test1"},
		},
		queryLists(t, d, db.QueryOpts{
			IDs:     map[string][]string{"tests": {"origin:test1"}},
			Parents: true,
		}))

	// Children walks from a checkout down to incidents, but does not
	// pull in the incidents' issues.
	assert.Equal(t,
		map[string][]string{
			"checkouts": {"origin:checkout1"},
			"builds":    {"origin:build1"},
			"tests":     {"origin:test1"},
			"incidents": {"origin:incident1"},
		},
		queryLists(t, d, db.QueryOpts{
			IDs:      map[string][]string{"checkouts": {"origin:checkout1"}},
			Children: true,
		}))

	// Issues reach their incidents directly.
	assert.Equal(t,
		map[string][]string{
			"issues":    {"origin:issue1"},
			"incidents": {"origin:incident1"},
		},
		queryLists(t, d, db.QueryOpts{
			IDs:      map[string][]string{"issues": {"origin:issue1"}},
			Children: true,
		}))
}

func queryOO(t *testing.T, d *Driver, patternString string) map[string][]map[string]any {
	t.Helper()
	patterns, err := orm.ParsePatterns(patternString, nil, nil)
	require.NoError(t, err)
	response, err := d.OOQuery(context.Background(), patterns)
	require.NoError(t, err)
	return response
}

func TestOOQueryObjects(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	assert.Equal(t,
		map[string][]map[string]any{
			"checkout": {{
				"id":                    "origin:checkout1",
				"git_commit_hash":       "aabbccdd",
				"patchset_hash":         "",
				"origin":                "origin",
				"git_repository_url":    nil,
				"git_repository_branch": nil,
				"tree_name":             nil,
				"message_id":            nil,
				"start_time":            "2025-08-14T23:08:06.967000+00:00",
				"log_url":               nil,
				"comment":               nil,
				"valid":                 true,
				"misc":                  map[string]any{"report": "first"},
			}},
		},
		queryOO(t, d, ">checkout[origin:checkout1]#"))

	assert.Equal(t,
		map[string][]map[string]any{
			"build": {{
				"id":           "origin:build1",
				"checkout_id":  "origin:checkout1",
				"origin":       "origin",
				"start_time":   nil,
				"duration":     600.0,
				"architecture": "x86_64",
				"command":      nil,
				"compiler":     nil,
				"input_files": []any{
					map[string]any{
						"name": "config",
						"url":  "https://example.com/config",
					},
				},
				"output_files": nil,
				"config_name":  nil,
				"config_url":   nil,
				"log_url":      nil,
				"comment":      nil,
				"valid":        nil,
				"misc":         nil,
			}},
		},
		queryOO(t, d, ">checkout[origin:checkout1]>build#"))

	// Parent traversal from a test back to its checkout.
	response := queryOO(t, d, ">test[origin:test1]<build<checkout#")
	require.Len(t, response, 1)
	require.Len(t, response["checkout"], 1)
	assert.Equal(t, "origin:checkout1", response["checkout"][0]["id"])

	// Revisions are deduplicated from checkouts by the commit and
	// patchset hashes.
	assert.Equal(t,
		map[string][]map[string]any{
			"revision": {{
				"git_commit_hash": "aabbccdd",
				"patchset_hash":   "",
				"patchset_files":  nil,
				"git_commit_name": nil,
			}},
		},
		queryOO(t, d, `>revision[aabbccdd, ""]#`))

	// A non-matching ID produces an empty, non-nil entry.
	response = queryOO(t, d, ">checkout[origin:nonexistent]#")
	require.Contains(t, response, "checkout")
	assert.NotNil(t, response["checkout"])
	assert.Empty(t, response["checkout"])
}

func TestOOQueryIssues(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	assert.Equal(t,
		map[string][]map[string]any{
			"issue": {{
				"id":     "origin:issue1",
				"origin": "origin",
			}},
			"issue_version": {{
				"id":              "origin:issue1",
				"version_num":     int64(1),
				"origin":          "origin",
				"report_url":      "https://bugs.example.com/1",
				"report_subject":  nil,
				"culprit_code":    true,
				"culprit_tool":    nil,
				"culprit_harness": nil,
				"build_valid":     nil,
				"test_status":     nil,
				"comment":         "broken semaphores",
				"misc":            nil,
			}},
			"incident": {{
				"id":                "origin:incident1",
				"origin":            "origin",
				"issue_id":          "origin:issue1",
				"issue_version_num": int64(1),
				"build_id":          "origin:build1",
				"test_id":           "origin:test1",
				"present":           true,
				"comment":           nil,
				"misc":              nil,
			}},
		},
		queryOO(t, d, ">issue[origin:issue1]#>issue_version#>incident#"))
}

func TestOOQueryEmptyIDList(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	// Empty ID lists match nothing, including for types whose queries
	// already filter rows.
	response := queryOO(t, d, ">checkout[]#")
	require.Contains(t, response, "checkout")
	assert.Empty(t, response["checkout"])

	response = queryOO(t, d, ">issue[]#")
	require.Contains(t, response, "issue")
	assert.Empty(t, response["issue"])
}

func TestOOQueryLatestIssueVersion(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	require.NoError(t, d.Load(ctx, loadedData(), false))

	// A second definition version of the same issue.
	require.NoError(t, d.Load(ctx, map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"issues": []any{
			map[string]any{
				"id":      "origin:issue1",
				"version": int64(2),
				"origin":  "origin",
				"comment": "broken semaphores, take two",
			},
		},
	}, false))

	// The issue resolves to a single object, while every definition
	// version remains reachable.
	response := queryOO(t, d, ">issue[origin:issue1]#>issue_version#")
	require.Len(t, response["issue"], 1)
	require.Len(t, response["issue_version"], 2)
	versions := []int64{
		response["issue_version"][0]["version_num"].(int64),
		response["issue_version"][1]["version_num"].(int64),
	}
	assert.ElementsMatch(t, []int64{1, 2}, versions)
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 0}))

	startTime := "2025-08-14T23:08:06.967000+00:00"
	require.NoError(t, d.Load(ctx, map[string]any{
		"version": map[string]any{"major": 4, "minor": 0},
		"checkouts": []any{
			map[string]any{
				"id": "origin:checkout1", "origin": "origin",
				"start_time": startTime,
			},
		},
		"builds": []any{
			map[string]any{
				"id": "origin:build1", "checkout_id": "origin:checkout1",
				"origin": "origin",
			},
		},
	}, false))

	require.NoError(t, d.Upgrade(ctx, db.Version{Major: 4, Minor: 2}))
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 2}, sv.Version)
	assert.Same(t, ioschema.V4_1, sv.IO)

	// Arrival times are backfilled from start times where present, and
	// generated otherwise.
	iter, err := d.DumpIter(ctx, db.DumpOpts{WithMetadata: true})
	reports := collect(t, iter, err)
	require.Len(t, reports, 1)
	checkout := reports[0]["checkouts"].([]any)[0].(map[string]any)
	assert.Equal(t, startTime, checkout["_timestamp"])
	build := reports[0]["builds"].([]any)[0].(map[string]any)
	assert.NotEmpty(t, build["_timestamp"])

	// Without metadata the dump carries the original data only.
	iter, err = d.DumpIter(ctx, db.DumpOpts{})
	reports = collect(t, iter, err)
	require.Len(t, reports, 1)
	checkout = reports[0]["checkouts"].([]any)[0].(map[string]any)
	assert.NotContains(t, checkout, "_timestamp")

	// The upgraded database accepts the lists v4.1 added.
	require.NoError(t, d.Load(ctx, map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"issues": []any{
			map[string]any{
				"id": "origin:issue1", "version": int64(1), "origin": "origin",
			},
		},
	}, false))
	ids := queryLists(t, d, db.QueryOpts{
		IDs: map[string][]string{"issues": {"origin:issue1"}},
	})
	assert.Equal(t, map[string][]string{"issues": {"origin:issue1"}}, ids)
}

func TestUpgradeOrder(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))

	// Upgrading to the current version is a no-op.
	require.NoError(t, d.Upgrade(ctx, db.Version{Major: 4, Minor: 1}))
	sv, err := d.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Version{Major: 4, Minor: 1}, sv.Version)

	err = d.Upgrade(ctx, db.Version{Major: 4, Minor: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than the current schema")

	err = d.Upgrade(ctx, db.Version{Major: 9, Minor: 9})
	require.Error(t, err)
	var unsupported *db.UnsupportedSchemaError
	assert.True(t, errors.As(err, &unsupported))
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	// Schemas without arrival times cannot purge.
	d := openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 1}))
	supported, err := d.Purge(ctx, time.Time{})
	require.NoError(t, err)
	assert.False(t, supported)

	d = openMemory(t)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 2}))

	// A zero time only probes support.
	supported, err = d.Purge(ctx, time.Time{})
	require.NoError(t, err)
	assert.True(t, supported)

	require.NoError(t, d.Load(ctx, map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{
				"id": "origin:old", "origin": "origin",
				"_timestamp": "2000-01-01T00:00:00.000000+00:00",
			},
			map[string]any{
				"id": "origin:new", "origin": "origin",
				"_timestamp": "2100-01-01T00:00:00.000000+00:00",
			},
		},
	}, true))

	supported, err = d.Purge(ctx, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, supported)

	ids := queryLists(t, d, db.QueryOpts{
		IDs: map[string][]string{"checkouts": {"origin:old", "origin:new"}},
	})
	assert.Equal(t, map[string][]string{"checkouts": {"origin:new"}}, ids)
}

func TestLoadPriority(t *testing.T) {
	ctx := context.Background()
	params := "!:memory:"
	driver, err := Open(ctx, &params)
	require.NoError(t, err)
	defer driver.Close()
	d := driver.(*Driver)
	require.NoError(t, d.Init(ctx, db.Version{Major: 4, Minor: 0}))

	load := func(checkout map[string]any) {
		t.Helper()
		require.NoError(t, d.Load(ctx, map[string]any{
			"version":   map[string]any{"major": 4, "minor": 0},
			"checkouts": []any{checkout},
		}, false))
	}

	// The first load populates the row; priority flips to the loaded
	// data for the second one, and back to the database for the third.
	load(map[string]any{
		"id": "origin:1", "origin": "origin", "comment": "first", "valid": true,
	})
	load(map[string]any{
		"id": "origin:1", "origin": "origin", "comment": "second",
		"tree_name": "mainline",
	})
	load(map[string]any{
		"id": "origin:1", "origin": "origin", "comment": "third",
		"log_url": "https://logs.example.com/1",
	})

	iter, err := d.DumpIter(ctx, db.DumpOpts{})
	reports := collect(t, iter, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []any{
		map[string]any{
			"id":        "origin:1",
			"origin":    "origin",
			"comment":   "second",
			"tree_name": "mainline",
			"valid":     true,
			"log_url":   "https://logs.example.com/1",
		},
	}, reports[0]["checkouts"])
}

func TestUninitialized(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)

	_, err := d.DumpIter(ctx, db.DumpOpts{})
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.QueryIter(ctx, db.QueryOpts{})
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.OOQuery(ctx, orm.PatternSet{})
	assert.ErrorContains(t, err, "not initialized")
	err = d.Load(ctx, loadedData(), false)
	assert.ErrorContains(t, err, "not initialized")
	err = d.Empty(ctx)
	assert.ErrorContains(t, err, "not initialized")
	err = d.Cleanup(ctx)
	assert.ErrorContains(t, err, "not initialized")
	_, err = d.Purge(ctx, time.Time{})
	assert.ErrorContains(t, err, "not initialized")
	err = d.Upgrade(ctx, db.Version{Major: 4, Minor: 1})
	assert.ErrorContains(t, err, "not initialized")
}

func TestDriverConformance(t *testing.T) {
	for name, subTest := range dbtest.SubTests {
		t.Run(name, func(t *testing.T) {
			subTest(t, openMemory(t))
		})
	}
}
