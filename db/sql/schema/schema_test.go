package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "id", QuoteName("id"))
	assert.Equal(t, "_timestamp", QuoteName("_timestamp"))
	assert.Equal(t, "environment_comment", QuoteName("environment_comment"))
	assert.Equal(t, `"0id"`, QuoteName("0id"))
	assert.Equal(t, `"some name"`, QuoteName("some name"))
	assert.Equal(t, `"a""b"`, QuoteName(`a"b`))
	assert.Equal(t, `""`, QuoteName(""))
}

func testTable() *Table {
	return NewTable(TableParams{
		Placeholder: Question,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			{"origin", &Column{Type: "TEXT", Constraint: NotNull}},
			{"misc", &Column{Type: "TEXT"}},
			{"environment.comment", &Column{Type: "TEXT"}},
		},
	})
}

func TestFormatCreate(t *testing.T) {
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS tests (\n"+
			"    id TEXT PRIMARY KEY,\n"+
			"    origin TEXT NOT NULL,\n"+
			"    misc TEXT,\n"+
			"    environment_comment TEXT\n"+
			")",
		testTable().FormatCreate("tests"))
}

func TestFormatCreateExplicitPrimaryKey(t *testing.T) {
	table := NewTable(TableParams{
		Placeholder: Question,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: NotNull}},
			{"version", &Column{Type: "INTEGER", Constraint: NotNull}},
			{"origin", &Column{Type: "TEXT", Constraint: NotNull}},
		},
		PrimaryKey: []string{"id", "version"},
	})
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS issues (\n"+
			"    id TEXT NOT NULL,\n"+
			"    version INTEGER NOT NULL,\n"+
			"    origin TEXT NOT NULL,\n"+
			"    PRIMARY KEY(id, version)\n"+
			")",
		table.FormatCreate("issues"))
}

func TestFormatInsert(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO tests (\n"+
			"    id,\n"+
			"    origin,\n"+
			"    misc,\n"+
			"    environment_comment\n"+
			")\n"+
			"VALUES (\n"+
			"    ?, ?, ?, ?\n"+
			")\n"+
			"ON CONFLICT (id) DO UPDATE SET\n"+
			"    origin = COALESCE(excluded.origin, tests.origin),\n"+
			"    misc = COALESCE(excluded.misc, tests.misc),\n"+
			"    environment_comment = COALESCE(excluded.environment_comment, tests.environment_comment)",
		testTable().FormatInsert("tests", false, true))

	// With database priority the COALESCE pair flips.
	assert.Contains(t,
		testTable().FormatInsert("tests", true, true),
		"origin = COALESCE(tests.origin, excluded.origin)")
}

func TestFormatInsertMetadata(t *testing.T) {
	table := NewTable(TableParams{
		Placeholder: Question,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			{"_timestamp", &Column{
				Type:         "TEXT",
				ConflictFunc: "MAX",
				MetadataExpr: "strftime('%Y-%m-%dT%H:%M:%f000+00:00', 'now')",
			}},
			{"comment", &Column{Type: "TEXT"}},
		},
	})

	// Without metadata the column value comes from the generating
	// expression and takes no query parameter.
	insert := table.FormatInsert("tests", false, false)
	assert.Contains(t, insert,
		"    ?, (strftime('%Y-%m-%dT%H:%M:%f000+00:00', 'now')), ?\n")
	assert.Contains(t, insert,
		"    _timestamp = MAX(tests._timestamp, excluded._timestamp)")

	insert = table.FormatInsert("tests", false, true)
	assert.Contains(t, insert, "    ?, ?, ?\n")
	assert.Contains(t, insert,
		"    _timestamp = MAX(tests._timestamp, excluded._timestamp)")
}

func TestFormatInsertDollarPlaceholders(t *testing.T) {
	table := NewTable(TableParams{
		Placeholder: Dollar,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			{"origin", &Column{Type: "TEXT"}},
		},
	})
	assert.Contains(t, table.FormatInsert("tests", false, true), "    $1, $2\n")
}

func TestFormatDump(t *testing.T) {
	assert.Equal(t,
		"SELECT id, origin, misc, environment_comment FROM tests",
		testTable().FormatDump("tests", false))
	assert.Equal(t, "DELETE FROM tests", testTable().FormatDelete("tests"))
}

func TestFormatDumpMetadata(t *testing.T) {
	table := NewTable(TableParams{
		Placeholder: Question,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			{"_timestamp", &Column{Type: "TEXT", MetadataExpr: "datetime('now')"}},
		},
	})
	assert.Equal(t, "SELECT id FROM tests", table.FormatDump("tests", false))
	assert.Equal(t, "SELECT id, _timestamp FROM tests", table.FormatDump("tests", true))
}

func TestPack(t *testing.T) {
	row, err := testTable().Pack(map[string]any{
		"id":          "origin:1",
		"origin":      "origin",
		"environment": map[string]any{"comment": "venv"},
		"unknown":     "dropped",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"origin:1", "origin", nil, "venv"}, row)

	// Missing branches pack as NULL.
	row, err = testTable().Pack(map[string]any{"id": "origin:2"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"origin:2", nil, nil, nil}, row)
}

func TestUnpack(t *testing.T) {
	table := testTable()
	obj, err := table.Unpack([]any{"origin:1", "origin", nil, "venv"}, true, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":          "origin:1",
		"origin":      "origin",
		"environment": map[string]any{"comment": "venv"},
	}, obj)

	// Keeping NULLs fills every column.
	obj, err = table.Unpack([]any{"origin:1", nil, nil, nil}, true, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":          "origin:1",
		"origin":      nil,
		"misc":        nil,
		"environment": map[string]any{"comment": nil},
	}, obj)

	_, err = table.Unpack([]any{"origin:1"}, true, true)
	require.Error(t, err)
}

func TestPackUnpackConversions(t *testing.T) {
	calls := 0
	table := NewTable(TableParams{
		Placeholder: Question,
		Columns: []NamedColumn{
			{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			{"valid", &Column{
				Type: "INT",
				Pack: func(v any) (any, error) {
					calls++
					if v.(bool) {
						return int64(1), nil
					}
					return int64(0), nil
				},
				Unpack: func(v any) (any, error) {
					return v.(int64) != 0, nil
				},
			}},
		},
	})
	row, err := table.Pack(map[string]any{"id": "x", "valid": true}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", int64(1)}, row)
	assert.Equal(t, 1, calls)

	obj, err := table.Unpack(row, true, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x", "valid": true}, obj)

	// Conversions never see NULLs.
	row, err = table.Pack(map[string]any{"id": "x"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", nil}, row)
	assert.Equal(t, 1, calls)
}

func TestNewTablePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewTable(TableParams{Columns: []NamedColumn{{"id", &Column{Type: "TEXT"}}}})
	})
	assert.Panics(t, func() {
		NewTable(TableParams{
			Placeholder: Question,
			Columns: []NamedColumn{
				{"id", &Column{Type: "TEXT", Constraint: PrimaryKey}},
				{"id", &Column{Type: "TEXT"}},
			},
		})
	})
	assert.Panics(t, func() {
		NewTable(TableParams{
			Placeholder: Question,
			Columns: []NamedColumn{
				{"a", &Column{Type: "TEXT", Constraint: PrimaryKey}},
				{"b", &Column{Type: "TEXT", Constraint: PrimaryKey}},
			},
		})
	})
	assert.Panics(t, func() {
		NewTable(TableParams{
			Placeholder: Question,
			Columns:     []NamedColumn{{"a", &Column{Type: "TEXT"}}},
			PrimaryKey:  []string{"missing"},
		})
	})
}
