package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/db/sql/schema"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
)

// Column constructors for the PostgreSQL types. Values cross the wire
// in pgx's native Go representations, so fewer conversions are needed
// than with drivers speaking text.

func textColumn(constraint ...schema.Constraint) *schema.Column {
	return &schema.Column{Type: "TEXT", Constraint: first(constraint)}
}

func varcharColumn(length int) *schema.Column {
	return &schema.Column{Type: fmt.Sprintf("CHARACTER VARYING (%d)", length)}
}

func boolColumn(constraint ...schema.Constraint) *schema.Column {
	return &schema.Column{Type: "BOOLEAN", Constraint: first(constraint)}
}

func integerColumn(constraint ...schema.Constraint) *schema.Column {
	return &schema.Column{
		Type:       "INTEGER",
		Constraint: first(constraint),
		Pack:       packInt,
		Unpack:     unpackInt,
	}
}

func realColumn() *schema.Column {
	return &schema.Column{Type: "DOUBLE PRECISION"}
}

func jsonColumn(constraint ...schema.Constraint) *schema.Column {
	return &schema.Column{
		Type:       "JSONB",
		Constraint: first(constraint),
		Pack:       packJSON,
	}
}

func timestampColumn(constraint ...schema.Constraint) *schema.Column {
	return &schema.Column{
		Type:       "TIMESTAMP WITH TIME ZONE",
		Constraint: first(constraint),
		Pack:       packTimestamp,
		Unpack:     unpackTimestamp,
	}
}

// metadataTimestampColumn is the _timestamp column recording object
// arrival time, present in every table from schema version 4.2 on.
// Deduplication keeps the latest arrival time, and purging compares
// against it.
func metadataTimestampColumn() *schema.Column {
	return &schema.Column{
		Type:         "TIMESTAMP WITH TIME ZONE",
		ConflictFunc: "GREATEST",
		MetadataExpr: "CURRENT_TIMESTAMP",
		Pack:         packTimestamp,
		Unpack:       unpackTimestamp,
	}
}

func first(constraint []schema.Constraint) schema.Constraint {
	if len(constraint) > 0 {
		return constraint[0]
	}
	return schema.NoConstraint
}

func packInt(value any) (any, error) {
	switch n := value.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return nil, kcerr.Fmt("integer column value %v has a fraction", n)
		}
		return int64(n), nil
	}
	return nil, kcerr.Fmt("integer column value is %T, not an integer", value)
}

// unpackInt widens the INTEGER values pgx decodes to the int64 the
// interchange data carries.
func unpackInt(value any) (any, error) {
	switch n := value.(type) {
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return nil, kcerr.Fmt("integer column value is %T, not an integer", value)
}

// packJSON renders a value as JSON text, which pgx passes to JSONB
// columns verbatim. No unpacking is needed: pgx decodes JSONB values
// back into their Go representations itself.
func packJSON(value any) (any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, kcerr.Wrap(err)
	}
	return string(encoded), nil
}

func packTimestamp(value any) (any, error) {
	text, ok := value.(string)
	if !ok {
		return nil, kcerr.Fmt("timestamp column value is %T, not a string", value)
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return nil, kcerr.Wrapf(err, "parsing timestamp %q", text)
	}
	return t.UTC(), nil
}

func unpackTimestamp(value any) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, kcerr.Fmt("timestamp column value is %T, not a time", value)
	}
	return formatTimestamp(t), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "+00:00"
}

// A version is one PostgreSQL database schema version: the tables
// keeping the report objects, the queries producing raw
// object-oriented data, and the migration from the preceding version.
type version struct {
	number db.Version
	io     *ioschema.Version
	// tables holds one table per interchange object list, in object
	// list order.
	tables []table
	// ooQueries maps object type names to their raw OO data queries.
	ooQueries map[string]ooQuery
	// inherit migrates a database complying with the preceding schema
	// version. Nil for the oldest version.
	inherit func(ctx context.Context, tx pgx.Tx) error
	// canPurge is set when the schema tracks object arrival times.
	canPurge bool
}

type table struct {
	name   string
	schema *schema.Table
}

// An ooQuery produces the raw data of one object type: the statement,
// and the table schema describing its result columns in statement
// order.
type ooQuery struct {
	statement string
	table     *schema.Table
}

type tableDef struct {
	name       string
	columns    []schema.NamedColumn
	primaryKey []string
}

func newTable(def tableDef) *schema.Table {
	return schema.NewTable(schema.TableParams{
		Placeholder: schema.Dollar,
		Columns:     def.columns,
		PrimaryKey:  def.primaryKey,
	})
}

func buildTables(defs []tableDef) []table {
	tables := make([]table, len(defs))
	for i, def := range defs {
		tables[i] = table{def.name, newTable(def)}
	}
	return tables
}

func tableDefsV40() []tableDef {
	return []tableDef{
		{
			name: "checkouts",
			columns: []schema.NamedColumn{
				{Name: "id", Column: textColumn(schema.PrimaryKey)},
				{Name: "origin", Column: textColumn(schema.NotNull)},
				{Name: "tree_name", Column: textColumn()},
				{Name: "git_repository_url", Column: textColumn()},
				{Name: "git_commit_hash", Column: textColumn()},
				{Name: "git_commit_name", Column: textColumn()},
				{Name: "git_repository_branch", Column: textColumn()},
				{Name: "patchset_files", Column: jsonColumn()},
				{Name: "patchset_hash", Column: textColumn()},
				{Name: "message_id", Column: textColumn()},
				{Name: "comment", Column: textColumn()},
				{Name: "start_time", Column: timestampColumn()},
				{Name: "contacts", Column: jsonColumn()},
				{Name: "log_url", Column: textColumn()},
				{Name: "log_excerpt", Column: varcharColumn(16384)},
				{Name: "valid", Column: boolColumn()},
				{Name: "misc", Column: jsonColumn()},
			},
		},
		{
			name: "builds",
			columns: []schema.NamedColumn{
				{Name: "checkout_id", Column: textColumn(schema.NotNull)},
				{Name: "id", Column: textColumn(schema.PrimaryKey)},
				{Name: "origin", Column: textColumn(schema.NotNull)},
				{Name: "comment", Column: textColumn()},
				{Name: "start_time", Column: timestampColumn()},
				{Name: "duration", Column: realColumn()},
				{Name: "architecture", Column: textColumn()},
				{Name: "command", Column: textColumn()},
				{Name: "compiler", Column: textColumn()},
				{Name: "input_files", Column: jsonColumn()},
				{Name: "output_files", Column: jsonColumn()},
				{Name: "config_name", Column: textColumn()},
				{Name: "config_url", Column: textColumn()},
				{Name: "log_url", Column: textColumn()},
				{Name: "log_excerpt", Column: varcharColumn(16384)},
				{Name: "valid", Column: boolColumn()},
				{Name: "misc", Column: jsonColumn()},
			},
		},
		{
			name: "tests",
			columns: []schema.NamedColumn{
				{Name: "build_id", Column: textColumn(schema.NotNull)},
				{Name: "id", Column: textColumn(schema.PrimaryKey)},
				{Name: "origin", Column: textColumn(schema.NotNull)},
				{Name: "environment.comment", Column: textColumn()},
				{Name: "environment.misc", Column: jsonColumn()},
				{Name: "path", Column: textColumn()},
				{Name: "comment", Column: textColumn()},
				{Name: "log_url", Column: textColumn()},
				{Name: "log_excerpt", Column: varcharColumn(16384)},
				{Name: "status", Column: textColumn()},
				{Name: "waived", Column: boolColumn()},
				{Name: "start_time", Column: timestampColumn()},
				{Name: "duration", Column: realColumn()},
				{Name: "output_files", Column: jsonColumn()},
				{Name: "misc", Column: jsonColumn()},
			},
		},
	}
}

func tableDefsV41() []tableDef {
	return append(tableDefsV40(),
		tableDef{
			name: "issues",
			columns: []schema.NamedColumn{
				{Name: "id", Column: textColumn(schema.NotNull)},
				{Name: "version", Column: integerColumn(schema.NotNull)},
				{Name: "origin", Column: textColumn(schema.NotNull)},
				{Name: "report_url", Column: textColumn()},
				{Name: "report_subject", Column: textColumn()},
				{Name: "culprit.code", Column: boolColumn()},
				{Name: "culprit.tool", Column: boolColumn()},
				{Name: "culprit.harness", Column: boolColumn()},
				{Name: "build_valid", Column: boolColumn()},
				{Name: "test_status", Column: textColumn()},
				{Name: "comment", Column: textColumn()},
				{Name: "misc", Column: jsonColumn()},
			},
			primaryKey: []string{"id", "version"},
		},
		tableDef{
			name: "incidents",
			columns: []schema.NamedColumn{
				{Name: "id", Column: textColumn(schema.PrimaryKey)},
				{Name: "origin", Column: textColumn(schema.NotNull)},
				{Name: "issue_id", Column: textColumn(schema.NotNull)},
				{Name: "issue_version", Column: integerColumn(schema.NotNull)},
				{Name: "build_id", Column: textColumn()},
				{Name: "test_id", Column: textColumn()},
				{Name: "present", Column: boolColumn()},
				{Name: "comment", Column: textColumn()},
				{Name: "misc", Column: jsonColumn()},
			},
		},
	)
}

func tableDefsV42() []tableDef {
	defs := tableDefsV41()
	for i := range defs {
		defs[i].columns = append(
			[]schema.NamedColumn{{Name: "_timestamp", Column: metadataTimestampColumn()}},
			defs[i].columns...)
	}
	return defs
}

func newOOTable(columns ...schema.NamedColumn) *schema.Table {
	return schema.NewTable(schema.TableParams{
		Placeholder: schema.Dollar,
		Columns:     columns,
	})
}

func ooQueriesV40() map[string]ooQuery {
	return map[string]ooQuery{
		// PostgreSQL rejects bare columns under GROUP BY, so the
		// per-revision fields go through the FIRST() aggregate created
		// at initialization.
		"revision": {
			statement: "SELECT\n" +
				"    git_commit_hash,\n" +
				"    patchset_hash,\n" +
				"    FIRST(patchset_files) AS patchset_files,\n" +
				"    FIRST(git_commit_name) AS git_commit_name\n" +
				"FROM checkouts\n" +
				"GROUP BY git_commit_hash, patchset_hash",
			table: newOOTable(
				schema.NamedColumn{Name: "git_commit_hash", Column: textColumn()},
				schema.NamedColumn{Name: "patchset_hash", Column: textColumn()},
				schema.NamedColumn{Name: "patchset_files", Column: jsonColumn()},
				schema.NamedColumn{Name: "git_commit_name", Column: textColumn()},
			),
		},
		"checkout": {
			statement: "SELECT\n" +
				"    id,\n" +
				"    git_commit_hash,\n" +
				"    patchset_hash,\n" +
				"    origin,\n" +
				"    git_repository_url,\n" +
				"    git_repository_branch,\n" +
				"    tree_name,\n" +
				"    message_id,\n" +
				"    start_time,\n" +
				"    log_url,\n" +
				"    comment,\n" +
				"    valid,\n" +
				"    misc\n" +
				"FROM checkouts",
			table: newOOTable(
				schema.NamedColumn{Name: "id", Column: textColumn()},
				schema.NamedColumn{Name: "git_commit_hash", Column: textColumn()},
				schema.NamedColumn{Name: "patchset_hash", Column: textColumn()},
				schema.NamedColumn{Name: "origin", Column: textColumn()},
				schema.NamedColumn{Name: "git_repository_url", Column: textColumn()},
				schema.NamedColumn{Name: "git_repository_branch", Column: textColumn()},
				schema.NamedColumn{Name: "tree_name", Column: textColumn()},
				schema.NamedColumn{Name: "message_id", Column: textColumn()},
				schema.NamedColumn{Name: "start_time", Column: timestampColumn()},
				schema.NamedColumn{Name: "log_url", Column: textColumn()},
				schema.NamedColumn{Name: "comment", Column: textColumn()},
				schema.NamedColumn{Name: "valid", Column: boolColumn()},
				schema.NamedColumn{Name: "misc", Column: jsonColumn()},
			),
		},
		"build": {
			statement: "SELECT\n" +
				"    id,\n" +
				"    checkout_id,\n" +
				"    origin,\n" +
				"    start_time,\n" +
				"    duration,\n" +
				"    architecture,\n" +
				"    command,\n" +
				"    compiler,\n" +
				"    input_files,\n" +
				"    output_files,\n" +
				"    config_name,\n" +
				"    config_url,\n" +
				"    log_url,\n" +
				"    comment,\n" +
				"    valid,\n" +
				"    misc\n" +
				"FROM builds",
			table: newOOTable(
				schema.NamedColumn{Name: "id", Column: textColumn()},
				schema.NamedColumn{Name: "checkout_id", Column: textColumn()},
				schema.NamedColumn{Name: "origin", Column: textColumn()},
				schema.NamedColumn{Name: "start_time", Column: timestampColumn()},
				schema.NamedColumn{Name: "duration", Column: realColumn()},
				schema.NamedColumn{Name: "architecture", Column: textColumn()},
				schema.NamedColumn{Name: "command", Column: textColumn()},
				schema.NamedColumn{Name: "compiler", Column: textColumn()},
				schema.NamedColumn{Name: "input_files", Column: jsonColumn()},
				schema.NamedColumn{Name: "output_files", Column: jsonColumn()},
				schema.NamedColumn{Name: "config_name", Column: textColumn()},
				schema.NamedColumn{Name: "config_url", Column: textColumn()},
				schema.NamedColumn{Name: "log_url", Column: textColumn()},
				schema.NamedColumn{Name: "comment", Column: textColumn()},
				schema.NamedColumn{Name: "valid", Column: boolColumn()},
				schema.NamedColumn{Name: "misc", Column: jsonColumn()},
			),
		},
		"test": {
			statement: "SELECT\n" +
				"    id,\n" +
				"    build_id,\n" +
				"    origin,\n" +
				"    path,\n" +
				"    environment_comment,\n" +
				"    environment_misc,\n" +
				"    status,\n" +
				"    waived,\n" +
				"    start_time,\n" +
				"    duration,\n" +
				"    output_files,\n" +
				"    log_url,\n" +
				"    comment,\n" +
				"    misc\n" +
				"FROM tests",
			table: newOOTable(
				schema.NamedColumn{Name: "id", Column: textColumn()},
				schema.NamedColumn{Name: "build_id", Column: textColumn()},
				schema.NamedColumn{Name: "origin", Column: textColumn()},
				schema.NamedColumn{Name: "path", Column: textColumn()},
				schema.NamedColumn{Name: "environment_comment", Column: textColumn()},
				schema.NamedColumn{Name: "environment_misc", Column: jsonColumn()},
				schema.NamedColumn{Name: "status", Column: textColumn()},
				schema.NamedColumn{Name: "waived", Column: boolColumn()},
				schema.NamedColumn{Name: "start_time", Column: timestampColumn()},
				schema.NamedColumn{Name: "duration", Column: realColumn()},
				schema.NamedColumn{Name: "output_files", Column: jsonColumn()},
				schema.NamedColumn{Name: "log_url", Column: textColumn()},
				schema.NamedColumn{Name: "comment", Column: textColumn()},
				schema.NamedColumn{Name: "misc", Column: jsonColumn()},
			),
		},
		"issue": {
			statement: "SELECT\n" +
				"    NULL AS id,\n" +
				"    NULL AS origin\n" +
				"WHERE FALSE",
			table: issueOOTable(),
		},
		"issue_version": {
			statement: "SELECT\n" +
				"    NULL AS id,\n" +
				"    NULL AS version_num,\n" +
				"    NULL AS origin,\n" +
				"    NULL AS report_url,\n" +
				"    NULL AS report_subject,\n" +
				"    NULL AS culprit_code,\n" +
				"    NULL AS culprit_tool,\n" +
				"    NULL AS culprit_harness,\n" +
				"    NULL AS build_valid,\n" +
				"    NULL AS test_status,\n" +
				"    NULL AS comment,\n" +
				"    NULL AS misc\n" +
				"WHERE FALSE",
			table: issueVersionOOTable(),
		},
		"incident": {
			statement: "SELECT\n" +
				"    NULL AS id,\n" +
				"    NULL AS origin,\n" +
				"    NULL AS issue_id,\n" +
				"    NULL AS issue_version_num,\n" +
				"    NULL AS build_id,\n" +
				"    NULL AS test_id,\n" +
				"    NULL AS present,\n" +
				"    NULL AS comment,\n" +
				"    NULL AS misc\n" +
				"WHERE FALSE",
			table: incidentOOTable(),
		},
	}
}

func ooQueriesV41() map[string]ooQuery {
	queries := ooQueriesV40()
	// The issue view resolves each issue to its latest version.
	queries["issue"] = ooQuery{
		statement: "SELECT\n" +
			"    id,\n" +
			"    origin\n" +
			"FROM (\n" +
			"    SELECT\n" +
			"        id,\n" +
			"        origin,\n" +
			"        ROW_NUMBER() OVER (\n" +
			"            PARTITION BY id\n" +
			"            ORDER BY version DESC\n" +
			"        ) AS precedence\n" +
			"    FROM issues\n" +
			") AS prioritized_issues\n" +
			"WHERE precedence = 1",
		table: issueOOTable(),
	}
	queries["issue_version"] = ooQuery{
		statement: "SELECT\n" +
			"    id,\n" +
			"    version AS version_num,\n" +
			"    origin,\n" +
			"    report_url,\n" +
			"    report_subject,\n" +
			"    culprit_code,\n" +
			"    culprit_tool,\n" +
			"    culprit_harness,\n" +
			"    build_valid,\n" +
			"    test_status,\n" +
			"    comment,\n" +
			"    misc\n" +
			"FROM issues",
		table: issueVersionOOTable(),
	}
	queries["incident"] = ooQuery{
		statement: "SELECT\n" +
			"    id,\n" +
			"    origin,\n" +
			"    issue_id,\n" +
			"    issue_version AS issue_version_num,\n" +
			"    build_id,\n" +
			"    test_id,\n" +
			"    present,\n" +
			"    comment,\n" +
			"    misc\n" +
			"FROM incidents",
		table: incidentOOTable(),
	}
	return queries
}

func issueOOTable() *schema.Table {
	return newOOTable(
		schema.NamedColumn{Name: "id", Column: textColumn()},
		schema.NamedColumn{Name: "origin", Column: textColumn()},
	)
}

func issueVersionOOTable() *schema.Table {
	return newOOTable(
		schema.NamedColumn{Name: "id", Column: textColumn()},
		schema.NamedColumn{Name: "version_num", Column: integerColumn()},
		schema.NamedColumn{Name: "origin", Column: textColumn()},
		schema.NamedColumn{Name: "report_url", Column: textColumn()},
		schema.NamedColumn{Name: "report_subject", Column: textColumn()},
		schema.NamedColumn{Name: "culprit_code", Column: boolColumn()},
		schema.NamedColumn{Name: "culprit_tool", Column: boolColumn()},
		schema.NamedColumn{Name: "culprit_harness", Column: boolColumn()},
		schema.NamedColumn{Name: "build_valid", Column: boolColumn()},
		schema.NamedColumn{Name: "test_status", Column: textColumn()},
		schema.NamedColumn{Name: "comment", Column: textColumn()},
		schema.NamedColumn{Name: "misc", Column: jsonColumn()},
	)
}

func incidentOOTable() *schema.Table {
	return newOOTable(
		schema.NamedColumn{Name: "id", Column: textColumn()},
		schema.NamedColumn{Name: "origin", Column: textColumn()},
		schema.NamedColumn{Name: "issue_id", Column: textColumn()},
		schema.NamedColumn{Name: "issue_version_num", Column: integerColumn()},
		schema.NamedColumn{Name: "build_id", Column: textColumn()},
		schema.NamedColumn{Name: "test_id", Column: textColumn()},
		schema.NamedColumn{Name: "present", Column: boolColumn()},
		schema.NamedColumn{Name: "comment", Column: textColumn()},
		schema.NamedColumn{Name: "misc", Column: jsonColumn()},
	)
}

// inheritV41 creates the tables v4.1 adds over v4.0.
func inheritV41(ctx context.Context, tx pgx.Tx) error {
	defs := tableDefsV41()
	for _, def := range defs[len(tableDefsV40()):] {
		if _, err := tx.Exec(ctx, newTable(def).FormatCreate(def.name)); err != nil {
			return kcerr.Wrapf(err, "creating table %q", def.name)
		}
	}
	return nil
}

// inheritV42 adds the _timestamp column to every table, backfilling it
// from start_time where the table has one.
func inheritV42(ctx context.Context, tx pgx.Tx) error {
	for _, def := range tableDefsV42() {
		t := newTable(def)
		column := t.Column("_timestamp")
		if _, err := tx.Exec(ctx,
			"ALTER TABLE "+def.name+" ADD COLUMN "+column.FormatDef()); err != nil {
			return kcerr.Wrapf(err, "adding column %s to table %q", column.Name, def.name)
		}
		expr := column.Schema.MetadataExpr
		if t.Column("start_time") != nil {
			expr = "COALESCE(start_time, " + expr + ")"
		}
		if _, err := tx.Exec(ctx,
			"UPDATE "+def.name+" SET "+column.Name+" = "+expr+
				" WHERE "+column.Name+" IS NULL"); err != nil {
			return kcerr.Wrapf(err, "backfilling column %s of table %q", column.Name, def.name)
		}
	}
	return nil
}

// The driver's schema versions, oldest first.
var versions = []*version{
	{
		number:    db.Version{Major: 4, Minor: 0},
		io:        ioschema.V4_0,
		tables:    buildTables(tableDefsV40()),
		ooQueries: ooQueriesV40(),
	},
	{
		number:    db.Version{Major: 4, Minor: 1},
		io:        ioschema.V4_1,
		tables:    buildTables(tableDefsV41()),
		ooQueries: ooQueriesV41(),
		inherit:   inheritV41,
	},
	{
		number:    db.Version{Major: 4, Minor: 2},
		io:        ioschema.V4_1,
		tables:    buildTables(tableDefsV42()),
		ooQueries: ooQueriesV41(),
		inherit:   inheritV42,
		canPurge:  true,
	},
}
