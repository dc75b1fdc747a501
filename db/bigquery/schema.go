package bigquery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
)

// A field describes one column of a raw table, possibly a nested
// record. Values cross the wire as JSON on load and in the client's
// native Go representations on query.
type field struct {
	name     string
	typ      bigquery.FieldType
	repeated bool
	// fields holds the members of a record field.
	fields []field
	// defaultExpr fills the column when loads omit the field.
	defaultExpr string
	// agg aggregates the column in the deduplicating view.
	// ANY_VALUE when empty.
	agg string
	// metadata marks fields only loaded and returned on request.
	metadata bool
}

func (f field) fieldSchema() *bigquery.FieldSchema {
	fs := &bigquery.FieldSchema{
		Name:                   f.name,
		Type:                   f.typ,
		Repeated:               f.repeated,
		DefaultValueExpression: f.defaultExpr,
	}
	for _, member := range f.fields {
		fs.Schema = append(fs.Schema, member.fieldSchema())
	}
	return fs
}

// A table is one object list: a raw table accumulating every loaded
// row, and a view of the same name deduplicating the rows by key.
type table struct {
	name   string
	fields []field
	// keys are the fields the view groups by.
	keys []string
}

// rawName returns the name of the underlying table the view
// deduplicates.
func (t *table) rawName() string {
	return "_" + t.name
}

func (t *table) isKey(name string) bool {
	for _, key := range t.keys {
		if key == name {
			return true
		}
	}
	return false
}

// field returns the named top-level field, or nil.
func (t *table) field(name string) *field {
	for i := range t.fields {
		if t.fields[i].name == name {
			return &t.fields[i]
		}
	}
	return nil
}

// dataFields returns the fields to handle for the given metadata
// setting: all of them, or the object data only.
func (t *table) dataFields(withMetadata bool) []field {
	if withMetadata {
		return t.fields
	}
	fields := make([]field, 0, len(t.fields))
	for _, f := range t.fields {
		if !f.metadata {
			fields = append(fields, f)
		}
	}
	return fields
}

// bqSchema converts the field definitions into the schema loads and
// table creation are configured with.
func (t *table) bqSchema(withMetadata bool) bigquery.Schema {
	fields := t.dataFields(withMetadata)
	schema := make(bigquery.Schema, len(fields))
	for i, f := range fields {
		schema[i] = f.fieldSchema()
	}
	return schema
}

// columnList renders the comma-separated top-level column names for
// dump and query statements.
func (t *table) columnList(withMetadata bool) string {
	fields := t.dataFields(withMetadata)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = "`" + f.name + "`"
	}
	return strings.Join(names, ", ")
}

// viewQuery renders the deduplicating view over the raw table: one row
// per key, every other column aggregated. View queries cannot rely on
// a default dataset, so the raw table name is fully qualified.
func (t *table) viewQuery(projectID, dataset string) string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		switch {
		case t.isKey(f.name):
			parts[i] = "`" + f.name + "`"
		case f.agg != "":
			parts[i] = f.agg + "(`" + f.name + "`) AS `" + f.name + "`"
		default:
			parts[i] = "ANY_VALUE(`" + f.name + "`) AS `" + f.name + "`"
		}
	}
	keys := make([]string, len(t.keys))
	for i, key := range t.keys {
		keys[i] = "`" + key + "`"
	}
	return "SELECT " + strings.Join(parts, ", ") +
		" FROM `" + projectID + "." + dataset + "." + t.rawName() + "`" +
		" GROUP BY " + strings.Join(keys, ", ")
}

// pack converts an interchange object into its load representation,
// checking the values against the table schema.
func (t *table) pack(obj map[string]any, withMetadata bool) (map[string]any, error) {
	return packFields(t.dataFields(withMetadata), obj)
}

// packFields packs the known fields of one object level. Missing and
// null fields are omitted, leaving them to the column defaults.
func packFields(fields []field, obj map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(obj))
	for _, f := range fields {
		value, ok := obj[f.name]
		if !ok || value == nil {
			continue
		}
		packed, err := packField(f, value)
		if err != nil {
			return nil, err
		}
		row[f.name] = packed
	}
	return row, nil
}

func packField(f field, value any) (any, error) {
	if f.repeated {
		list, ok := value.([]any)
		if !ok {
			return nil, kcerr.Fmt("field %s value is %T, not a list", f.name, value)
		}
		element := f
		element.repeated = false
		packed := make([]any, len(list))
		for i, item := range list {
			p, err := packField(element, item)
			if err != nil {
				return nil, err
			}
			packed[i] = p
		}
		return packed, nil
	}
	switch f.typ {
	case bigquery.StringFieldType:
		// Miscellaneous extra data is stored as its JSON encoding.
		if f.name == "misc" {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, kcerr.Wrap(err)
			}
			return string(encoded), nil
		}
		s, ok := value.(string)
		if !ok {
			return nil, kcerr.Fmt("field %s value is %T, not a string", f.name, value)
		}
		return s, nil
	case bigquery.BooleanFieldType:
		b, ok := value.(bool)
		if !ok {
			return nil, kcerr.Fmt("field %s value is %T, not a bool", f.name, value)
		}
		return b, nil
	case bigquery.IntegerFieldType:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, kcerr.Fmt("field %s value %v has a fraction", f.name, n)
			}
			return int64(n), nil
		}
		return nil, kcerr.Fmt("field %s value is %T, not an integer", f.name, value)
	case bigquery.FloatFieldType:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, kcerr.Fmt("field %s value is %T, not a number", f.name, value)
	case bigquery.TimestampFieldType:
		text, ok := value.(string)
		if !ok {
			return nil, kcerr.Fmt("field %s value is %T, not a string", f.name, value)
		}
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, kcerr.Wrapf(err, "parsing timestamp %q", text)
		}
		return formatTimestamp(parsed), nil
	case bigquery.RecordFieldType:
		sub, ok := value.(map[string]any)
		if !ok {
			return nil, kcerr.Fmt("field %s value is %T, not an object", f.name, value)
		}
		return packFields(f.fields, sub)
	}
	return nil, kcerr.Fmt("field %s has unsupported type %s", f.name, f.typ)
}

// unpackObject converts a result row or record to its interchange
// representation: timestamps become RFC3339 strings, JSON-encoded
// fields are decoded, and empty repeated fields count as null.
func unpackObject(obj map[string]bigquery.Value, dropNull bool) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		if list, ok := value.([]bigquery.Value); ok && len(list) == 0 {
			value = nil
		}
		if value == nil {
			if !dropNull {
				out[key] = nil
			}
			continue
		}
		if key == "misc" || strings.HasSuffix(key, "_misc") {
			text, ok := value.(string)
			if !ok {
				return nil, kcerr.Fmt("field %s value is %T, not a string", key, value)
			}
			var decoded any
			if err := json.Unmarshal([]byte(text), &decoded); err != nil {
				return nil, kcerr.Wrapf(err, "decoding field %s", key)
			}
			out[key] = decoded
			continue
		}
		unpacked, err := unpackValue(value, dropNull)
		if err != nil {
			return nil, err
		}
		out[key] = unpacked
	}
	return out, nil
}

func unpackValue(value bigquery.Value, dropNull bool) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return formatTimestamp(v), nil
	case []bigquery.Value:
		list := make([]any, len(v))
		for i, item := range v {
			unpacked, err := unpackValue(item, dropNull)
			if err != nil {
				return nil, err
			}
			list[i] = unpacked
		}
		return list, nil
	case map[string]bigquery.Value:
		return unpackObject(v, dropNull)
	}
	return value, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "+00:00"
}

// metadataTimestampField is the _timestamp field recording object
// arrival time, present in every table from schema version 4.2 on.
// Deduplication keeps the latest arrival time, loads without metadata
// fill it through the column default, and purging compares against it.
func metadataTimestampField() field {
	return field{
		name:        "_timestamp",
		typ:         bigquery.TimestampFieldType,
		defaultExpr: "CURRENT_TIMESTAMP",
		agg:         "MAX",
		metadata:    true,
	}
}

// Resource record fields, shared by all the file list columns.
func resourceFields() []field {
	return []field{
		{name: "name", typ: bigquery.StringFieldType},
		{name: "url", typ: bigquery.StringFieldType},
	}
}

func tablesV40() []table {
	return []table{
		{
			name: "checkouts",
			keys: []string{"id"},
			fields: []field{
				{name: "id", typ: bigquery.StringFieldType},
				{name: "origin", typ: bigquery.StringFieldType},
				{name: "tree_name", typ: bigquery.StringFieldType},
				{name: "git_repository_url", typ: bigquery.StringFieldType},
				{name: "git_commit_hash", typ: bigquery.StringFieldType},
				{name: "git_commit_name", typ: bigquery.StringFieldType},
				{name: "git_repository_branch", typ: bigquery.StringFieldType},
				{name: "patchset_files", typ: bigquery.RecordFieldType,
					repeated: true, fields: resourceFields()},
				{name: "patchset_hash", typ: bigquery.StringFieldType},
				{name: "message_id", typ: bigquery.StringFieldType},
				{name: "comment", typ: bigquery.StringFieldType},
				{name: "start_time", typ: bigquery.TimestampFieldType},
				{name: "contacts", typ: bigquery.StringFieldType, repeated: true},
				{name: "log_url", typ: bigquery.StringFieldType},
				{name: "log_excerpt", typ: bigquery.StringFieldType},
				{name: "valid", typ: bigquery.BooleanFieldType},
				{name: "misc", typ: bigquery.StringFieldType},
			},
		},
		{
			name: "builds",
			keys: []string{"id"},
			fields: []field{
				{name: "checkout_id", typ: bigquery.StringFieldType},
				{name: "id", typ: bigquery.StringFieldType},
				{name: "origin", typ: bigquery.StringFieldType},
				{name: "comment", typ: bigquery.StringFieldType},
				{name: "start_time", typ: bigquery.TimestampFieldType},
				{name: "duration", typ: bigquery.FloatFieldType},
				{name: "architecture", typ: bigquery.StringFieldType},
				{name: "command", typ: bigquery.StringFieldType},
				{name: "compiler", typ: bigquery.StringFieldType},
				{name: "input_files", typ: bigquery.RecordFieldType,
					repeated: true, fields: resourceFields()},
				{name: "output_files", typ: bigquery.RecordFieldType,
					repeated: true, fields: resourceFields()},
				{name: "config_name", typ: bigquery.StringFieldType},
				{name: "config_url", typ: bigquery.StringFieldType},
				{name: "log_url", typ: bigquery.StringFieldType},
				{name: "log_excerpt", typ: bigquery.StringFieldType},
				{name: "valid", typ: bigquery.BooleanFieldType},
				{name: "misc", typ: bigquery.StringFieldType},
			},
		},
		{
			name: "tests",
			keys: []string{"id"},
			fields: []field{
				{name: "build_id", typ: bigquery.StringFieldType},
				{name: "id", typ: bigquery.StringFieldType},
				{name: "origin", typ: bigquery.StringFieldType},
				{name: "environment", typ: bigquery.RecordFieldType,
					fields: []field{
						{name: "comment", typ: bigquery.StringFieldType},
						{name: "misc", typ: bigquery.StringFieldType},
					}},
				{name: "path", typ: bigquery.StringFieldType},
				{name: "comment", typ: bigquery.StringFieldType},
				{name: "log_url", typ: bigquery.StringFieldType},
				{name: "log_excerpt", typ: bigquery.StringFieldType},
				{name: "status", typ: bigquery.StringFieldType},
				{name: "waived", typ: bigquery.BooleanFieldType},
				{name: "start_time", typ: bigquery.TimestampFieldType},
				{name: "duration", typ: bigquery.FloatFieldType},
				{name: "output_files", typ: bigquery.RecordFieldType,
					repeated: true, fields: resourceFields()},
				{name: "misc", typ: bigquery.StringFieldType},
			},
		},
	}
}

func tablesV41() []table {
	return append(tablesV40(),
		table{
			name: "issues",
			keys: []string{"id", "version"},
			fields: []field{
				{name: "id", typ: bigquery.StringFieldType},
				{name: "version", typ: bigquery.IntegerFieldType},
				{name: "origin", typ: bigquery.StringFieldType},
				{name: "report_url", typ: bigquery.StringFieldType},
				{name: "report_subject", typ: bigquery.StringFieldType},
				{name: "culprit", typ: bigquery.RecordFieldType,
					fields: []field{
						{name: "code", typ: bigquery.BooleanFieldType},
						{name: "tool", typ: bigquery.BooleanFieldType},
						{name: "harness", typ: bigquery.BooleanFieldType},
					}},
				{name: "build_valid", typ: bigquery.BooleanFieldType},
				{name: "test_status", typ: bigquery.StringFieldType},
				{name: "comment", typ: bigquery.StringFieldType},
				{name: "misc", typ: bigquery.StringFieldType},
			},
		},
		table{
			name: "incidents",
			keys: []string{"id"},
			fields: []field{
				{name: "id", typ: bigquery.StringFieldType},
				{name: "origin", typ: bigquery.StringFieldType},
				{name: "issue_id", typ: bigquery.StringFieldType},
				{name: "issue_version", typ: bigquery.IntegerFieldType},
				{name: "build_id", typ: bigquery.StringFieldType},
				{name: "test_id", typ: bigquery.StringFieldType},
				{name: "present", typ: bigquery.BooleanFieldType},
				{name: "comment", typ: bigquery.StringFieldType},
				{name: "misc", typ: bigquery.StringFieldType},
			},
		},
	)
}

func tablesV42() []table {
	tables := tablesV41()
	for i := range tables {
		tables[i].fields = append(
			[]field{metadataTimestampField()}, tables[i].fields...)
	}
	return tables
}

func ooQueriesV40() map[string]string {
	return map[string]string{
		"revision": "SELECT\n" +
			"    git_commit_hash,\n" +
			"    patchset_hash,\n" +
			"    ANY_VALUE(patchset_files) AS patchset_files,\n" +
			"    ANY_VALUE(git_commit_name) AS git_commit_name\n" +
			"FROM checkouts\n" +
			"GROUP BY git_commit_hash, patchset_hash",
		"checkout": "SELECT\n" +
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
		"build": "SELECT\n" +
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
		"test": "SELECT\n" +
			"    id,\n" +
			"    build_id,\n" +
			"    origin,\n" +
			"    path,\n" +
			"    environment.comment AS environment_comment,\n" +
			"    environment.misc AS environment_misc,\n" +
			"    status,\n" +
			"    waived,\n" +
			"    start_time,\n" +
			"    duration,\n" +
			"    output_files,\n" +
			"    log_url,\n" +
			"    comment,\n" +
			"    misc\n" +
			"FROM tests",
		// The types below have no backing tables yet. The columns are
		// typed through the placeholder values, as BigQuery cannot
		// infer types for bare NULLs.
		"issue": "SELECT\n" +
			"    '' AS id,\n" +
			"    '' AS origin\n" +
			"FROM UNNEST([])",
		"issue_version": "SELECT\n" +
			"    '' AS id,\n" +
			"    0 AS version_num,\n" +
			"    '' AS origin,\n" +
			"    '' AS report_url,\n" +
			"    '' AS report_subject,\n" +
			"    FALSE AS culprit_code,\n" +
			"    FALSE AS culprit_tool,\n" +
			"    FALSE AS culprit_harness,\n" +
			"    FALSE AS build_valid,\n" +
			"    '' AS test_status,\n" +
			"    '' AS comment,\n" +
			"    '' AS misc\n" +
			"FROM UNNEST([])",
		"incident": "SELECT\n" +
			"    '' AS id,\n" +
			"    '' AS origin,\n" +
			"    '' AS issue_id,\n" +
			"    0 AS issue_version_num,\n" +
			"    '' AS build_id,\n" +
			"    '' AS test_id,\n" +
			"    FALSE AS present,\n" +
			"    '' AS comment,\n" +
			"    '' AS misc\n" +
			"FROM UNNEST([])",
	}
}

func ooQueriesV41() map[string]string {
	queries := ooQueriesV40()
	// The issue view resolves each issue to its latest version.
	queries["issue"] = "SELECT\n" +
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
		")\n" +
		"WHERE precedence = 1"
	queries["issue_version"] = "SELECT\n" +
		"    id,\n" +
		"    version AS version_num,\n" +
		"    origin,\n" +
		"    report_url,\n" +
		"    report_subject,\n" +
		"    culprit.code AS culprit_code,\n" +
		"    culprit.tool AS culprit_tool,\n" +
		"    culprit.harness AS culprit_harness,\n" +
		"    build_valid,\n" +
		"    test_status,\n" +
		"    comment,\n" +
		"    misc\n" +
		"FROM issues"
	queries["incident"] = "SELECT\n" +
		"    id,\n" +
		"    origin,\n" +
		"    issue_id,\n" +
		"    issue_version AS issue_version_num,\n" +
		"    build_id,\n" +
		"    test_id,\n" +
		"    present,\n" +
		"    comment,\n" +
		"    misc\n" +
		"FROM incidents"
	return queries
}

// A version is one BigQuery database schema version: the tables
// keeping the report objects, the queries producing raw
// object-oriented data, and the migration from the preceding version.
type version struct {
	number db.Version
	io     *ioschema.Version
	// tables holds one table per interchange object list, in object
	// list order.
	tables []table
	// ooQueries maps object type names to their raw OO data queries.
	ooQueries map[string]string
	// inherit migrates a database complying with the preceding schema
	// version. Nil for the oldest version.
	inherit func(ctx context.Context, d *Driver) error
	// canPurge is set when the schema tracks object arrival times.
	canPurge bool
}

// inheritV41 creates the tables v4.1 adds over v4.0.
func inheritV41(ctx context.Context, d *Driver) error {
	tables := tablesV41()
	for _, t := range tables[len(tablesV40()):] {
		if err := d.createTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// inheritV42 adds the _timestamp column to every raw table, backfills
// it from start_time where the table has one, and refreshes the views
// to aggregate it.
func inheritV42(ctx context.Context, d *Driver) error {
	for _, t := range tablesV42() {
		if err := d.exec(ctx, "ALTER TABLE `"+t.rawName()+"` "+
			"ADD COLUMN IF NOT EXISTS `_timestamp` TIMESTAMP"); err != nil {
			return kcerr.Wrapf(err, "adding column _timestamp to table %q", t.rawName())
		}
		if err := d.exec(ctx, "ALTER TABLE `"+t.rawName()+"` "+
			"ALTER COLUMN `_timestamp` SET DEFAULT CURRENT_TIMESTAMP"); err != nil {
			return kcerr.Wrapf(err, "setting default of column _timestamp in table %q",
				t.rawName())
		}
		expr := "CURRENT_TIMESTAMP"
		if t.field("start_time") != nil {
			expr = "IFNULL(start_time, " + expr + ")"
		}
		if err := d.exec(ctx, "UPDATE `"+t.rawName()+"` "+
			"SET `_timestamp` = "+expr+" WHERE `_timestamp` IS NULL"); err != nil {
			return kcerr.Wrapf(err, "backfilling column _timestamp of table %q",
				t.rawName())
		}
		update := bigquery.TableMetadataToUpdate{
			ViewQuery: t.viewQuery(d.client.Project(), d.dataset.DatasetID),
		}
		if _, err := d.dataset.Table(t.name).Update(ctx, update, ""); err != nil {
			return kcerr.Wrapf(err, "updating view %q", t.name)
		}
	}
	return nil
}

// The driver's schema versions, oldest first.
var versions = []*version{
	{
		number:    db.Version{Major: 4, Minor: 0},
		io:        ioschema.V4_0,
		tables:    tablesV40(),
		ooQueries: ooQueriesV40(),
	},
	{
		number:    db.Version{Major: 4, Minor: 1},
		io:        ioschema.V4_1,
		tables:    tablesV41(),
		ooQueries: ooQueriesV41(),
		inherit:   inheritV41,
	},
	{
		number:    db.Version{Major: 4, Minor: 2},
		io:        ioschema.V4_1,
		tables:    tablesV42(),
		ooQueries: ooQueriesV41(),
		inherit:   inheritV42,
		canPurge:  true,
	},
}
