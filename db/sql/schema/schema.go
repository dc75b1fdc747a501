// Package schema provides the row codec shared by SQL-backed report
// database drivers: table definitions mapping dotted JSON field names
// to flat SQL columns, and the statement formatting and value
// packing/unpacking built on top of them.
//
// Tables deduplicate rows on their primary key. Loading the same
// object twice merges the rows field by field with COALESCE, directed
// by the driver's priority setting, except for columns carrying a
// conflict resolution function of their own.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.kernelci.org/kcidb/go/kcerr"
)

// Constraint is a column constraint.
type Constraint int

const (
	// NoConstraint leaves the column unconstrained.
	NoConstraint Constraint = iota
	// PrimaryKey makes the column the table's primary key.
	PrimaryKey
	// NotNull requires the column to have a value.
	NotNull
)

// String returns the SQL rendering of the constraint.
func (c Constraint) String() string {
	switch c {
	case PrimaryKey:
		return "PRIMARY KEY"
	case NotNull:
		return "NOT NULL"
	}
	return ""
}

// A PackFunc converts the JSON representation of a column value into
// the database representation. It is never called with nil.
type PackFunc func(value any) (any, error)

// An UnpackFunc converts the database representation of a column value
// into the JSON representation. It is never called with nil.
type UnpackFunc func(value any) (any, error)

// Column describes a column type: the SQL type name, an optional
// constraint, and the value conversions to and from the database
// representation.
type Column struct {
	// Type is the SQL type name, e.g. "TEXT".
	Type string
	// Constraint is the column constraint, if any.
	Constraint Constraint
	// ConflictFunc names an SQL aggregate function resolving the
	// column on row deduplication conflicts, replacing the COALESCE
	// pair.
	ConflictFunc string
	// MetadataExpr is an SQL expression generating the column value
	// whenever metadata is not taken from the loaded data. Non-empty
	// marks the column as database-generated metadata.
	MetadataExpr string
	// Pack converts a JSON value to the database representation.
	// Nil stores the value as is.
	Pack PackFunc
	// Unpack converts a database value to the JSON representation.
	// Nil returns the value as is.
	Unpack UnpackFunc
}

func (c *Column) formatNamelessDef() string {
	def := c.Type
	if c.Constraint != NoConstraint {
		def += " " + c.Constraint.String()
	}
	return def
}

// nameRE matches column names safe to use unquoted.
var nameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// QuoteName quotes a column name for safe use within SQL statements,
// leaving names alone when they don't need quoting.
func QuoteName(name string) string {
	if nameRE.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableColumn is a column within a table: the dotted JSON field name
// split into its keys, the flattened SQL column name, and the column
// type.
type TableColumn struct {
	// Keys are the parts of the dotted JSON field name.
	Keys []string
	// Name is the SQL column name, quoted if necessary.
	Name string
	// Schema is the column type.
	Schema *Column
}

// FormatDef formats the column definition for use in CREATE TABLE and
// ALTER TABLE ADD COLUMN statements.
func (c *TableColumn) FormatDef() string {
	return c.Name + " " + c.Schema.formatNamelessDef()
}

// NamedColumn pairs a dotted JSON field name with its column type in a
// table definition.
type NamedColumn struct {
	Name   string
	Column *Column
}

// A PlaceholderFunc returns the query parameter placeholder for the
// n-th (1-based) parameter of a statement.
type PlaceholderFunc func(n int) string

// Question is the placeholder style of drivers using "?".
func Question(int) string { return "?" }

// Dollar is the placeholder style of drivers using "$1", "$2", ...
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// TableParams define a table schema.
type TableParams struct {
	// Placeholder generates query parameter placeholders.
	Placeholder PlaceholderFunc
	// Columns lists the table's columns in definition order, keyed
	// by dotted JSON field names.
	Columns []NamedColumn
	// PrimaryKey lists the dotted names of the columns of an explicit
	// composite primary key. When empty, the single column carrying
	// the PrimaryKey constraint forms the key instead.
	PrimaryKey []string
	// KeySep replaces the dots of JSON field names in SQL column
	// names. Empty means "_".
	KeySep string
}

// Table is a table schema: ordered columns with their JSON field
// mapping, and the primary key rows are deduplicated on.
type Table struct {
	// Columns are the table's columns in definition order.
	Columns []*TableColumn
	// PrimaryKey are the columns rows are deduplicated on.
	PrimaryKey []*TableColumn

	placeholder PlaceholderFunc
	byName      map[string]*TableColumn
	explicitPK  bool
}

// NewTable creates a table schema. Table schemas are package-level
// constants of the drivers, so NewTable panics on inconsistent
// definitions instead of returning an error.
func NewTable(params TableParams) *Table {
	if params.Placeholder == nil {
		panic("sql schema: table without a placeholder style")
	}
	keySep := params.KeySep
	if keySep == "" {
		keySep = "_"
	}
	t := &Table{
		placeholder: params.Placeholder,
		byName:      map[string]*TableColumn{},
	}
	var constrained []*TableColumn
	for _, nc := range params.Columns {
		keys := strings.Split(nc.Name, ".")
		column := &TableColumn{
			Keys:   keys,
			Name:   QuoteName(strings.Join(keys, keySep)),
			Schema: nc.Column,
		}
		if _, dup := t.byName[nc.Name]; dup {
			panic(fmt.Sprintf("sql schema: duplicate column %q", nc.Name))
		}
		t.byName[nc.Name] = column
		t.Columns = append(t.Columns, column)
		if nc.Column.Constraint == PrimaryKey {
			constrained = append(constrained, column)
		}
	}
	if len(params.PrimaryKey) > 0 {
		if len(constrained) > 0 {
			panic("sql schema: explicit primary key combined with a PRIMARY KEY column")
		}
		t.explicitPK = true
		for _, name := range params.PrimaryKey {
			column := t.byName[name]
			if column == nil {
				panic(fmt.Sprintf("sql schema: unknown primary key column %q", name))
			}
			t.PrimaryKey = append(t.PrimaryKey, column)
		}
	} else {
		if len(constrained) > 1 {
			panic("sql schema: multiple PRIMARY KEY columns")
		}
		t.PrimaryKey = constrained
	}
	return t
}

// Column returns the table column for the dotted JSON field name, or
// nil if the table has no such column.
func (t *Table) Column(name string) *TableColumn {
	return t.byName[name]
}

// columns returns the table's columns, without the metadata columns
// unless withMetadata is set.
func (t *Table) columns(withMetadata bool) []*TableColumn {
	if withMetadata {
		return t.Columns
	}
	filtered := make([]*TableColumn, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Schema.MetadataExpr == "" {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// ColumnNames returns the SQL names of the table's columns, without
// the metadata columns unless withMetadata is set.
func (t *Table) ColumnNames(withMetadata bool) []string {
	columns := t.columns(withMetadata)
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// ColumnsList returns the comma-separated SQL column name list,
// without the metadata columns unless withMetadata is set.
func (t *Table) ColumnsList(withMetadata bool) string {
	return strings.Join(t.ColumnNames(withMetadata), ", ")
}

func (t *Table) isPrimaryKey(column *TableColumn) bool {
	for _, c := range t.PrimaryKey {
		if c == column {
			return true
		}
	}
	return false
}

// FormatCreate formats the CREATE command for the table.
func (t *Table) FormatCreate(name string) string {
	items := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		items = append(items, c.FormatDef())
	}
	if t.explicitPK {
		names := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			names[i] = c.Name
		}
		items = append(items, "PRIMARY KEY("+strings.Join(names, ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + name +
		" (\n    " + strings.Join(items, ",\n    ") + "\n)"
}

// FormatInsert formats the INSERT/UPDATE command template loading a
// row packed by Pack, observing the deduplication logic. With prioDB
// set, values already in the database take priority over the loaded
// ones, and vice versa otherwise. Without withMetadata, metadata
// columns take their values from their generating expressions instead
// of query parameters.
func (t *Table) FormatInsert(name string, prioDB, withMetadata bool) string {
	var b strings.Builder
	b.WriteString("INSERT INTO " + name + " (\n")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("    " + c.Name)
	}
	b.WriteString("\n)\nVALUES (\n    ")
	n := 0
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.Schema.MetadataExpr != "" && !withMetadata {
			b.WriteString("(" + c.Schema.MetadataExpr + ")")
		} else {
			n++
			b.WriteString(t.placeholder(n))
		}
	}
	b.WriteString("\n)\nON CONFLICT (")
	for i, c := range t.PrimaryKey {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
	}
	b.WriteString(") DO UPDATE SET\n")
	first := true
	for _, c := range t.Columns {
		if t.isPrimaryKey(c) {
			continue
		}
		if !first {
			b.WriteString(",\n")
		}
		first = false
		b.WriteString("    " + c.Name + " = ")
		switch {
		case c.Schema.ConflictFunc != "":
			b.WriteString(c.Schema.ConflictFunc +
				"(" + name + "." + c.Name + ", excluded." + c.Name + ")")
		case prioDB:
			b.WriteString("COALESCE(" + name + "." + c.Name + ", excluded." + c.Name + ")")
		default:
			b.WriteString("COALESCE(excluded." + c.Name + ", " + name + "." + c.Name + ")")
		}
	}
	return b.String()
}

// FormatDump formats the SELECT command dumping the table contents in
// the column order Unpack expects.
func (t *Table) FormatDump(name string, withMetadata bool) string {
	return "SELECT " + t.ColumnsList(withMetadata) + " FROM " + name
}

// FormatDelete formats the DELETE command removing all table rows.
func (t *Table) FormatDelete(name string) string {
	return "DELETE FROM " + name
}

// Pack converts a JSON object into the parameter row for the command
// formatted by FormatInsert. Fields missing from the object become
// NULLs.
func (t *Table) Pack(obj map[string]any, withMetadata bool) ([]any, error) {
	columns := t.columns(withMetadata)
	row := make([]any, 0, len(columns))
	for _, column := range columns {
		value, ok := dig(obj, column.Keys)
		if !ok || value == nil {
			row = append(row, nil)
			continue
		}
		if column.Schema.Pack != nil {
			packed, err := column.Schema.Pack(value)
			if err != nil {
				return nil, kcerr.Wrapf(err, "packing column %s", column.Name)
			}
			value = packed
		}
		row = append(row, value)
	}
	return row, nil
}

// Unpack converts a database row in FormatDump column order back into
// a JSON object, rebuilding the nesting of dotted field names. NULL
// values are dropped from the object unless dropNull is unset.
func (t *Table) Unpack(row []any, withMetadata, dropNull bool) (map[string]any, error) {
	columns := t.columns(withMetadata)
	if len(row) != len(columns) {
		return nil, kcerr.Fmt("row has %d values, table has %d columns",
			len(row), len(columns))
	}
	obj := map[string]any{}
	for i, column := range columns {
		value := row[i]
		if value == nil && dropNull {
			continue
		}
		if value != nil && column.Schema.Unpack != nil {
			unpacked, err := column.Schema.Unpack(value)
			if err != nil {
				return nil, kcerr.Wrapf(err, "unpacking column %s", column.Name)
			}
			value = unpacked
		}
		node := obj
		for _, key := range column.Keys[:len(column.Keys)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[column.Keys[len(column.Keys)-1]] = value
	}
	return obj, nil
}

// dig retrieves the value at the key path in nested JSON maps.
func dig(obj map[string]any, keys []string) (any, bool) {
	node := obj
	for i, key := range keys {
		value, ok := node[key]
		if !ok {
			return nil, false
		}
		if i+1 == len(keys) {
			return value, true
		}
		node, ok = value.(map[string]any)
		if !ok {
			return nil, false
		}
	}
	return nil, false
}
