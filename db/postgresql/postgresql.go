// Package postgresql provides the PostgreSQL report database driver,
// backed by a server reached through a pgx connection pool. Suitable
// for shared and production deployments.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/orm"
)

const doc = `The PostgreSQL driver allows connection to a PostgreSQL database.

Parameters: [<CONNECTION>]

<CONNECTION>    A libpq connection string or URI specifying the
                database to connect to. Anything not specified is
                taken from the libpq environment variables (PGHOST,
                PGDATABASE, PGUSER, PGPASSWORD, ...).

                If starts with an exclamation mark ('!'), the
                in-database data is prioritized explicitly initially,
                instead of randomly. Double to include one literally.`

func init() {
	db.Register("postgresql", doc, Open)
}

// undefinedFunction is the SQLSTATE PostgreSQL reports when a called
// function does not exist. Reading the schema version of an
// uninitialized database triggers it.
const undefinedFunction = "42883"

// Open creates a driver instance for the database the parameter string
// names. See the package documentation string for the parameter syntax.
func Open(ctx context.Context, params *string) (db.Driver, error) {
	connString := ""
	if params != nil {
		connString = *params
	}
	loadPrioDB := rand.Intn(2) != 0
	if strings.HasPrefix(connString, "!") {
		if !strings.HasPrefix(connString, "!!") {
			loadPrioDB = true
		}
		connString = connString[1:]
	}
	conf, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, kcerr.Wrapf(err, "parsing PostgreSQL connection parameters")
	}
	// Timestamps are stored and compared in UTC throughout.
	conf.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET SESSION TIME ZONE 'UTC'")
		return err
	}
	pool, err := pgxpool.ConnectConfig(ctx, conf)
	if err != nil {
		return nil, kcerr.Wrapf(err, "connecting to PostgreSQL")
	}
	d := &Driver{pool: pool, loadPrioDB: loadPrioDB}
	if err := d.resolveSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// Driver is the PostgreSQL report database driver.
//
// The schema version of the database is stored as the constant return
// value of the get_version() function, as major * 1000 + minor. A
// missing function means an uninitialized database.
type Driver struct {
	pool *pgxpool.Pool
	// loadPrioDB directs conflict resolution on load: with it set,
	// values already in the database take priority over loaded ones.
	// Flipped after every load for rough parity with backends
	// resolving conflicts non-deterministically.
	loadPrioDB bool

	mu      sync.Mutex
	current *version
}

var _ db.Driver = (*Driver)(nil)

func errNotInitialized() error {
	return kcerr.Fmt("Database is not initialized")
}

// aggregateDefs create the FIRST() and LAST() aggregates the
// object-oriented queries use to pick a value off a group. PostgreSQL
// has no built-in equivalents.
var aggregateDefs = []string{
	"CREATE OR REPLACE FUNCTION first_agg(anyelement, anyelement) " +
		"RETURNS anyelement LANGUAGE SQL IMMUTABLE STRICT PARALLEL SAFE " +
		"AS 'SELECT $1'",
	"CREATE OR REPLACE AGGREGATE first(anyelement) (" +
		"SFUNC = first_agg, BASETYPE = anyelement, STYPE = anyelement, " +
		"PARALLEL = safe)",
	"CREATE OR REPLACE FUNCTION last_agg(anyelement, anyelement) " +
		"RETURNS anyelement LANGUAGE SQL IMMUTABLE STRICT PARALLEL SAFE " +
		"AS 'SELECT $2'",
	"CREATE OR REPLACE AGGREGATE last(anyelement) (" +
		"SFUNC = last_agg, BASETYPE = anyelement, STYPE = anyelement, " +
		"PARALLEL = safe)",
}

// aggregateDrops remove the aggregates before the functions they
// depend on.
var aggregateDrops = []string{
	"DROP AGGREGATE IF EXISTS first(anyelement)",
	"DROP FUNCTION IF EXISTS first_agg(anyelement, anyelement)",
	"DROP AGGREGATE IF EXISTS last(anyelement)",
	"DROP FUNCTION IF EXISTS last_agg(anyelement, anyelement)",
}

// resolveSchema reads the database schema version and picks the latest
// known schema the database contents can be accessed with: same major
// version, same or older minor version.
func (d *Driver) resolveSchema(ctx context.Context) error {
	var number int
	if err := d.pool.QueryRow(ctx, "SELECT get_version()").Scan(&number); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedFunction {
			d.current = nil
			return nil
		}
		return kcerr.Wrapf(err, "reading database schema version")
	}
	found := db.Version{Major: number / 1000, Minor: number % 1000}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v.number.Major == found.Major && v.number.Minor <= found.Minor {
			d.current = v
			return nil
		}
	}
	return &db.UnsupportedSchemaError{Version: found}
}

// setVersion stores a schema version in the database, or removes it
// when passed nil. Runs outside of data transactions.
func (d *Driver) setVersion(ctx context.Context, v *db.Version) error {
	stmt := "DROP FUNCTION IF EXISTS get_version()"
	if v != nil {
		stmt = fmt.Sprintf(
			"CREATE OR REPLACE FUNCTION get_version() "+
				"RETURNS integer LANGUAGE SQL IMMUTABLE AS 'SELECT %d'",
			v.Major*1000+v.Minor%1000)
	}
	if _, err := d.pool.Exec(ctx, stmt); err != nil {
		return kcerr.Wrapf(err, "setting database schema version")
	}
	return nil
}

func versionFor(number db.Version) *version {
	for _, v := range versions {
		if v.number == number {
			return v
		}
	}
	return nil
}

// IsInitialized implements db.Driver.
func (d *Driver) IsInitialized(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil, nil
}

// Init implements db.Driver, creating the aggregate helpers and the
// tables of the requested schema version, then recording the version
// in the database.
func (d *Driver) Init(ctx context.Context, number db.Version) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		return kcerr.Fmt("Database is already initialized")
	}
	v := versionFor(number)
	if v == nil {
		return &db.UnsupportedSchemaError{Version: number}
	}
	err := d.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, stmt := range aggregateDefs {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return kcerr.Wrapf(err, "creating aggregate helpers")
			}
		}
		for _, t := range v.tables {
			if _, err := tx.Exec(ctx, t.schema.FormatCreate(t.name)); err != nil {
				return kcerr.Wrapf(err, "creating table %q", t.name)
			}
		}
		return nil
	})
	if err != nil {
		return kcerr.Wrap(err)
	}
	if err := d.setVersion(ctx, &v.number); err != nil {
		return err
	}
	d.current = v
	return nil
}

// Cleanup implements db.Driver. The version is removed before the
// aggregates and tables, so an interrupted cleanup leaves the database
// deinitialized rather than corrupted.
func (d *Driver) Cleanup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	if err := d.setVersion(ctx, nil); err != nil {
		return err
	}
	for _, stmt := range aggregateDrops {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return kcerr.Wrapf(err, "dropping aggregate helpers")
		}
	}
	for _, t := range d.current.tables {
		if _, err := d.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t.name); err != nil {
			return kcerr.Wrapf(err, "dropping table %q", t.name)
		}
	}
	d.current = nil
	return nil
}

// Empty implements db.Driver.
func (d *Driver) Empty(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	v := d.current
	err := d.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, t := range v.tables {
			if _, err := tx.Exec(ctx, t.schema.FormatDelete(t.name)); err != nil {
				return kcerr.Wrapf(err, "emptying table %q", t.name)
			}
		}
		return nil
	})
	return kcerr.Wrap(err)
}

// Purge implements db.Driver. Supported from schema v4.2 on, where
// every row records its arrival time.
func (d *Driver) Purge(ctx context.Context, before time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return false, errNotInitialized()
	}
	if !d.current.canPurge {
		return false, nil
	}
	if before.IsZero() {
		return true, nil
	}
	v := d.current
	err := d.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, t := range v.tables {
			if _, err := tx.Exec(ctx,
				"DELETE FROM "+t.name+" WHERE _timestamp < $1",
				before.UTC()); err != nil {
				return kcerr.Wrapf(err, "purging table %q", t.name)
			}
		}
		return nil
	})
	if err != nil {
		return false, kcerr.Wrap(err)
	}
	return true, nil
}

// GetCurrentTime implements db.Driver, reporting the database server
// clock rather than the local one.
func (d *Driver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := d.pool.QueryRow(ctx, "SELECT CURRENT_TIMESTAMP").Scan(&now); err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading database server time")
	}
	return now.UTC(), nil
}

// GetLastModified implements db.Driver. Modification times are only
// tracked from schema v4.2 on, where every row records its arrival
// time; older schemas report the zero time.
func (d *Driver) GetLastModified(ctx context.Context) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return time.Time{}, errNotInitialized()
	}
	if !d.current.canPurge {
		return time.Time{}, nil
	}
	branches := make([]string, len(d.current.tables))
	for i, t := range d.current.tables {
		branches[i] = "SELECT MAX(_timestamp) AS modified FROM " + t.name
	}
	stmt := "SELECT MAX(modified) FROM (\n" +
		indent(strings.Join(branches, "\nUNION ALL\n"), 4) + "\n" +
		") AS tables"
	var modified *time.Time
	if err := d.pool.QueryRow(ctx, stmt).Scan(&modified); err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading last modification time")
	}
	if modified == nil {
		return time.Time{}, nil
	}
	return modified.UTC(), nil
}

// GetSchemas implements db.Driver.
func (d *Driver) GetSchemas() []db.SchemaVersion {
	schemas := make([]db.SchemaVersion, len(versions))
	for i, v := range versions {
		schemas[i] = db.SchemaVersion{Version: v.number, IO: v.io}
	}
	return schemas
}

// GetSchema implements db.Driver.
func (d *Driver) GetSchema(ctx context.Context) (db.SchemaVersion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return db.SchemaVersion{}, errNotInitialized()
	}
	return db.SchemaVersion{Version: d.current.number, IO: d.current.io}, nil
}

// Upgrade implements db.Driver, migrating the data through every
// schema version between the current one and the target.
func (d *Driver) Upgrade(ctx context.Context, target db.Version) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	if versionFor(target) == nil {
		return &db.UnsupportedSchemaError{Version: target}
	}
	start := d.current.number
	if target.Cmp(start) < 0 {
		return kcerr.Fmt("Target schema v%s is older than the current schema v%s",
			target, start)
	}
	for _, v := range versions {
		if v.number.Cmp(start) <= 0 || v.number.Cmp(target) > 0 {
			continue
		}
		err := d.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			return v.inherit(ctx, tx)
		})
		if err != nil {
			return kcerr.Wrapf(err, "upgrading to schema v%s", v.number)
		}
		if err := d.setVersion(ctx, &v.number); err != nil {
			return err
		}
		d.current = v
	}
	return nil
}

// scanRows passes every row of the result to handle as a slice of
// pgx-decoded values, closing the rows when done.
func scanRows(rows pgx.Rows, handle func(values []any) error) error {
	defer rows.Close()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return kcerr.Wrap(err)
		}
		if err := handle(values); err != nil {
			return err
		}
	}
	return kcerr.Wrap(rows.Err())
}

// DumpIter implements db.Driver. The result is materialized before
// returning, so no pooled connection is held while the caller consumes
// the reports.
func (d *Driver) DumpIter(ctx context.Context, opts db.DumpOpts) (*db.Reports, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, errNotInitialized()
	}
	v := d.current
	builder := db.NewReportBuilder(v.io, opts.ObjectsPerReport)
	var out []map[string]any
	for _, t := range v.tables {
		rows, err := d.pool.Query(ctx, t.schema.FormatDump(t.name, opts.WithMetadata))
		if err != nil {
			return nil, kcerr.Wrapf(err, "dumping table %q", t.name)
		}
		err = scanRows(rows, func(values []any) error {
			obj, err := t.schema.Unpack(values, opts.WithMetadata, true)
			if err != nil {
				return err
			}
			if report := builder.Add(t.name, obj); report != nil {
				out = append(out, report)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if report := builder.Flush(); report != nil {
		out = append(out, report)
	}
	if err := validateReports(v, out); err != nil {
		return nil, err
	}
	return db.ReportsOf(out...), nil
}

func validateReports(v *version, reports []map[string]any) error {
	if !db.HeavyAsserts() {
		return nil
	}
	for _, report := range reports {
		if err := v.io.ValidateExactly(report); err != nil {
			return err
		}
	}
	return nil
}

// listQuery accumulates the statement and parameters selecting the IDs
// of the objects to fetch from one object list.
type listQuery struct {
	sql    string
	params []any
}

// listQueries builds a query per object list, selecting the IDs of the
// objects the options request, directly or through relations. The
// statements use "?" placeholders until numberParams converts them for
// execution.
func (v *version) listQueries(opts db.QueryOpts) map[string]*listQuery {
	queries := make(map[string]*listQuery, len(v.io.ObjectLists))
	for _, listName := range v.io.ObjectLists {
		listIDs := opts.IDs[listName]
		q := &listQuery{}
		if len(listIDs) > 0 {
			q.sql = "WITH ids(id) AS (VALUES " +
				strings.Repeat(", (?::TEXT)", len(listIDs))[2:] +
				") SELECT * FROM ids\n"
			for _, id := range listIDs {
				q.params = append(q.params, id)
			}
		} else {
			q.sql = "SELECT NULL AS id WHERE FALSE\n"
		}
		queries[listName] = q
	}

	// Add the IDs of referenced parents, deepest lists first, so each
	// parent query embeds its children's complete queries.
	if opts.Parents {
		var addParents func(listName string)
		addParents = func(listName string) {
			objName := listName[:len(listName)-1]
			q := queries[listName]
			for _, childListName := range v.io.Graph[listName] {
				addParents(childListName)
				childQuery := queries[childListName]
				q.sql += "UNION\n" +
					"SELECT " + childListName + "." + objName + "_id AS id " +
					"FROM " + childListName + " INNER JOIN (\n" +
					indent(childQuery.sql, 4) +
					") AS ids USING(id)\n"
				q.params = append(q.params, childQuery.params...)
			}
		}
		for _, listName := range v.io.Graph[""] {
			addParents(listName)
		}
	}

	// Add the IDs of referenced children, topmost lists first, so each
	// child query embeds its parent's complete query.
	if opts.Children {
		var addChildren func(listName string)
		addChildren = func(listName string) {
			objName := listName[:len(listName)-1]
			q := queries[listName]
			for _, childListName := range v.io.Graph[listName] {
				childQuery := queries[childListName]
				childQuery.sql += "UNION\n" +
					"SELECT " + childListName + ".id AS id " +
					"FROM " + childListName + " INNER JOIN (\n" +
					indent(q.sql, 4) +
					") AS " + listName + " ON " +
					childListName + "." + objName + "_id = " + listName + ".id\n"
				childQuery.params = append(childQuery.params, q.params...)
				addChildren(childListName)
			}
		}
		for _, listName := range v.io.Graph[""] {
			addChildren(listName)
		}
	}
	return queries
}

// QueryIter implements db.Driver. Like DumpIter, the result is
// materialized before returning.
func (d *Driver) QueryIter(ctx context.Context, opts db.QueryOpts) (*db.Reports, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, errNotInitialized()
	}
	v := d.current
	queries := v.listQueries(opts)
	builder := db.NewReportBuilder(v.io, opts.ObjectsPerReport)
	var out []map[string]any
	for _, t := range v.tables {
		q := queries[t.name]
		stmt := numberParams("SELECT " + t.schema.ColumnsList(opts.WithMetadata) + "\n" +
			" FROM " + t.name + " INNER JOIN (\n" +
			indent(q.sql, 4) +
			") AS ids USING(id)\n")
		rows, err := d.pool.Query(ctx, stmt, q.params...)
		if err != nil {
			return nil, kcerr.Wrapf(err, "querying table %q", t.name)
		}
		err = scanRows(rows, func(values []any) error {
			obj, err := t.schema.Unpack(values, opts.WithMetadata, true)
			if err != nil {
				return err
			}
			if report := builder.Add(t.name, obj); report != nil {
				out = append(out, report)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if report := builder.Flush(); report != nil {
		out = append(out, report)
	}
	if err := validateReports(v, out); err != nil {
		return nil, err
	}
	return db.ReportsOf(out...), nil
}

func idFieldNames(objType *orm.Type) []string {
	names := make([]string, len(objType.IDFields))
	for i, field := range objType.IDFields {
		names[i] = field.Name
	}
	return names
}

// fieldPlaceholder casts an ID field placeholder so PostgreSQL can
// type the VALUES list without context.
func fieldPlaceholder(fieldType orm.FieldValueType) string {
	if fieldType == orm.FieldValueInt {
		return "?::INTEGER"
	}
	return "?::TEXT"
}

// renderPattern renders an object pattern into a query selecting the
// raw data of the matched objects.
func (v *version) renderPattern(p *orm.Pattern) (string, []any, error) {
	objType := p.ObjectType()
	q, ok := v.ooQueries[objType.Name]
	if !ok {
		return "", nil, kcerr.Fmt("no query for object type %q", objType.Name)
	}
	var stmt string
	var params []any
	ids := p.IDs()
	if len(ids) > 0 {
		fields := idFieldNames(objType)
		fieldList := strings.Join(fields, ", ")
		placeholders := make([]string, len(objType.IDFields))
		for i, field := range objType.IDFields {
			placeholders[i] = fieldPlaceholder(field.Type)
		}
		valueRow := "    (" + strings.Join(placeholders, ", ") + ")"
		rows := make([]string, len(ids))
		for i, id := range ids {
			if len(id) != len(fields) {
				return "", nil, kcerr.Fmt("%s ID has %d fields, type has %d",
					objType.Name, len(id), len(fields))
			}
			rows[i] = valueRow
			params = append(params, id...)
		}
		stmt = "SELECT obj.* FROM (\n" +
			indent(q.statement, 4) + "\n" +
			") AS obj INNER JOIN (\n" +
			"    WITH ids(" + fieldList + ") AS (VALUES " +
			strings.Join(rows, ",\n") +
			") SELECT * FROM ids\n" +
			") AS ids USING(" + fieldList + ")"
	} else if ids != nil {
		// An empty ID list matches nothing; it cannot be rendered as
		// VALUES, and the type query may already carry a WHERE clause.
		stmt = "SELECT obj.* FROM (\n" +
			indent(q.statement, 4) + "\n" +
			") AS obj WHERE FALSE"
	} else {
		stmt = q.statement
	}

	if base := p.Base(); base != nil {
		baseStmt, baseParams, err := v.renderPattern(base)
		if err != nil {
			return "", nil, err
		}
		baseType := base.ObjectType()
		var objCols, baseCols []string
		if p.IsChild() {
			relation := baseType.Children[objType.Name]
			for i, ref := range relation.RefFields {
				objCols = append(objCols, ref)
				baseCols = append(baseCols, baseType.IDFields[i].Name)
			}
		} else {
			relation := objType.Children[baseType.Name]
			for i, field := range objType.IDFields {
				objCols = append(objCols, field.Name)
				baseCols = append(baseCols, relation.RefFields[i])
			}
		}
		conds := make([]string, len(objCols))
		for i := range objCols {
			conds[i] = "obj." + objCols[i] + " = base." + baseCols[i]
		}
		stmt = "SELECT obj.* FROM (\n" +
			indent(stmt, 4) + "\n" +
			") AS obj INNER JOIN (\n" +
			indent(baseStmt, 4) + "\n" +
			") AS base ON " + strings.Join(conds, " AND ")
		params = append(params, baseParams...)
	}
	return stmt, params, nil
}

// OOQuery implements db.Driver. Every requested object type gets an
// entry in the response, empty when nothing matched.
func (d *Driver) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, errNotInitialized()
	}
	v := d.current

	// Render all queries for each requested type, in deterministic
	// pattern order.
	type typeQueries struct {
		stmts  []string
		params []any
	}
	byType := map[string]*typeQueries{}
	keys := make([]string, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := patterns[key]
		stmt, params, err := v.renderPattern(p)
		if err != nil {
			return nil, err
		}
		name := p.ObjectType().Name
		tq := byType[name]
		if tq == nil {
			tq = &typeQueries{}
			byType[name] = tq
		}
		tq.stmts = append(tq.stmts, stmt)
		tq.params = append(tq.params, params...)
	}

	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)

	objs := map[string][]map[string]any{}
	for _, name := range names {
		tq := byType[name]
		q := v.ooQueries[name]
		fields := strings.Join(idFieldNames(orm.ReportTypes.Types[name]), ", ")
		stmt := numberParams("SELECT obj.* FROM (\n" +
			indent(q.statement, 4) + "\n" +
			") AS obj INNER JOIN (\n" +
			"    SELECT DISTINCT " + fields + " FROM (\n" +
			indent(strings.Join(tq.stmts, "\nUNION ALL\n"), 8) + "\n" +
			"    ) AS matches\n" +
			") AS ids USING(" + fields + ")")
		rows, err := d.pool.Query(ctx, stmt, tq.params...)
		if err != nil {
			return nil, kcerr.Wrapf(err, "querying %s objects", name)
		}
		list := []map[string]any{}
		err = scanRows(rows, func(values []any) error {
			obj, err := q.table.Unpack(values, false, false)
			if err != nil {
				return err
			}
			list = append(list, obj)
			return nil
		})
		if err != nil {
			return nil, err
		}
		objs[name] = list
	}
	if db.HeavyAsserts() {
		if err := orm.ReportTypes.Validate(objs); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// loadTable sends one batch inserting every object of a list.
func loadTable(ctx context.Context, tx pgx.Tx, t table, list []any, prioDB, withMetadata bool) error {
	stmt := t.schema.FormatInsert(t.name, prioDB, withMetadata)
	batch := &pgx.Batch{}
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return kcerr.Fmt("%s list element is %T, not an object", t.name, item)
		}
		row, err := t.schema.Pack(obj, withMetadata)
		if err != nil {
			return err
		}
		batch.Queue(stmt, row...)
	}
	results := tx.SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			execErr = err
			break
		}
	}
	if err := results.Close(); execErr == nil && err != nil {
		execErr = err
	}
	return kcerr.Wrapf(execErr, "loading into table %q", t.name)
}

// Load implements db.Driver. Each object list is sent as one batch of
// inserts within a single transaction.
func (d *Driver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	tables := d.current.tables
	prioDB := d.loadPrioDB
	err := d.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, t := range tables {
			list, _ := data[t.name].([]any)
			if len(list) == 0 {
				continue
			}
			if err := loadTable(ctx, tx, t, list, prioDB, withMetadata); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return kcerr.Wrap(err)
	}
	// Flip priority for the next load, for rough parity with the
	// non-determinism of columnar backends' ANY_VALUE().
	d.loadPrioDB = !d.loadPrioDB
	return nil
}

// Close implements db.Driver.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

// numberParams rewrites the "?" placeholders of a composed statement
// into the numbered "$1".."$n" form PostgreSQL expects. Statements
// composed in this package never carry a literal question mark, so a
// plain byte scan is enough.
func numberParams(stmt string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(stmt[i])
	}
	return b.String()
}

// indent prefixes every line of text carrying non-whitespace content
// with n spaces.
func indent(text string, n int) string {
	prefix := strings.Repeat(" ", n)
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.TrimSpace(line) != "" {
			b.WriteString(prefix)
		}
		b.WriteString(line)
	}
	return b.String()
}
