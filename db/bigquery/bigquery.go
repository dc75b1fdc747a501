// Package bigquery provides the Google BigQuery report database
// driver, backed by a dataset in a Google Cloud project. Suitable for
// serverless deployments with large report volumes.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/orm"
)

const doc = `The BigQuery driver allows connection to a Google BigQuery dataset.

Parameters: [<PROJECT_ID>.]<DATASET>

<PROJECT_ID>    ID of the Google Cloud project hosting the dataset.
                If not specified, the project is taken from the
                credentials pointed to by the
                GOOGLE_APPLICATION_CREDENTIALS environment variable.

<DATASET>       The name of the dataset containing the report data,
                within the specified (or inferred) Google Cloud
                project.`

func init() {
	db.Register("bigquery", doc, Open)
}

// Open creates a driver instance for the dataset the parameter string
// names. See the package documentation string for the parameter
// syntax.
func Open(ctx context.Context, params *string) (db.Driver, error) {
	if params == nil {
		return nil, kcerr.Fmt("Database parameters must be specified\n\n%s", doc)
	}
	projectID := bigquery.DetectProjectID
	dataset := *params
	if before, after, found := strings.Cut(dataset, "."); found {
		projectID = before
		dataset = after
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, kcerr.Wrapf(err, "creating BigQuery client")
	}
	d := &Driver{client: client, dataset: client.Dataset(dataset)}
	if err := d.resolveSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return d, nil
}

// Driver is the BigQuery report database driver.
//
// Each object list is stored as a raw table accumulating every loaded
// row, prefixed with an underscore, plus a view of the same name
// deduplicating the rows by object ID. The schema version of the
// database is stored in the dataset labels "version_major" and
// "version_minor".
type Driver struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset

	mu      sync.Mutex
	current *version
}

var _ db.Driver = (*Driver)(nil)

func errNotInitialized() error {
	return kcerr.Fmt("Database is not initialized")
}

// isNotFound reports whether err is the BigQuery API "not found"
// error.
func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// resolveSchema reads the database schema version and picks the latest
// known schema the database contents can be accessed with: same major
// version, same or older minor version.
func (d *Driver) resolveSchema(ctx context.Context) error {
	md, err := d.dataset.Metadata(ctx)
	if err != nil {
		return kcerr.Wrapf(err, "reading metadata of dataset %q", d.dataset.DatasetID)
	}
	major, err := strconv.Atoi(md.Labels["version_major"])
	if err != nil {
		d.current = nil
		return nil
	}
	minor, err := strconv.Atoi(md.Labels["version_minor"])
	if err != nil {
		d.current = nil
		return nil
	}
	found := db.Version{Major: major, Minor: minor}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v.number.Major == found.Major && v.number.Minor <= found.Minor {
			d.current = v
			return nil
		}
	}
	return &db.UnsupportedSchemaError{Version: found}
}

// setVersion stores a schema version in the dataset labels, or removes
// it when passed nil.
func (d *Driver) setVersion(ctx context.Context, v *db.Version) error {
	update := bigquery.DatasetMetadataToUpdate{}
	if v == nil {
		update.DeleteLabel("version_major")
		update.DeleteLabel("version_minor")
	} else {
		update.SetLabel("version_major", strconv.Itoa(v.Major))
		update.SetLabel("version_minor", strconv.Itoa(v.Minor))
	}
	if _, err := d.dataset.Update(ctx, update, ""); err != nil {
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

// query prepares a statement to run with the dataset as the default,
// so data statements need no table name qualification.
func (d *Driver) query(stmt string, params ...bigquery.QueryParameter) *bigquery.Query {
	q := d.client.Query(stmt)
	q.DefaultProjectID = d.client.Project()
	q.DefaultDatasetID = d.dataset.DatasetID
	q.Parameters = params
	return q
}

// exec runs a statement returning no rows and waits for it to
// complete.
func (d *Driver) exec(ctx context.Context, stmt string, params ...bigquery.QueryParameter) error {
	job, err := d.query(stmt, params...).Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

// createTable creates the raw table of an object list and the view
// deduplicating its rows.
func (d *Driver) createTable(ctx context.Context, t table) error {
	raw := d.dataset.Table(t.rawName())
	if err := raw.Create(ctx, &bigquery.TableMetadata{Schema: t.bqSchema(true)}); err != nil {
		return kcerr.Wrapf(err, "creating table %q", t.rawName())
	}
	view := d.dataset.Table(t.name)
	md := &bigquery.TableMetadata{
		ViewQuery: t.viewQuery(d.client.Project(), d.dataset.DatasetID),
	}
	if err := view.Create(ctx, md); err != nil {
		return kcerr.Wrapf(err, "creating view %q", t.name)
	}
	return nil
}

// IsInitialized implements db.Driver.
func (d *Driver) IsInitialized(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil, nil
}

// Init implements db.Driver, creating the tables and views of the
// requested schema version and recording the version in the dataset
// labels.
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
	for _, t := range v.tables {
		if err := d.createTable(ctx, t); err != nil {
			return err
		}
	}
	if err := d.setVersion(ctx, &v.number); err != nil {
		return err
	}
	d.current = v
	return nil
}

// Cleanup implements db.Driver. The version is removed before the
// tables, so an interrupted cleanup leaves the database deinitialized
// rather than corrupted.
func (d *Driver) Cleanup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	if err := d.setVersion(ctx, nil); err != nil {
		return err
	}
	for _, t := range d.current.tables {
		// The view goes first, leaving no view without its table.
		for _, name := range []string{t.name, t.rawName()} {
			if err := d.dataset.Table(name).Delete(ctx); err != nil && !isNotFound(err) {
				return kcerr.Wrapf(err, "deleting table %q", name)
			}
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
	for _, t := range d.current.tables {
		if err := d.exec(ctx, "DELETE FROM `"+t.rawName()+"` WHERE TRUE"); err != nil {
			return kcerr.Wrapf(err, "emptying table %q", t.rawName())
		}
	}
	return nil
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
	param := bigquery.QueryParameter{Name: "before", Value: before.UTC()}
	for _, t := range d.current.tables {
		if err := d.exec(ctx,
			"DELETE FROM `"+t.rawName()+"` WHERE `_timestamp` < @before",
			param); err != nil {
			return false, kcerr.Wrapf(err, "purging table %q", t.rawName())
		}
	}
	return true, nil
}

// GetCurrentTime implements db.Driver, reporting the BigQuery server
// time.
func (d *Driver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	it, err := d.query("SELECT CURRENT_TIMESTAMP()").Read(ctx)
	if err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading database server time")
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading database server time")
	}
	now, ok := row[0].(time.Time)
	if !ok {
		return time.Time{}, kcerr.Fmt("server time is %T, not a timestamp", row[0])
	}
	return now.UTC(), nil
}

// GetLastModified implements db.Driver. BigQuery tracks table
// modification times as metadata, so the time is available regardless
// of the schema version.
func (d *Driver) GetLastModified(ctx context.Context) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return time.Time{}, errNotInitialized()
	}
	it, err := d.query(
		"SELECT TIMESTAMP_MILLIS(MAX(last_modified_time)) FROM __TABLES__").Read(ctx)
	if err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading last modification time")
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return time.Time{}, kcerr.Wrapf(err, "reading last modification time")
	}
	modified, ok := row[0].(time.Time)
	if !ok {
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
		if err := v.inherit(ctx, d); err != nil {
			return kcerr.Wrapf(err, "upgrading to schema v%s", v.number)
		}
		if err := d.setVersion(ctx, &v.number); err != nil {
			return err
		}
		d.current = v
	}
	return nil
}

// scanRows passes every row of a query result to handle as a map of
// column names to client-native values.
func scanRows(it *bigquery.RowIterator, handle func(row map[string]bigquery.Value) error) error {
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return kcerr.Wrap(err)
		}
		if err := handle(row); err != nil {
			return err
		}
	}
}

// DumpIter implements db.Driver. The result is materialized before
// returning.
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
		stmt := "SELECT " + t.columnList(opts.WithMetadata) + " FROM `" + t.name + "`"
		it, err := d.query(stmt).Read(ctx)
		if err != nil {
			return nil, kcerr.Wrapf(err, "dumping table %q", t.name)
		}
		err = scanRows(it, func(row map[string]bigquery.Value) error {
			obj, err := unpackObject(row, true)
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
	params []bigquery.QueryParameter
}

// listQueries builds the ID-selecting query of every object list for
// the given query options. Parameters are positional; the requested
// IDs are bound as string arrays, which stay typed even when empty.
func (v *version) listQueries(opts db.QueryOpts) map[string]*listQuery {
	queries := make(map[string]*listQuery, len(v.io.ObjectLists))
	for _, listName := range v.io.ObjectLists {
		listIDs := opts.IDs[listName]
		if listIDs == nil {
			listIDs = []string{}
		}
		queries[listName] = &listQuery{
			sql:    "SELECT id FROM UNNEST(?) AS id\n",
			params: []bigquery.QueryParameter{{Value: listIDs}},
		}
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
				q.sql += "UNION DISTINCT\n" +
					"SELECT " + childListName + "." + objName + "_id AS id " +
					"FROM " + childListName + " INNER JOIN (\n" +
					indent(childQuery.sql, 4) +
					") USING(id)\n"
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
				childQuery.sql += "UNION DISTINCT\n" +
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
		stmt := "SELECT " + t.columnList(opts.WithMetadata) + "\n" +
			"FROM `" + t.name + "` INNER JOIN (\n" +
			indent(q.sql, 4) +
			") USING(id)\n"
		it, err := d.query(stmt, q.params...).Read(ctx)
		if err != nil {
			return nil, kcerr.Wrapf(err, "querying table %q", t.name)
		}
		err = scanRows(it, func(row map[string]bigquery.Value) error {
			obj, err := unpackObject(row, true)
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

// renderPattern renders an object pattern into a query selecting the
// raw data of the matched objects.
func (v *version) renderPattern(p *orm.Pattern) (string, []bigquery.QueryParameter, error) {
	objType := p.ObjectType()
	typeQuery, ok := v.ooQueries[objType.Name]
	if !ok {
		return "", nil, kcerr.Fmt("no query for object type %q", objType.Name)
	}
	var stmt string
	var params []bigquery.QueryParameter
	ids := p.IDs()
	if len(ids) > 0 {
		fields := idFieldNames(objType)
		fieldList := strings.Join(fields, ", ")
		// BigQuery has no VALUES construct; the ID rows are inlined
		// as selects chained with UNION ALL, named by the first one.
		rows := make([]string, len(ids))
		for i, id := range ids {
			if len(id) != len(fields) {
				return "", nil, kcerr.Fmt("%s ID has %d fields, type has %d",
					objType.Name, len(id), len(fields))
			}
			row := make([]string, len(fields))
			for j := range fields {
				row[j] = "?"
				if i == 0 {
					row[j] += " AS " + fields[j]
				}
				params = append(params, bigquery.QueryParameter{Value: id[j]})
			}
			rows[i] = "    SELECT " + strings.Join(row, ", ")
		}
		stmt = "SELECT obj.* FROM (\n" +
			indent(typeQuery, 4) + "\n" +
			") AS obj INNER JOIN (\n" +
			strings.Join(rows, "\n    UNION ALL\n") + "\n" +
			") AS ids USING(" + fieldList + ")"
	} else if ids != nil {
		// An empty ID list matches nothing; the wrap stays valid when
		// the statement is chained with others through UNION ALL.
		stmt = "SELECT obj.* FROM (\n" +
			indent(typeQuery, 4) + "\n" +
			") AS obj WHERE FALSE"
	} else {
		stmt = typeQuery
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
		params []bigquery.QueryParameter
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
		fields := strings.Join(idFieldNames(orm.ReportTypes.Types[name]), ", ")
		stmt := "SELECT obj.* FROM (\n" +
			indent(v.ooQueries[name], 4) + "\n" +
			") AS obj INNER JOIN (\n" +
			"    SELECT DISTINCT " + fields + " FROM (\n" +
			indent(strings.Join(tq.stmts, "\nUNION ALL\n"), 8) + "\n" +
			"    )\n" +
			") AS ids USING(" + fields + ")"
		it, err := d.query(stmt, tq.params...).Read(ctx)
		if err != nil {
			return nil, kcerr.Wrapf(err, "querying %s objects", name)
		}
		list := []map[string]any{}
		err = scanRows(it, func(row map[string]bigquery.Value) error {
			obj, err := unpackObject(row, false)
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

// loadTable uploads one object list as a JSON load job appending to
// the raw table.
func (d *Driver) loadTable(ctx context.Context, t table, list []any, withMetadata bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return kcerr.Fmt("%s list element is %T, not an object", t.name, item)
		}
		row, err := t.pack(obj, withMetadata)
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return kcerr.Wrap(err)
		}
	}
	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.JSON
	source.Schema = t.bqSchema(withMetadata)
	job, err := d.dataset.Table(t.rawName()).LoaderFrom(source).Run(ctx)
	if err != nil {
		return kcerr.Wrapf(err, "loading into table %q", t.rawName())
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return kcerr.Wrapf(err, "loading into table %q", t.rawName())
	}
	if err := status.Err(); err != nil {
		for _, detail := range status.Errors {
			err = multierror.Append(err, detail)
		}
		return kcerr.Wrapf(err, "loading into table %q", t.rawName())
	}
	return nil
}

// Load implements db.Driver. The loads append to the raw tables
// unconditionally; the deduplicating views resolve the duplicates this
// accumulates.
func (d *Driver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return errNotInitialized()
	}
	for _, t := range d.current.tables {
		list, _ := data[t.name].([]any)
		if len(list) == 0 {
			continue
		}
		if err := d.loadTable(ctx, t, list, withMetadata); err != nil {
			return err
		}
	}
	return nil
}

// Close implements db.Driver.
func (d *Driver) Close() error {
	return kcerr.Wrap(d.client.Close())
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
