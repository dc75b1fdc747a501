// Package mux provides the multiplexing database driver: several
// member databases behind one driver interface, with loads fanned out
// to every member and reads served by the first.
package mux

import (
	"context"
	"errors"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

const doc = `The mux driver allows loading data into multiple databases at
once, and querying one of them.

Parameters: <DATABASES>

<DATABASES>     A whitespace-separated list of strings describing the
                multiplexed databases (<DRIVER>[:<PARAMS>] pairs). Any
                spaces or backslashes in database strings need to be
                escaped with backslashes. Each database will receive
                the loaded data, but only the first one will be
                queried.`

func init() {
	db.Register("mux", doc, Open)
}

// ErrInconsistentState is returned when the member databases disagree
// on initialization status. The mux requires all members initialized,
// or none, and never reconciles a split on its own.
var ErrInconsistentState = errors.New("Member databases disagree on initialization status")

// compositeSchema is one step of the synthesized version lattice: a
// mux schema version, the interchange schema it supports (the minimum
// across members), and the version each member runs at this step.
type compositeSchema struct {
	number  db.Version
	io      *ioschema.Version
	members []db.Version
}

// Driver is the multiplexing database driver.
//
// Its schema versions are synthesized from the members': starting from
// the members' state at open time, each subsequent version advances
// one member a single step along its own schema list, interleaving
// members in order of the interchange schema history. Version (0, 0)
// therefore always describes the databases as found, and the lattice
// changes meaning across reopens.
type Driver struct {
	drivers []db.Driver
	schemas []compositeSchema

	mu      sync.Mutex
	current db.Version
}

var _ db.Driver = (*Driver)(nil)

func errNotInitialized() error {
	return kcerr.Fmt("Database is not initialized")
}

// Open creates a driver instance for the member databases the
// parameter string lists. See the package documentation string for
// the parameter syntax. Member specifications resolve against the
// driver registry, so a mux can contain any registered driver,
// including another mux.
func Open(ctx context.Context, params *string) (db.Driver, error) {
	if params == nil {
		return nil, kcerr.Fmt("Database parameters must be specified\n\n%s", doc)
	}
	specs, err := db.SplitSpecList(*params)
	if err != nil {
		return nil, err
	}
	drivers := make([]db.Driver, 0, len(specs))
	closeAll := func() {
		for _, driver := range drivers {
			_ = driver.Close()
		}
	}
	for _, spec := range specs {
		driver, err := db.Open(ctx, spec)
		if err != nil {
			closeAll()
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	d, err := New(ctx, drivers)
	if err != nil {
		closeAll()
		return nil, err
	}
	return d, nil
}

// New builds a mux over already-opened member drivers. The first
// member serves all reads. On success the mux owns the members and
// closes them with itself; on error the caller keeps ownership.
func New(ctx context.Context, drivers []db.Driver) (*Driver, error) {
	if len(drivers) == 0 {
		return nil, kcerr.Fmt("No databases specified\n\n%s", doc)
	}
	d := &Driver{drivers: drivers}
	if err := d.synthesizeSchemas(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// memberInitialized checks that every member agrees on initialization
// status and returns it. Disagreement fails with ErrInconsistentState.
func memberInitialized(ctx context.Context, drivers []db.Driver) (bool, error) {
	initialized, err := drivers[0].IsInitialized(ctx)
	if err != nil {
		return false, err
	}
	for _, driver := range drivers[1:] {
		other, err := driver.IsInitialized(ctx)
		if err != nil {
			return false, err
		}
		if other != initialized {
			return false, ErrInconsistentState
		}
	}
	return initialized, nil
}

// synthesizeSchemas builds the composite version lattice. Each member
// gets an index into its own schema list, at its current version if
// initialized, else at its oldest. Walking the interchange schema
// history oldest to newest, every member still below its last schema
// at the visited interchange level contributes one composite step per
// advance; one final step records the state the walk ends in.
// Composite numbering bumps the major version exactly when a member's
// major version grew over the preceding step.
func (d *Driver) synthesizeSchemas(ctx context.Context) error {
	initialized, err := memberInitialized(ctx, d.drivers)
	if err != nil {
		return err
	}
	type memberState struct {
		schemas []db.SchemaVersion
		index   int
	}
	members := make([]memberState, len(d.drivers))
	for i, driver := range d.drivers {
		schemas := driver.GetSchemas()
		index := 0
		if initialized {
			current, err := driver.GetSchema(ctx)
			if err != nil {
				return err
			}
			for index < len(schemas) && schemas[index].Version != current.Version {
				index++
			}
			if index == len(schemas) {
				return &db.UnsupportedSchemaError{Version: current.Version}
			}
		}
		members[i] = memberState{schemas: schemas, index: index}
	}

	var steps []compositeSchema
	addStep := func() {
		step := compositeSchema{members: make([]db.Version, len(members))}
		for i, m := range members {
			s := m.schemas[m.index]
			step.members[i] = s.Version
			if step.io == nil || ioLess(s.IO, step.io) {
				step.io = s.IO
			}
		}
		steps = append(steps, step)
	}
	for _, ioVersion := range ioschema.History {
		for i := range members {
			m := &members[i]
			for m.index < len(m.schemas)-1 && m.schemas[m.index].IO == ioVersion {
				addStep()
				m.index++
			}
		}
	}
	addStep()

	var number db.Version
	for i := range steps {
		if i > 0 {
			for j, previous := range steps[i-1].members {
				if steps[i].members[j].Major > previous.Major {
					number.Major++
					number.Minor = 0
				}
			}
		}
		steps[i].number = number
		number.Minor++
	}
	d.schemas = steps
	d.current = db.Version{}
	return nil
}

func ioLess(a, b *ioschema.Version) bool {
	return a.Major < b.Major || (a.Major == b.Major && a.Minor < b.Minor)
}

func (d *Driver) schemaFor(number db.Version) *compositeSchema {
	for i := range d.schemas {
		if d.schemas[i].number == number {
			return &d.schemas[i]
		}
	}
	return nil
}

// IsInitialized implements db.Driver. All members must agree: a mix of
// initialized and uninitialized members fails with
// ErrInconsistentState.
func (d *Driver) IsInitialized(ctx context.Context) (bool, error) {
	return memberInitialized(ctx, d.drivers)
}

// Init implements db.Driver, initializing every member to its version
// recorded for the requested composite version, in member order. A
// failure partway leaves the members initialized so far as they are.
func (d *Driver) Init(ctx context.Context, number db.Version) error {
	initialized, err := memberInitialized(ctx, d.drivers)
	if err != nil {
		return err
	}
	if initialized {
		return kcerr.Fmt("Database is already initialized")
	}
	schema := d.schemaFor(number)
	if schema == nil {
		return &db.UnsupportedSchemaError{Version: number}
	}
	for i, driver := range d.drivers {
		if err := driver.Init(ctx, schema.members[i]); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.current = number
	d.mu.Unlock()
	return nil
}

// Cleanup implements db.Driver, deinitializing every member in order.
func (d *Driver) Cleanup(ctx context.Context) error {
	for _, driver := range d.drivers {
		if err := driver.Cleanup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Empty implements db.Driver, removing all data from every member.
func (d *Driver) Empty(ctx context.Context) error {
	for _, driver := range d.drivers {
		if err := driver.Empty(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Purge implements db.Driver. Purging is supported only when every
// member supports it; members that can purge do so regardless, a mixed
// mux just reports false.
func (d *Driver) Purge(ctx context.Context, before time.Time) (bool, error) {
	supported := true
	for _, driver := range d.drivers {
		memberSupported, err := driver.Purge(ctx, before)
		if err != nil {
			return false, err
		}
		supported = supported && memberSupported
	}
	return supported, nil
}

// GetCurrentTime implements db.Driver, returning the earliest of the
// members' server times: data loaded through the mux after that moment
// arrives later than it on every member.
func (d *Driver) GetCurrentTime(ctx context.Context) (time.Time, error) {
	var earliest time.Time
	for i, driver := range d.drivers {
		current, err := driver.GetCurrentTime(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 || current.Before(earliest) {
			earliest = current
		}
	}
	return earliest, nil
}

// GetLastModified implements db.Driver, returning the latest of the
// members' modification times.
func (d *Driver) GetLastModified(ctx context.Context) (time.Time, error) {
	var latest time.Time
	for _, driver := range d.drivers {
		modified, err := driver.GetLastModified(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if modified.After(latest) {
			latest = modified
		}
	}
	return latest, nil
}

// GetSchemas implements db.Driver.
func (d *Driver) GetSchemas() []db.SchemaVersion {
	schemas := make([]db.SchemaVersion, len(d.schemas))
	for i, s := range d.schemas {
		schemas[i] = db.SchemaVersion{Version: s.number, IO: s.io}
	}
	return schemas
}

// GetSchema implements db.Driver.
func (d *Driver) GetSchema(ctx context.Context) (db.SchemaVersion, error) {
	initialized, err := memberInitialized(ctx, d.drivers)
	if err != nil {
		return db.SchemaVersion{}, err
	}
	if !initialized {
		return db.SchemaVersion{}, errNotInitialized()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	schema := d.schemaFor(d.current)
	return db.SchemaVersion{Version: schema.number, IO: schema.io}, nil
}

// Upgrade implements db.Driver, walking the composite versions between
// the current one and the target and applying each step's recorded
// version to every member, in member order. A failure partway leaves
// members at inconsistent versions.
func (d *Driver) Upgrade(ctx context.Context, target db.Version) error {
	initialized, err := memberInitialized(ctx, d.drivers)
	if err != nil {
		return err
	}
	if !initialized {
		return errNotInitialized()
	}
	if d.schemaFor(target) == nil {
		return &db.UnsupportedSchemaError{Version: target}
	}
	d.mu.Lock()
	start := d.current
	d.mu.Unlock()
	if target.Cmp(start) < 0 {
		return kcerr.Fmt("Target schema v%s is older than the current schema v%s",
			target, start)
	}
	for i := range d.schemas {
		step := &d.schemas[i]
		if step.number.Cmp(start) <= 0 {
			continue
		}
		if step.number.Cmp(target) > 0 {
			break
		}
		for j, driver := range d.drivers {
			if err := driver.Upgrade(ctx, step.members[j]); err != nil {
				return err
			}
		}
		d.mu.Lock()
		d.current = step.number
		d.mu.Unlock()
	}
	return nil
}

// DumpIter implements db.Driver, dumping from the first member.
func (d *Driver) DumpIter(ctx context.Context, opts db.DumpOpts) (*db.Reports, error) {
	return d.drivers[0].DumpIter(ctx, opts)
}

// QueryIter implements db.Driver, querying the first member.
func (d *Driver) QueryIter(ctx context.Context, opts db.QueryOpts) (*db.Reports, error) {
	return d.drivers[0].QueryIter(ctx, opts)
}

// OOQuery implements db.Driver, querying the first member.
func (d *Driver) OOQuery(ctx context.Context, patterns orm.PatternSet) (map[string][]map[string]any, error) {
	return d.drivers[0].OOQuery(ctx, patterns)
}

// Load implements db.Driver, loading the data into every member in
// order. The data must be directly compatible with the mux's current
// interchange schema, the oldest across members; a member on a newer
// schema receives an upgraded copy. A failure partway leaves the
// members loaded so far as they are.
func (d *Driver) Load(ctx context.Context, data map[string]any, withMetadata bool) error {
	schema, err := d.GetSchema(ctx)
	if err != nil {
		return err
	}
	for _, driver := range d.drivers {
		memberSchema, err := driver.GetSchema(ctx)
		if err != nil {
			return err
		}
		memberData := data
		if memberSchema.IO != schema.IO {
			memberData, err = memberSchema.IO.Upgrade(ioschema.Copy(data))
			if err != nil {
				return err
			}
		}
		if err := driver.Load(ctx, memberData, withMetadata); err != nil {
			return err
		}
	}
	return nil
}

// Close implements db.Driver, closing every member.
func (d *Driver) Close() error {
	var closeErr *multierror.Error
	for _, driver := range d.drivers {
		if err := driver.Close(); err != nil {
			closeErr = multierror.Append(closeErr, err)
		}
	}
	return closeErr.ErrorOrNil()
}
