package db

import (
	"go.kernelci.org/kcidb/ioschema"
)

// Reports is a lazy sequence of interchange reports produced by dump
// and query operations. Iterate in the manner of database/sql rows:
//
//	reports, err := driver.DumpIter(ctx, opts)
//	if err != nil { ... }
//	defer reports.Close()
//	for reports.Next() {
//	    use(reports.Report())
//	}
//	if err := reports.Err(); err != nil { ... }
type Reports struct {
	next   func() (map[string]any, error)
	stop   func() error
	report map[string]any
	err    error
	done   bool
	closed bool
}

// NewReports builds a report sequence from a next function and an
// optional stop function releasing underlying resources. next returns
// the following report, or nil at the end of the sequence.
func NewReports(next func() (map[string]any, error), stop func() error) *Reports {
	return &Reports{next: next, stop: stop}
}

// ReportsOf returns a report sequence over a fixed slice of reports.
func ReportsOf(reports ...map[string]any) *Reports {
	i := 0
	return NewReports(func() (map[string]any, error) {
		if i >= len(reports) {
			return nil, nil
		}
		report := reports[i]
		i++
		return report, nil
	}, nil)
}

// Next advances to the following report, returning false at the end of
// the sequence or on error.
func (r *Reports) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	report, err := r.next()
	if err != nil {
		r.err = err
		r.report = nil
		r.done = true
		return false
	}
	if report == nil {
		r.report = nil
		r.done = true
		return false
	}
	r.report = report
	return true
}

// Report returns the report Next advanced to.
func (r *Reports) Report() map[string]any {
	return r.report
}

// Err returns the error that terminated iteration, if any.
func (r *Reports) Err() error {
	return r.err
}

// Close releases the resources of the sequence. It is safe to call
// multiple times and after exhausting the sequence.
func (r *Reports) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.done = true
	if r.stop != nil {
		return r.stop()
	}
	return nil
}

// ReportBuilder assembles a stream of objects into interchange reports
// holding at most a fixed number of objects each.
type ReportBuilder struct {
	io    *ioschema.Version
	max   int
	data  map[string]any
	count int
}

// NewReportBuilder returns a builder producing reports adhering to the
// given interchange schema version, each holding at most
// objectsPerReport objects. Zero means no limit: everything goes into
// one report.
func NewReportBuilder(io *ioschema.Version, objectsPerReport int) *ReportBuilder {
	return &ReportBuilder{io: io, max: objectsPerReport}
}

// Add appends an object to the named object list of the report under
// assembly. When the addition fills the report up to the chunk limit,
// the completed report is returned and assembly starts over; otherwise
// Add returns nil.
func (b *ReportBuilder) Add(listName string, obj map[string]any) map[string]any {
	if b.data == nil {
		b.data = b.io.NewData()
	}
	list, _ := b.data[listName].([]any)
	b.data[listName] = append(list, obj)
	b.count++
	if b.max > 0 && b.count >= b.max {
		data := b.data
		b.data = nil
		b.count = 0
		return data
	}
	return nil
}

// Flush returns the report under assembly, or nil if no objects were
// added since the last completed report.
func (b *ReportBuilder) Flush() map[string]any {
	if b.count == 0 {
		return nil
	}
	data := b.data
	b.data = nil
	b.count = 0
	return data
}
