package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.kernelci.org/kcidb/go/kcerr"
)

// An Opener creates a driver instance from the parameters portion of a
// database specification. params is nil when the specification carried
// no parameters at all (no colon separator).
type Opener func(ctx context.Context, params *string) (Driver, error)

type registryEntry struct {
	open Opener
	doc  string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registryEntry{}
)

// Register makes a driver available to Open under the given name, with
// a documentation string describing the driver and its parameters.
// Driver packages call Register from their init functions; importing a
// driver package is what makes its databases reachable.
func Register(name, doc string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if open == nil {
		panic("db: Register with nil opener")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("db: duplicate driver name %q", name))
	}
	registry[name] = registryEntry{open: open, doc: doc}
}

// Drivers returns the names of the registered drivers, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Help returns usage documentation for every registered driver,
// suitable for command-line help output.
func Help() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s\n", name)
		for _, line := range strings.Split(strings.TrimRight(registry[name].doc, "\n"), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Open creates a driver instance from a database specification string,
// resolving the driver name against the registry.
func Open(ctx context.Context, spec string) (Driver, error) {
	name, params, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	entry, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, kcerr.Fmt("Unknown driver %q in database specification: %q", name, spec)
	}
	driver, err := entry.open(ctx, params)
	if err != nil {
		return nil, kcerr.Wrapf(err, "opening database %q", spec)
	}
	return driver, nil
}
