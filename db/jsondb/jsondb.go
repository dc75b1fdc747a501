// Package jsondb provides the "json" database driver: an in-memory
// SQLite database seeded with interchange JSON read from a file or
// standard input. Useful for running queries against report files
// without setting up a database.
package jsondb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/db/sqlite"
	"go.kernelci.org/kcidb/go/kcerr"
)

const doc = `The JSON driver allows connection to an in-memory SQLite database
initialized with interchange JSON read from standard input or an
optionally specified JSON file.

Parameters: [FILE]

[FILE]  An optional path to a file containing interchange JSON to read
        as initial database data. If not specified, standard input is
        read. The file is never modified.`

func init() {
	db.Register("json", doc, func(ctx context.Context, params *string) (db.Driver, error) {
		var source io.Reader = os.Stdin
		if params != nil {
			file, err := os.Open(*params)
			if err != nil {
				return nil, kcerr.Wrap(err)
			}
			defer file.Close()
			source = file
		}
		return open(ctx, source)
	})
}

// open seeds a fresh in-memory database, initialized to the latest
// schema version, with the stream of interchange JSON documents read
// from source. Each document is validated against the schema version
// it claims and upgraded to the database's version before loading.
func open(ctx context.Context, source io.Reader) (db.Driver, error) {
	memory := ":memory:"
	driver, err := sqlite.Open(ctx, &memory)
	if err != nil {
		return nil, err
	}
	schemas := driver.GetSchemas()
	latest := schemas[len(schemas)-1]
	if err := driver.Init(ctx, latest.Version); err != nil {
		_ = driver.Close()
		return nil, err
	}
	decoder := json.NewDecoder(source)
	for {
		var data map[string]any
		err := decoder.Decode(&data)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = driver.Close()
			return nil, kcerr.Wrapf(err, "decoding initial data")
		}
		if err := latest.IO.Validate(data); err != nil {
			_ = driver.Close()
			return nil, kcerr.Wrapf(err, "invalid initial data")
		}
		data, err = latest.IO.Upgrade(data)
		if err != nil {
			_ = driver.Close()
			return nil, err
		}
		if err := driver.Load(ctx, data, false); err != nil {
			_ = driver.Close()
			return nil, err
		}
	}
	return driver, nil
}
