package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kcerr"
)

var versionRE = regexp.MustCompile(`^(\d+)\.(\d+)$`)

// parseVersionFlag parses the --schema flag value into a database
// schema version, defaulting to the newest one the client supports.
func parseVersionFlag(ctx *cli.Context, client *db.Client) (db.Version, error) {
	schemas := client.GetSchemas()
	str := ctx.String(schemaFlagName)
	if str == "" {
		return schemas[len(schemas)-1].Version, nil
	}
	match := versionRE.FindStringSubmatch(str)
	if match == nil {
		return db.Version{}, kcerr.Fmt("Invalid schema version %q, expecting \"<major>.<minor>\"", str)
	}
	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	return db.Version{Major: major, Minor: minor}, nil
}

func schemaFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:  schemaFlagName,
		Usage: usage,
	}
}

func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "maintain a report database",
		Subcommands: []*cli.Command{
			{
				Name:  "drivers",
				Usage: "list the available database drivers and their parameters",
				Action: func(ctx *cli.Context) error {
					fmt.Print(db.Help())
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "initialize a report database",
				Flags: []cli.Flag{
					databaseFlag(),
					schemaFlag("database schema version to initialize to, \"<major>.<minor>\", default newest"),
					&cli.BoolFlag{
						Name:  "ignore-initialized",
						Usage: "do not fail if the database is already initialized",
					},
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					if ctx.Bool("ignore-initialized") {
						initialized, err := client.IsInitialized(ctx.Context)
						if err != nil {
							return err
						}
						if initialized {
							return nil
						}
					}
					version, err := parseVersionFlag(ctx, client)
					if err != nil {
						return err
					}
					return client.Init(ctx.Context, version)
				},
			},
			{
				Name:  "upgrade",
				Usage: "upgrade the database schema",
				Flags: []cli.Flag{
					databaseFlag(),
					schemaFlag("database schema version to upgrade to, \"<major>.<minor>\", default newest"),
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					version, err := parseVersionFlag(ctx, client)
					if err != nil {
						return err
					}
					return client.Upgrade(ctx.Context, version)
				},
			},
			{
				Name:  "cleanup",
				Usage: "deinitialize a report database, removing all data",
				Flags: []cli.Flag{
					databaseFlag(),
					&cli.BoolFlag{
						Name:  "ignore-not-initialized",
						Usage: "do not fail if the database is not initialized",
					},
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					if ctx.Bool("ignore-not-initialized") {
						initialized, err := client.IsInitialized(ctx.Context)
						if err != nil {
							return err
						}
						if !initialized {
							return nil
						}
					}
					return client.Cleanup(ctx.Context)
				},
			},
			{
				Name:  "empty",
				Usage: "remove all data from the database, keeping it initialized",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					return client.Empty(ctx.Context)
				},
			},
			{
				Name:  "purge",
				Usage: "remove data that arrived before a cutoff time",
				Flags: []cli.Flag{
					databaseFlag(),
					&cli.TimestampFlag{
						Name:   "before",
						Layout: time.RFC3339,
						Usage:  "cutoff time (RFC 3339); omit to only check purging is supported",
					},
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					var before time.Time
					if t := ctx.Timestamp("before"); t != nil {
						before = *t
					}
					supported, err := client.Purge(ctx.Context, before)
					if err != nil {
						return err
					}
					if !supported {
						return kcerr.Fmt("Database does not support purging")
					}
					return nil
				},
			},
			{
				Name:  "dump",
				Usage: "dump all database data to stdout as interchange JSON",
				Flags: []cli.Flag{
					databaseFlag(),
					indentFlag(),
					&cli.IntFlag{
						Name:    objectsPerReportFlagName,
						Aliases: []string{"o"},
						Usage:   "maximum number of objects per dumped report, 0 for no limit",
					},
					&cli.BoolFlag{
						Name:  withMetadataFlagName,
						Usage: "include database-generated metadata fields",
					},
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					reports, err := client.DumpIter(ctx.Context, db.DumpOpts{
						ObjectsPerReport: ctx.Int(objectsPerReportFlagName),
						WithMetadata:     ctx.Bool(withMetadataFlagName),
					})
					if err != nil {
						return err
					}
					defer reports.Close()
					for reports.Next() {
						if err := outputJSON(ctx, reports.Report()); err != nil {
							return err
						}
					}
					return reports.Err()
				},
			},
			{
				Name:  "query",
				Usage: "fetch objects from the database as interchange JSON",
				Flags: []cli.Flag{
					databaseFlag(),
					indentFlag(),
					&cli.StringSliceFlag{
						Name:    "checkout-id",
						Aliases: []string{"c"},
						Usage:   "ID of a checkout to match",
					},
					&cli.StringSliceFlag{
						Name:    "build-id",
						Aliases: []string{"b"},
						Usage:   "ID of a build to match",
					},
					&cli.StringSliceFlag{
						Name:    "test-id",
						Aliases: []string{"t"},
						Usage:   "ID of a test to match",
					},
					&cli.StringSliceFlag{
						Name:  "issue-id",
						Usage: "ID of an issue to match",
					},
					&cli.StringSliceFlag{
						Name:  "incident-id",
						Usage: "ID of an incident to match",
					},
					&cli.BoolFlag{
						Name:  "parents",
						Usage: "match all ancestors of matched objects",
					},
					&cli.BoolFlag{
						Name:  "children",
						Usage: "match all descendants of matched objects",
					},
					&cli.IntFlag{
						Name:    objectsPerReportFlagName,
						Aliases: []string{"o"},
						Usage:   "maximum number of objects per fetched report, 0 for no limit",
					},
					&cli.BoolFlag{
						Name:  withMetadataFlagName,
						Usage: "include database-generated metadata fields",
					},
				},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					ids := map[string][]string{}
					for flagName, listName := range map[string]string{
						"checkout-id": "checkouts",
						"build-id":    "builds",
						"test-id":     "tests",
						"issue-id":    "issues",
						"incident-id": "incidents",
					} {
						if values := ctx.StringSlice(flagName); len(values) > 0 {
							ids[listName] = values
						}
					}
					reports, err := client.QueryIter(ctx.Context, db.QueryOpts{
						IDs:              ids,
						Children:         ctx.Bool("children"),
						Parents:          ctx.Bool("parents"),
						ObjectsPerReport: ctx.Int(objectsPerReportFlagName),
						WithMetadata:     ctx.Bool(withMetadataFlagName),
					})
					if err != nil {
						return err
					}
					defer reports.Close()
					for reports.Next() {
						if err := outputJSON(ctx, reports.Report()); err != nil {
							return err
						}
					}
					return reports.Err()
				},
			},
			{
				Name:  "load",
				Usage: "load a stream of interchange JSON from stdin into the database",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					schema, err := client.GetSchema(ctx.Context)
					if err != nil {
						return err
					}
					return inputJSON(func(data map[string]any) error {
						if err := schema.IO.Validate(data); err != nil {
							return err
						}
						data, err := schema.IO.Upgrade(data)
						if err != nil {
							return err
						}
						return client.Load(ctx.Context, data, false)
					})
				},
			},
			{
				Name:  "schemas",
				Usage: "list the schema versions the database driver supports",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					var current db.Version
					if initialized, err := client.IsInitialized(ctx.Context); err != nil {
						return err
					} else if initialized {
						schema, err := client.GetSchema(ctx.Context)
						if err != nil {
							return err
						}
						current = schema.Version
					}
					for _, schema := range client.GetSchemas() {
						marker := " "
						if schema.Version == current {
							marker = "*"
						}
						fmt.Fprintf(os.Stdout, "%s %s: I/O %s\n",
							marker, schema.Version, schema.IO)
					}
					return nil
				},
			},
			{
				Name:  "time",
				Usage: "print the current time of the database server",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					now, err := client.GetCurrentTime(ctx.Context)
					if err != nil {
						return err
					}
					fmt.Println(now.Format(time.RFC3339Nano))
					return nil
				},
			},
			{
				Name:  "modified",
				Usage: "print the time the database data was last modified",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					modified, err := client.GetLastModified(ctx.Context)
					if err != nil {
						return err
					}
					if modified.IsZero() {
						return kcerr.Fmt("Database does not track modification time")
					}
					fmt.Println(modified.Format(time.RFC3339Nano))
					return nil
				},
			},
		},
	}
}
