// Command kcidb maintains and queries kernel CI report databases and
// message queues. All logic lives in the library packages; this binary
// is flag parsing and wiring.
package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/db"
	"go.kernelci.org/kcidb/go/kclog"

	// Database drivers available to -d specifications.
	_ "go.kernelci.org/kcidb/db/bigquery"
	_ "go.kernelci.org/kcidb/db/jsondb"
	_ "go.kernelci.org/kcidb/db/mux"
	_ "go.kernelci.org/kcidb/db/null"
	_ "go.kernelci.org/kcidb/db/postgresql"
	_ "go.kernelci.org/kcidb/db/sqlite"
)

// flag names
const (
	databaseFlagName         = "database"
	schemaFlagName           = "schema"
	indentFlagName           = "indent"
	objectsPerReportFlagName = "objects-per-report"
	withMetadataFlagName     = "with-metadata"
	projectFlagName          = "project"
	topicFlagName            = "topic"
	subscriptionFlagName     = "subscription"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    databaseFlagName,
		Aliases: []string{"d"},
		Value:   "json",
		EnvVars: []string{"KCIDB_DATABASE"},
		Usage:   "database specification, \"<driver>[:<params>]\"; see 'kcidb db drivers'",
	}
}

func indentFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  indentFlagName,
		Value: 4,
		Usage: "number of spaces to indent JSON output with, 0 for single-line output",
	}
}

func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     projectFlagName,
		Aliases:  []string{"p"},
		EnvVars:  []string{"KCIDB_PROJECT"},
		Usage:    "ID of the Google Cloud project with the message queue",
		Required: true,
	}
}

func topicFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     topicFlagName,
		Aliases:  []string{"t"},
		EnvVars:  []string{"KCIDB_TOPIC"},
		Usage:    "name of the message queue topic",
		Required: true,
	}
}

func subscriptionFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     subscriptionFlagName,
		Aliases:  []string{"s"},
		EnvVars:  []string{"KCIDB_SUBSCRIPTION"},
		Usage:    "name of the message queue subscription",
		Required: required,
	}
}

// openClient opens the database named by the --database flag.
func openClient(ctx *cli.Context) (*db.Client, error) {
	return db.OpenSpec(ctx.Context, ctx.String(databaseFlagName))
}

// outputJSON writes one JSON document to stdout, indented per the
// --indent flag.
func outputJSON(ctx *cli.Context, data any) error {
	enc := json.NewEncoder(os.Stdout)
	if indent := ctx.Int(indentFlagName); indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	return enc.Encode(data)
}

// inputJSON reads a stream of JSON documents from stdin, calling
// handle for each one.
func inputJSON(handle func(data map[string]any) error) error {
	dec := json.NewDecoder(os.Stdin)
	for {
		var data map[string]any
		if err := dec.Decode(&data); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := handle(data); err != nil {
			return err
		}
	}
}

func main() {
	app := &cli.App{
		Name:  "kcidb",
		Usage: "maintain and query kernel CI report databases and message queues",
		Commands: []*cli.Command{
			dbCommand(),
			ooCommand(),
			mqCommand(),
			queueCommand(),
			schemaCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		kclog.Fatal(err)
	}
}
