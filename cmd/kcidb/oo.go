package main

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/orm"
)

func ooCommand() *cli.Command {
	return &cli.Command{
		Name:  "oo",
		Usage: "query object-oriented report data",
		Subcommands: []*cli.Command{
			{
				Name:        "query",
				Usage:       "fetch objects matching pattern strings",
				ArgsUsage:   "PATTERN...",
				Description: orm.PatternStringDoc,
				Flags: []cli.Flag{
					databaseFlag(),
					indentFlag(),
					&cli.StringFlag{
						Name:  "ids",
						Usage: "JSON list of ID sets substituting \"%\" placeholders, " +
							"each a list of ID field value lists",
					},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() == 0 {
						return kcerr.Fmt("No pattern strings specified")
					}
					var idSets []orm.StringIDs
					if str := ctx.String("ids"); str != "" {
						if ctx.NArg() > 1 {
							return kcerr.Fmt("--ids requires a single pattern string")
						}
						if err := json.Unmarshal([]byte(str), &idSets); err != nil {
							return kcerr.Wrapf(err, "decoding --ids")
						}
					}
					patterns := orm.NewPatternSet()
					for _, str := range ctx.Args().Slice() {
						parsed, err := orm.ParsePatterns(str, idSets, nil)
						if err != nil {
							return err
						}
						patterns.AddSet(parsed)
					}
					client, err := openClient(ctx)
					if err != nil {
						return err
					}
					defer client.Close()
					// Prefetching warms the cache underneath it, so
					// follow-up subtree queries in one process are
					// free; for this one-shot tool it simply batches
					// the fetch.
					source := orm.NewPrefetcher(orm.NewCache(client, nil), nil)
					response, err := source.OOQuery(ctx.Context, patterns)
					if err != nil {
						return err
					}
					return outputJSON(ctx, response)
				},
			},
		},
	}
}
