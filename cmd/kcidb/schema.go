package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/orm"
)

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "inspect report schemas",
		Subcommands: []*cli.Command{
			{
				Name:  "dot",
				Usage: "print the object type graph in Graphviz DOT format",
				Action: func(ctx *cli.Context) error {
					fmt.Print(orm.ReportTypes.FormatDot())
					return nil
				},
			},
			{
				Name:  "versions",
				Usage: "list the interchange schema versions",
				Action: func(ctx *cli.Context) error {
					for _, version := range ioschema.History {
						marker := " "
						if version == ioschema.Latest {
							marker = "*"
						}
						fmt.Printf("%s %s\n", marker, version)
					}
					return nil
				},
			},
		},
	}
}
