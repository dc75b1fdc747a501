package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/ioschema"
	"go.kernelci.org/kcidb/mq"
)

func mqCommand() *cli.Command {
	return &cli.Command{
		Name:  "mq",
		Usage: "move reports through a message queue",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create the message queue topic, and the subscription if named",
				Flags: []cli.Flag{projectFlag(), topicFlag(), subscriptionFlag(false)},
				Action: func(ctx *cli.Context) error {
					publisher, err := mq.NewPublisher(ctx.Context,
						ctx.String(projectFlagName), ctx.String(topicFlagName))
					if err != nil {
						return err
					}
					defer publisher.Close()
					if err := publisher.Init(ctx.Context); err != nil {
						return err
					}
					if subscription := ctx.String(subscriptionFlagName); subscription != "" {
						subscriber, err := mq.NewSubscriber(ctx.Context,
							ctx.String(projectFlagName), ctx.String(topicFlagName),
							subscription)
						if err != nil {
							return err
						}
						defer subscriber.Close()
						return subscriber.Init(ctx.Context)
					}
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "remove the message queue topic, and the subscription if named",
				Flags: []cli.Flag{projectFlag(), topicFlag(), subscriptionFlag(false)},
				Action: func(ctx *cli.Context) error {
					if subscription := ctx.String(subscriptionFlagName); subscription != "" {
						subscriber, err := mq.NewSubscriber(ctx.Context,
							ctx.String(projectFlagName), ctx.String(topicFlagName),
							subscription)
						if err != nil {
							return err
						}
						defer subscriber.Close()
						if err := subscriber.Cleanup(ctx.Context); err != nil {
							return err
						}
					}
					publisher, err := mq.NewPublisher(ctx.Context,
						ctx.String(projectFlagName), ctx.String(topicFlagName))
					if err != nil {
						return err
					}
					defer publisher.Close()
					return publisher.Cleanup(ctx.Context)
				},
			},
			{
				Name:  "publish",
				Usage: "publish a stream of interchange JSON from stdin, printing publishing IDs",
				Flags: []cli.Flag{projectFlag(), topicFlag()},
				Action: func(ctx *cli.Context) error {
					publisher, err := mq.NewPublisher(ctx.Context,
						ctx.String(projectFlagName), ctx.String(topicFlagName))
					if err != nil {
						return err
					}
					defer publisher.Close()
					reports := make(chan map[string]any)
					errs := make(chan error, 1)
					go func() {
						defer close(reports)
						errs <- inputJSON(func(data map[string]any) error {
							if err := ioschema.Latest.Validate(data); err != nil {
								return err
							}
							data, err := ioschema.Latest.Upgrade(data)
							if err != nil {
								return err
							}
							reports <- data
							return nil
						})
					}()
					err = publisher.PublishIter(ctx.Context, func() (map[string]any, error) {
						data, ok := <-reports
						if !ok {
							return nil, nil
						}
						return data, nil
					}, func(id string) {
						fmt.Println(id)
					})
					// Unblock the reader if publishing stopped early.
					for range reports {
					}
					if inputErr := <-errs; inputErr != nil {
						return inputErr
					}
					return err
				},
			},
			{
				Name:  "subscribe",
				Usage: "pull one report from the subscription and print it as JSON",
				Flags: []cli.Flag{projectFlag(), topicFlag(), subscriptionFlag(true), indentFlag()},
				Action: func(ctx *cli.Context) error {
					subscriber, err := mq.NewSubscriber(ctx.Context,
						ctx.String(projectFlagName), ctx.String(topicFlagName),
						ctx.String(subscriptionFlagName))
					if err != nil {
						return err
					}
					defer subscriber.Close()
					data, err := subscriber.PullOne(ctx.Context)
					if err != nil {
						return err
					}
					return outputJSON(ctx, data)
				},
			},
		},
	}
}
