package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"go.kernelci.org/kcidb/go/kclog"
	"go.kernelci.org/kcidb/mq"
)

var metricQueueReports = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kcidb_queue_loaded_reports_total",
	Help: "Number of reports loaded into the database from the message queue.",
})

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "run message queue daemons",
		Subcommands: []*cli.Command{
			{
				Name:  "load",
				Usage: "load reports from the subscription into the database until interrupted",
				Flags: []cli.Flag{
					databaseFlag(),
					projectFlag(),
					topicFlag(),
					subscriptionFlag(true),
					&cli.StringFlag{
						Name:  "port",
						Value: ":8080",
						Usage: "address to serve /metrics and /healthz on",
					},
				},
				Action: func(cliCtx *cli.Context) error {
					ctx, stop := signal.NotifyContext(cliCtx.Context,
						syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					client, err := openClient(cliCtx)
					if err != nil {
						return err
					}
					defer client.Close()
					subscriber, err := mq.NewSubscriber(ctx,
						cliCtx.String(projectFlagName), cliCtx.String(topicFlagName),
						cliCtx.String(subscriptionFlagName))
					if err != nil {
						return err
					}
					defer subscriber.Close()

					router := chi.NewRouter()
					router.Handle("/metrics", promhttp.Handler())
					router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
						w.WriteHeader(http.StatusOK)
					})
					go func() {
						kclog.Fatal(http.ListenAndServe(cliCtx.String("port"), router))
					}()

					kclog.Infof("Loading reports from subscription %q into %q",
						cliCtx.String(subscriptionFlagName), cliCtx.String(databaseFlagName))
					return subscriber.Receive(ctx, func(ctx context.Context, data map[string]any) error {
						if err := client.Load(ctx, data, false); err != nil {
							return err
						}
						metricQueueReports.Inc()
						return nil
					})
				},
			},
		},
	}
}
