package main

import (
	"context"
	"net/http"
	"os"

	"github.com/dukex/courier/pkg/cmd"
	"github.com/dukex/courier/pkg/config"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/log"
	"github.com/dukex/courier/pkg/metrics"
	"github.com/dukex/courier/pkg/otelhelper"
	"github.com/dukex/courier/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	app := &cli.Command{
		Name:                  "courier-api",
		Usage:                 "Deliver events to destinations over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Token store URL (file://path or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type used for asynchronous deliveries (kafka, gochannel); empty disables them",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to synchronize token refreshes across instances",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "instances-file",
				Usage:   "YAML file declaring destination instances",
				Sources: cli.EnvVars("INSTANCES_FILE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces with OTLP over HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   log.FormatText,
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Courier API")

			if command.Bool("tracing") {
				_, shutdown, err := otelhelper.NewTracer(ctx, "courier-api")
				if err != nil {
					return err
				}

				defer func() {
					err := shutdown(context.WithoutCancel(ctx))
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
					}
				}()
			}

			catalog, err := cmd.NewCatalog(logger, http.DefaultClient)
			if err != nil {
				return err
			}

			instances := map[string]config.Instance{}

			if path := command.String("instances-file"); path != "" {
				instances, err = config.LoadInstances(path)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Loaded destination instances", "count", len(instances))
			}

			tokens := cmd.NewTokenStore(ctx, logger, command.String("database-url"))
			defer func() {
				err := tokens.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close token store", "error", err)
				}
			}()

			var eventBus eventbus.EventBus

			if provider := command.String("event-bus"); provider != "" {
				eventBus = cmd.NewEventBus(provider, command.String("kafka-brokers"), "courier-api", logger)
				defer func() {
					err := eventBus.Close()
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			api := NewAPI(
				logger,
				catalog,
				services.DeliveryConfig{
					Tokens:       tokens,
					Synchronizer: cmd.NewRefreshSynchronizer(command.String("redis-url"), logger),
				},
				eventBus,
				metrics.NewPrometheus("courier", true),
				instances,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
