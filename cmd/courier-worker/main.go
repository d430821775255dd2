package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dukex/courier/pkg/batcher"
	"github.com/dukex/courier/pkg/cmd"
	"github.com/dukex/courier/pkg/log"
	"github.com/dukex/courier/pkg/metrics"
	"github.com/dukex/courier/pkg/otelhelper"
	"github.com/dukex/courier/pkg/services"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultMetricsPort = 9092

func main() {
	app := &cli.Command{
		Name:                  "courier-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers delivering queued events to destinations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Worker ID owning the batch journal (defaults to the hostname)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Token store and batch journal URL (file://path or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to synchronize token refreshes across workers",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum number of events delivered in one batch",
				Value:   batcher.DefaultMaxSize,
				Sources: cli.EnvVars("BATCH_SIZE"),
			},
			&cli.StringFlag{
				Name:    "flush-schedule",
				Usage:   "Cron schedule flushing pending batches",
				Value:   batcher.DefaultSchedule,
				Sources: cli.EnvVars("FLUSH_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving Prometheus metrics, 0 disables it",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("METRICS_PORT"),
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

			workerID := defaultWorkerID(command.String("worker-id"))

			logger := log.WithModule("courier-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Courier Worker")

			if command.Bool("tracing") {
				_, shutdown, err := otelhelper.NewTracer(ctx, "courier-worker")
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

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "courier-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tokens := cmd.NewTokenStore(ctx, logger, command.String("database-url"))
			defer func() {
				err := tokens.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close token store", "error", err)
				}
			}()

			journal := cmd.NewBatchJournal(ctx, logger, command.String("database-url"))
			defer func() {
				err := journal.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close batch journal", "error", err)
				}
			}()

			prometheus := metrics.NewPrometheus("courier", true)

			if port := command.Int("metrics-port"); port > 0 {
				server := &http.Server{
					Addr:              ":" + strconv.Itoa(port),
					Handler:           prometheus.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}

				go func() {
					err := server.ListenAndServe()
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
					}
				}()

				defer func() {
					_ = server.Shutdown(context.WithoutCancel(ctx))
				}()
			}

			worker, err := NewWorkerManager(
				workerID,
				catalog,
				services.DeliveryConfig{
					Tokens:       tokens,
					Synchronizer: cmd.NewRefreshSynchronizer(command.String("redis-url"), logger),
					Metrics:      prometheus,
				},
				eventBus,
				logger,
				batcher.Config{
					MaxSize:  command.Int("batch-size"),
					Schedule: command.String("flush-schedule"),
				},
				journal,
			)
			if err != nil {
				return err
			}

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// defaultWorkerID keeps the id stable across restarts of the same host so the
// batch journal it owns is recovered.
func defaultWorkerID(configured string) string {
	if configured != "" {
		return configured
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}

	return "worker-" + uuid.New().String()[:8]
}
