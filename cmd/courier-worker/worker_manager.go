package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/courier/pkg/batcher"
	"github.com/dukex/courier/pkg/cmd"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/log"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/otelhelper"
	"github.com/dukex/courier/pkg/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WorkerManager consumes delivery requests from the event bus. Requests
// without a batch key are delivered at once; the others are grouped by the
// batcher and delivered together. Batched requests are journaled before their
// message is acked and leave the journal once delivered.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	delivery *services.Delivery
	batcher  *batcher.Batcher
	tracer   trace.Tracer
}

func NewWorkerManager(
	id string,
	catalog *cmd.Catalog,
	config services.DeliveryConfig,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	batchConfig batcher.Config,
	journal batcher.Journal,
) (*WorkerManager, error) {
	w := &WorkerManager{
		id:       id,
		logger:   logger.With("module", "courier-worker", "worker_id", id),
		eventBus: eventBus,
		tracer:   otelhelper.Tracer("courier-worker"),
	}

	config.Logger = w.logger
	config.OnComplete = w.publishCompleted
	w.delivery = services.NewDelivery(catalog, config)

	b, err := batcher.New(batchConfig, w.flush, w.logger)
	if err != nil {
		return nil, err
	}

	if journal != nil {
		b.UseJournal(journal, id)
	}

	w.batcher = b

	return w, nil
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.DeliveryRequestedEvent, w.handleDeliveryRequested)
	if err != nil {
		return err
	}

	err = w.batcher.Start(ctx)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return w.batcher.Stop(context.WithoutCancel(ctx))
}

// handleDeliveryRequested only returns an error for cancellations and journal
// failures, so the message is redelivered. Other failures were already retried
// by the engine and are reported with a DeliveryFailed event instead.
func (w *WorkerManager) handleDeliveryRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.DeliveryRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DeliveryRequested")

		return nil
	}

	if request.BatchKey != "" {
		return w.batcher.Add(ctx, *request)
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.deliver",
		attribute.String(otelhelper.DestinationKey, request.Destination),
		attribute.String(otelhelper.EventIDKey, request.ID),
	)
	defer span.End()

	logger := w.logger.With("destination", request.Destination, "event_id", request.ID)
	logger.DebugContext(ctx, "Processing delivery request")

	ctx = log.WithLogger(ctx, logger)

	_, err := w.delivery.Deliver(ctx, request.Destination, request.Event, request.Settings)
	if err != nil {
		otelhelper.SetError(span, err)

		return w.fail(ctx, request.Destination, []string{request.ID}, err)
	}

	return nil
}

func (w *WorkerManager) flush(ctx context.Context, key batcher.Key, requests []events.DeliveryRequested) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.flush",
		attribute.String(otelhelper.DestinationKey, key.Destination),
		attribute.Int(otelhelper.BatchSizeKey, len(requests)),
	)
	defer span.End()

	ctx = log.WithLogger(ctx, w.logger.With("destination", key.Destination, "batch_key", key.BatchKey))

	batch := make([]models.Event, len(requests))
	ids := make([]string, len(requests))

	for i, request := range requests {
		batch[i] = request.Event
		ids[i] = request.ID
	}

	// Requests sharing a batch key belong to the same destination instance.
	_, err := w.delivery.DeliverBatch(ctx, key.Destination, batch, requests[0].Settings)
	if err != nil {
		otelhelper.SetError(span, err)

		return w.fail(ctx, key.Destination, ids, err)
	}

	return nil
}

func (w *WorkerManager) fail(ctx context.Context, destination string, ids []string, cause error) error {
	if integration.IsCancelled(cause) {
		return cause
	}

	w.logger.WarnContext(ctx, "Delivery failed", "destination", destination, "requests", len(ids), "error", cause)

	failed := events.DeliveryFailed{
		BaseEvent:  events.NewBaseEvent(events.DeliveryFailedEvent, destination),
		RequestIDs: ids,
		Error:      cause.Error(),
		Code:       integration.Code(cause),
		Status:     integration.StatusCode(cause),
	}
	failed.WorkerID = w.id

	err := w.eventBus.Publish(ctx, destination, failed)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish delivery failed event", "error", err)

		return err
	}

	return nil
}

func (w *WorkerManager) publishCompleted(ctx context.Context, stats models.SubscriptionStats) {
	completed := events.NewSubscriptionCompleted(stats)
	completed.WorkerID = w.id

	err := w.eventBus.Publish(ctx, stats.Destination, completed)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish subscription completed event", "error", err)
	}
}
