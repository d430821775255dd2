package destination

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/otelhelper"
	"github.com/dukex/courier/pkg/retry"
	"github.com/dukex/courier/pkg/settings"
	"github.com/dukex/courier/pkg/subscription"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	// DiscardMetric counts events rejected before reaching an action.
	DiscardMetric = "action.multistatus_discard"

	NotSubscribed = "not subscribed"

	discardMessage       = "Payload is either invalid or does not match the subscription"
	missingResultMessage = "action returned no result for this event"
)

// OnEvent delivers one event to every subscription carried in raw.
func (d *Destination) OnEvent(
	ctx context.Context,
	event models.Event,
	raw models.Settings,
	opts *Options,
) ([]models.Result, error) {
	return d.onSubscriptions(ctx, []models.Event{event}, false, raw, opts)
}

// OnBatch delivers a batch to every subscription carried in raw. Every
// multistatus result holds exactly one node per input event, in input order.
func (d *Destination) OnBatch(
	ctx context.Context,
	events []models.Event,
	raw models.Settings,
	opts *Options,
) ([]models.Result, error) {
	return d.onSubscriptions(ctx, events, true, raw, opts)
}

func (d *Destination) onSubscriptions(
	ctx context.Context,
	events []models.Event,
	batch bool,
	raw models.Settings,
	opts *Options,
) ([]models.Result, error) {
	subscriptions, err := settings.Subscriptions(raw)
	if err != nil {
		return nil, err
	}

	destinationSettings := settings.Project(raw)

	err = d.ValidateSettings(destinationSettings)
	if err != nil {
		return nil, err
	}

	controller := retry.NewController(d.scheme().IsOAuth(), d.reauthenticator(opts), opts.logger(d.logger))

	run := func(ctx context.Context, state retry.State) ([]models.Result, error) {
		auth := settings.AuthData(state.Settings)
		perSubscription := make([][]models.Result, len(subscriptions))

		var g errgroup.Group

		for i, sub := range subscriptions {
			g.Go(func() error {
				results, err := d.onSubscription(ctx, sub, events, batch, destinationSettings, auth, opts)
				perSubscription[i] = results

				return err
			})
		}

		err := g.Wait()
		if err != nil {
			return nil, err
		}

		results := make([]models.Result, 0, len(subscriptions))
		for _, r := range perSubscription {
			results = append(results, r...)
		}

		return results, nil
	}

	return retry.Run(ctx, controller, raw, run, retry.HasUnauthorized)
}

func (d *Destination) onSubscription(
	ctx context.Context,
	sub models.Subscription,
	events []models.Event,
	batch bool,
	destinationSettings models.Settings,
	auth models.AuthTokens,
	opts *Options,
) (results []models.Result, err error) {
	startedAt := time.Now()
	slug := sub.PartnerAction

	mapping := sub.Mapping
	if mapping == nil {
		mapping = map[string]any{}
	}

	logger := opts.logger(d.logger).With("destination", d.definition.Name, "action", slug, "subscription", sub.ID)
	stats := opts.stats()

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "destination.subscription",
		attribute.String(otelhelper.DestinationKey, d.definition.Name),
		attribute.String(otelhelper.ActionKey, slug),
		attribute.String(otelhelper.SubscriptionIDKey, sub.ID),
		attribute.Int(otelhelper.BatchSizeKey, len(events)),
	)

	defer func() {
		output := results
		if err != nil {
			otelhelper.SetError(span, err)

			output = []models.Result{models.ErrorResult(err.Error(), integration.StatusCode(err), integration.Code(err))}
		}

		span.End()

		opts.complete(models.SubscriptionStats{
			Duration:    time.Since(startedAt),
			Destination: d.definition.Name,
			Action:      slug,
			Subscribe:   sub.Subscribe,
			Input: models.SubscriptionInput{
				Data:     events,
				Mapping:  mapping,
				Settings: destinationSettings,
			},
			Output: output,
		})
	}()

	filter, ferr := subscription.Compile(sub.Subscribe)
	if ferr != nil {
		logger.WarnContext(ctx, "rejecting events of invalid subscription", "error", ferr)

		if !batch {
			return []models.Result{
				models.ErrorResult(ferr.Error(), http.StatusBadRequest, integration.CodePayloadValidationFailed),
			}, nil
		}

		stats.Incr(DiscardMetric, int64(len(events)))

		nodes := make([]models.MultiStatusNode, len(events))
		for i := range nodes {
			nodes[i] = rejection(ferr.Error())
		}

		return []models.Result{models.MultiStatusResult(nodes)}, nil
	}

	nodes := make([]models.MultiStatusNode, len(events))
	discarded := make([]bool, len(events))
	subscribed := make([]models.Event, 0, len(events))

	for i, event := range events {
		if !filter.Matches(event) {
			nodes[i] = rejection(discardMessage)
			discarded[i] = true

			stats.Incr(DiscardMetric, 1)

			continue
		}

		subscribed = append(subscribed, event)
	}

	span.SetAttributes(attribute.Int(otelhelper.SubscribedKey, len(subscribed)))

	if len(subscribed) == 0 {
		if batch {
			return []models.Result{models.MultiStatusResult(nodes)}, nil
		}

		return []models.Result{models.OutputResult(NotSubscribed)}, nil
	}

	if _, ok := d.actions.Resolve(slug); !ok {
		logger.WarnContext(ctx, "subscription references an unknown action")

		return []models.Result{}, nil
	}

	metadata := sub.Metadata()
	input := EventInput{
		Mapping:              mapping,
		SubscriptionMetadata: &metadata,
		Settings:             destinationSettings,
		Auth:                 &auth,
		Options:              opts,
	}

	if !batch {
		input.Event = subscribed[0]

		return d.executeAction(ctx, slug, input)
	}

	actionNodes, err := d.ExecuteBatch(ctx, slug, BatchEventInput{EventInput: input, Events: subscribed})
	if err != nil {
		return nil, err
	}

	merge(nodes, discarded, actionNodes)

	return []models.Result{models.MultiStatusResult(nodes)}, nil
}

// merge fills the slots of dst not marked in skip, in order, from src. Slots
// src has no node for are reported as failures.
func merge(dst []models.MultiStatusNode, skip []bool, src []models.MultiStatusNode) {
	next := 0

	for i := range dst {
		if skip[i] {
			continue
		}

		if next < len(src) {
			dst[i] = src[next]
		} else {
			dst[i] = models.MultiStatusNode{
				Status:        http.StatusInternalServerError,
				ErrorType:     integration.CodeUnknown,
				ErrorMessage:  missingResultMessage,
				ErrorReporter: integration.ReporterIntegrations,
			}
		}

		next++
	}
}

func rejection(message string) models.MultiStatusNode {
	return models.MultiStatusNode{
		Status:        http.StatusBadRequest,
		ErrorType:     integration.CodePayloadValidationFailed,
		ErrorMessage:  message,
		ErrorReporter: integration.ReporterIntegrations,
	}
}

func validationRejection(err error) models.MultiStatusNode {
	return rejection(fmt.Sprintf("%s: %v", discardMessage, err))
}
