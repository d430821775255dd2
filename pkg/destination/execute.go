package destination

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/mapping"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
)

// EventInput is the context in which an action runs.
type EventInput struct {
	Event                models.Event
	Mapping              map[string]any
	SubscriptionMetadata *models.SubscriptionMetadata
	Settings             models.Settings
	Auth                 *models.AuthTokens
	Options              *Options
}

type BatchEventInput struct {
	EventInput

	Events []models.Event
}

// executeAction maps, validates and performs one event. Mapping and
// validation failures are returned as errors with status 400.
func (d *Destination) executeAction(ctx context.Context, slug string, in EventInput) ([]models.Result, error) {
	action, ok := d.actions.Resolve(slug)
	if !ok {
		return []models.Result{}, nil
	}

	payload, err := mapping.Resolve(in.Mapping, in.Event)
	if err != nil {
		return nil, err
	}

	err = d.payloadValidators[slug].Validate(payload)
	if err != nil {
		return nil, err
	}

	client := d.requestClient(in.Settings, in.Auth, payload)
	logger := in.Options.logger(d.logger).With("action", slug)

	output, err := action.Perform(ctx, client, protocol.ExecuteInput{
		Payload:              payload,
		RawData:              in.Event,
		Settings:             in.Settings,
		Auth:                 in.Auth,
		Mapping:              in.Mapping,
		AudienceSettings:     in.Event.AudienceSettings(),
		SubscriptionMetadata: in.SubscriptionMetadata,
		Features:             in.Options.features(),
		Stats:                in.Options.stats(),
		Logger:               logger,
		Transaction:          in.Options.transaction(),
		State:                in.Options.state(),
	})
	if err != nil {
		return nil, err
	}

	return []models.Result{models.OutputResult(output)}, nil
}

// ExecuteBatch maps, validates and performs a batch with the given action. The
// returned nodes are index-aligned with in.Events: events failing mapping or
// validation get a 400 node and are not sent to the action.
func (d *Destination) ExecuteBatch(ctx context.Context, slug string, in BatchEventInput) ([]models.MultiStatusNode, error) {
	action, ok := d.actions.Resolve(slug)
	if !ok {
		return nil, nil
	}

	batchAction, ok := action.(protocol.BatchAction)
	if !ok {
		return nil, integration.NewNotImplementedError(fmt.Sprintf("action %s does not support batched requests", slug))
	}

	if len(in.Events) == 0 {
		return []models.MultiStatusNode{}, nil
	}

	stats := in.Options.stats()
	validator := d.payloadValidators[slug]
	nodes := make([]models.MultiStatusNode, len(in.Events))
	invalid := make([]bool, len(in.Events))
	payloads := make([]map[string]any, 0, len(in.Events))
	sent := make([]models.Event, 0, len(in.Events))

	for i, event := range in.Events {
		payload, err := mapping.Resolve(in.Mapping, event)
		if err == nil {
			err = validator.Validate(payload)
		}

		if err != nil {
			nodes[i] = validationRejection(err)
			invalid[i] = true

			stats.Incr(DiscardMetric, 1)

			continue
		}

		payloads = append(payloads, payload)
		sent = append(sent, event)
	}

	if len(payloads) == 0 {
		return nodes, nil
	}

	client := d.requestClient(in.Settings, in.Auth, payloads)
	logger := in.Options.logger(d.logger).With("action", slug)

	// Every event of a batch targets the same audience.
	output, err := batchAction.PerformBatch(ctx, client, protocol.BatchExecuteInput{
		Payloads:             payloads,
		RawData:              sent,
		Settings:             in.Settings,
		Auth:                 in.Auth,
		Mapping:              in.Mapping,
		AudienceSettings:     sent[0].AudienceSettings(),
		SubscriptionMetadata: in.SubscriptionMetadata,
		Features:             in.Options.features(),
		Stats:                stats,
		Logger:               logger,
		Transaction:          in.Options.transaction(),
		State:                in.Options.state(),
	})
	if err != nil {
		return nil, err
	}

	if len(output) != len(payloads) {
		logger.WarnContext(ctx, "batch result size mismatch", "sent", len(payloads), "received", len(output))
	}

	merge(nodes, invalid, output)

	return nodes, nil
}

// ExecuteDynamicField looks up the choices of a dynamic field.
func (d *Destination) ExecuteDynamicField(
	ctx context.Context,
	slug string,
	field string,
	input protocol.DynamicFieldInput,
) (models.DynamicFieldResponse, error) {
	action, ok := d.actions.Resolve(slug)
	if !ok {
		return models.DynamicFieldResponse{Choices: []models.DynamicFieldChoice{}}, nil
	}

	dynamic, ok := action.(protocol.DynamicFieldAction)
	if !ok {
		return models.DynamicFieldResponse{
			Choices: []models.DynamicFieldChoice{},
			Error: &models.ResultError{
				Message: fmt.Sprintf("No dynamic field named %s found.", field),
				Status:  http.StatusNotFound,
				Code:    "404",
			},
		}, nil
	}

	client := d.requestClient(input.Settings, input.Auth, input.Payload)

	return dynamic.DynamicField(ctx, client, field, input)
}
