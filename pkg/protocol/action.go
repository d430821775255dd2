// Package protocol defines the contracts between the dispatch engine, the actions it drives and the
// capabilities a caller may inject.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
)

// ExecuteInput is what an action receives for one event.
type ExecuteInput struct {
	Payload              map[string]any
	RawData              models.Event
	Settings             models.Settings
	Auth                 *models.AuthTokens
	Mapping              map[string]any
	AudienceSettings     map[string]any
	SubscriptionMetadata *models.SubscriptionMetadata
	Features             models.Features
	Stats                StatsContext
	Logger               *slog.Logger
	Transaction          TransactionContext
	State                StateContext
}

// BatchExecuteInput is what an action receives for the subscribed subset of a batch.
type BatchExecuteInput struct {
	Payloads             []map[string]any
	RawData              []models.Event
	Settings             models.Settings
	Auth                 *models.AuthTokens
	Mapping              map[string]any
	AudienceSettings     map[string]any
	SubscriptionMetadata *models.SubscriptionMetadata
	Features             models.Features
	Stats                StatsContext
	Logger               *slog.Logger
	Transaction          TransactionContext
	State                StateContext
}

type DynamicFieldInput struct {
	Settings models.Settings
	Auth     *models.AuthTokens
	Payload  map[string]any
	Page     string
}

// Action is a unit of work delivering one event to a third party.
type Action interface {
	Title() string
	Description() string
	Fields() map[string]schema.Field
	Perform(ctx context.Context, client *request.Client, input ExecuteInput) (any, error)
}

// BatchAction is implemented by actions able to deliver several events in one call.
// PerformBatch must return one node per payload, in input order.
type BatchAction interface {
	Action
	PerformBatch(ctx context.Context, client *request.Client, input BatchExecuteInput) ([]models.MultiStatusNode, error)
}

// DynamicFieldAction is implemented by actions that look up field choices remotely.
type DynamicFieldAction interface {
	DynamicField(
		ctx context.Context,
		client *request.Client,
		field string,
		input DynamicFieldInput,
	) (models.DynamicFieldResponse, error)
}
