// Package logger provides a destination that writes mapped events to a structured logger.
// It is useful to inspect subscriptions and mappings without a third party.
package logger

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/log"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
)

const LoggedMetric = "logger.logged"

var levels = []string{"debug", "info", "warn", "error"}

// Definition returns the logger destination. Deletion requests are written to
// logger; deliveries go to the logger of each invocation.
func Definition(logger *slog.Logger) destination.Definition {
	if logger == nil {
		logger = slog.Default()
	}

	return destination.Definition{
		Name:        "Logger",
		Slug:        "actions-logger",
		Description: "Write events to the service log.",
		Mode:        destination.ModeCloud,
		Authentication: &destination.Authentication{
			Scheme: destination.SchemeCustom,
			Fields: map[string]schema.Field{
				"prefix": {
					Label: "Prefix",
					Type:  schema.TypeString,
				},
			},
		},
		Actions: map[string]protocol.Action{"log": Log{}},
		OnDelete: func(ctx context.Context, _ *request.Client, input destination.DeleteInput) (*models.Result, error) {
			logger.InfoContext(ctx, "deletion requested",
				"user_id", input.Payload.UserID,
				"anonymous_id", input.Payload.AnonymousID,
			)

			result := models.OutputResult(map[string]any{"deleted": true})

			return &result, nil
		},
		Presets: []destination.Preset{
			{
				Name:          "Log everything",
				Subscribe:     `type = "track" or type = "identify" or type = "page"`,
				PartnerAction: "log",
				Type:          destination.PresetAutomatic,
				Mapping: map[string]any{
					"message":    map[string]any{"@template": "{{.type}} {{.event}}"},
					"properties": map[string]any{"@path": "$.properties"},
				},
			},
		},
	}
}

// Log writes each payload as one log record.
type Log struct{}

var _ protocol.BatchAction = Log{}

func (Log) Title() string {
	return "Log"
}

func (Log) Description() string {
	return "Write the mapped payload to the service log."
}

func (Log) Fields() map[string]schema.Field {
	return map[string]schema.Field{
		"message": {
			Label:    "Message",
			Type:     schema.TypeString,
			Required: true,
		},
		"level": {
			Label:   "Level",
			Type:    schema.TypeString,
			Choices: levels,
			Default: "info",
		},
		"properties": {
			Label: "Properties",
			Type:  schema.TypeObject,
		},
	}
}

func (Log) Perform(ctx context.Context, _ *request.Client, input protocol.ExecuteInput) (any, error) {
	write(ctx, input.Logger, input.Settings, input.Payload)
	input.Stats.Incr(LoggedMetric, 1)

	return input.Payload, nil
}

func (Log) PerformBatch(ctx context.Context, _ *request.Client, input protocol.BatchExecuteInput) ([]models.MultiStatusNode, error) {
	nodes := make([]models.MultiStatusNode, len(input.Payloads))

	for i, payload := range input.Payloads {
		write(ctx, input.Logger, input.Settings, payload)

		nodes[i] = models.MultiStatusNode{Status: http.StatusOK, Body: payload}
	}

	input.Stats.Incr(LoggedMetric, int64(len(input.Payloads)), "batch:true")

	return nodes, nil
}

func write(ctx context.Context, logger *slog.Logger, settings models.Settings, payload map[string]any) {
	if logger == nil {
		logger = slog.Default()
	}

	message, _ := payload["message"].(string)
	if prefix, ok := settings["prefix"].(string); ok && prefix != "" {
		message = prefix + " " + message
	}

	level, _ := payload["level"].(string)

	logger.Log(ctx, log.ParseLevel(level), message, "properties", payload["properties"])
}
