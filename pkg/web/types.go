// Package web provides HTTP request and response types for the delivery API.
package web

import (
	"slices"

	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/schema"
)

// DeliverRequest is the body of a single event delivery. With Async set the
// event is queued for a worker instead of being delivered inline.
type DeliverRequest struct {
	Settings models.Settings `json:"settings" validate:"required"`
	Event    models.Event    `json:"event"    validate:"required"`
	Async    bool            `json:"async,omitempty"`
	BatchKey string          `json:"batch_key,omitempty"`
}

type DeliverBatchRequest struct {
	Settings models.Settings `json:"settings" validate:"required"`
	Events   []models.Event  `json:"events"   validate:"required,min=1,dive,required"`
}

type SettingsRequest struct {
	Settings models.Settings `json:"settings" validate:"required"`
}

type DeleteRequest struct {
	Settings models.Settings `json:"settings" validate:"required"`
	Event    models.Event    `json:"event"    validate:"required"`
}

type DynamicFieldRequest struct {
	Settings models.Settings    `json:"settings"`
	Auth     *models.AuthTokens `json:"auth,omitempty"`
	Payload  map[string]any     `json:"payload,omitempty"`
	Page     string             `json:"page,omitempty"`
}

type CreateAudienceRequest struct {
	Settings         models.Settings `json:"settings"         validate:"required"`
	AudienceName     string          `json:"audienceName"     validate:"required"`
	AudienceSettings map[string]any  `json:"audienceSettings,omitempty"`
	Personas         map[string]any  `json:"personas,omitempty"`
}

type GetAudienceRequest struct {
	Settings         models.Settings `json:"settings" validate:"required"`
	AudienceSettings map[string]any  `json:"audienceSettings,omitempty"`
}

type InstanceEventRequest struct {
	Event models.Event `json:"event" validate:"required"`
}

type InstanceBatchRequest struct {
	Events []models.Event `json:"events" validate:"required,min=1,dive,required"`
}

type InstanceResponse struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
}

type ResultsResponse struct {
	Results []models.Result `json:"results"`
}

type QueuedResponse struct {
	ID string `json:"id"`
}

type ActionResponse struct {
	Slug         string                  `json:"slug"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	Fields       map[string]schema.Field `json:"fields"`
	Batch        bool                    `json:"batch"`
	DynamicField bool                    `json:"dynamic_fields"`
}

type DestinationResponse struct {
	Name        string               `json:"name"`
	Slug        string               `json:"slug"`
	Description string               `json:"description"`
	Mode        destination.Mode     `json:"mode"`
	Scheme      destination.Scheme   `json:"scheme,omitempty"`
	Actions     []ActionResponse     `json:"actions"`
	Presets     []destination.Preset `json:"presets,omitempty"`
	Audiences   bool                 `json:"audiences"`
	Deletion    bool                 `json:"deletion"`
}

// TransformDestinationResponse describes d without exposing its callbacks.
func TransformDestinationResponse(d *destination.Destination) DestinationResponse {
	def := d.Definition()

	response := DestinationResponse{
		Name:        def.Name,
		Slug:        d.Slug(),
		Description: def.Description,
		Mode:        def.Mode,
		Actions:     []ActionResponse{},
		Presets:     def.Presets,
		Audiences:   def.AudienceConfig != nil,
		Deletion:    def.OnDelete != nil,
	}

	if def.Authentication != nil {
		response.Scheme = def.Authentication.Scheme
	}

	slugs := d.Actions()
	slices.Sort(slugs)

	for _, slug := range slugs {
		action, ok := d.Action(slug)
		if !ok {
			continue
		}

		_, batch := action.(protocol.BatchAction)
		_, dynamic := action.(protocol.DynamicFieldAction)

		response.Actions = append(response.Actions, ActionResponse{
			Slug:         slug,
			Title:        action.Title(),
			Description:  action.Description(),
			Fields:       action.Fields(),
			Batch:        batch,
			DynamicField: dynamic,
		})
	}

	return response
}
