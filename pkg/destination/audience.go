package destination

import (
	"context"
	"fmt"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/retry"
	"github.com/dukex/courier/pkg/settings"
)

type CreateAudienceRequest struct {
	Settings         models.Settings `json:"settings"`
	AudienceName     string          `json:"audienceName"`
	AudienceSettings map[string]any  `json:"audienceSettings,omitempty"`
	Personas         map[string]any  `json:"personas,omitempty"`
}

type GetAudienceRequest struct {
	Settings         models.Settings `json:"settings"`
	ExternalID       string          `json:"externalId"`
	AudienceSettings map[string]any  `json:"audienceSettings,omitempty"`
}

// CreateAudience creates an audience in the third party and returns its
// external id.
func (d *Destination) CreateAudience(
	ctx context.Context,
	req CreateAudienceRequest,
	opts *Options,
) (*models.AudienceResult, error) {
	config := d.definition.AudienceConfig
	if config == nil || config.CreateAudience == nil {
		return nil, integration.NewNotImplementedError(fmt.Sprintf("destination %s does not support creating audiences", d.definition.Name))
	}

	if req.AudienceName == "" {
		return nil, integration.NewValidationError("missing audience name value")
	}

	err := d.audienceValidator.Validate(audienceSettings(req.AudienceSettings))
	if err != nil {
		return nil, err
	}

	return d.withRetries(ctx, req.Settings, opts, func(ctx context.Context, state retry.State) (*models.AudienceResult, error) {
		destinationSettings := settings.Project(state.Settings)
		auth := settings.AuthData(state.Settings)

		return config.CreateAudience(ctx, d.requestClient(destinationSettings, &auth, req.AudienceSettings), CreateAudienceInput{
			Settings:         destinationSettings,
			AudienceName:     req.AudienceName,
			AudienceSettings: req.AudienceSettings,
			Personas:         req.Personas,
		})
	})
}

// GetAudience fetches an audience by its external id.
func (d *Destination) GetAudience(
	ctx context.Context,
	req GetAudienceRequest,
	opts *Options,
) (*models.AudienceResult, error) {
	config := d.definition.AudienceConfig
	if config == nil || config.GetAudience == nil {
		return nil, integration.NewNotImplementedError(fmt.Sprintf("destination %s does not support retrieving audiences", d.definition.Name))
	}

	if req.ExternalID == "" {
		return nil, integration.NewValidationError("missing audience external id value")
	}

	err := d.audienceValidator.Validate(audienceSettings(req.AudienceSettings))
	if err != nil {
		return nil, err
	}

	return d.withRetries(ctx, req.Settings, opts, func(ctx context.Context, state retry.State) (*models.AudienceResult, error) {
		destinationSettings := settings.Project(state.Settings)
		auth := settings.AuthData(state.Settings)

		return config.GetAudience(ctx, d.requestClient(destinationSettings, &auth, req.AudienceSettings), GetAudienceInput{
			Settings:         destinationSettings,
			ExternalID:       req.ExternalID,
			AudienceSettings: req.AudienceSettings,
		})
	})
}

func audienceSettings(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}

	return in
}

func (d *Destination) withRetries(
	ctx context.Context,
	raw models.Settings,
	opts *Options,
	op retry.Operation[*models.AudienceResult],
) (*models.AudienceResult, error) {
	controller := retry.NewController(d.scheme().IsOAuth(), d.reauthenticator(opts), opts.logger(d.logger))

	return retry.Run(ctx, controller, raw, op, nil)
}
