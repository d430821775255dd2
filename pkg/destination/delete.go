package destination

import (
	"context"
	"fmt"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/retry"
	"github.com/dukex/courier/pkg/settings"
)

const noDeleteHandler = "no onDelete defined"

// OnDelete asks the third party to erase the user identified by event.
func (d *Destination) OnDelete(
	ctx context.Context,
	event models.Event,
	raw models.Settings,
	opts *Options,
) (models.Result, error) {
	if d.definition.OnDelete == nil {
		return models.Result{}, integration.NewNotImplementedError(fmt.Sprintf("destination %s does not support deletion", d.definition.Name))
	}

	err := d.ValidateSettings(settings.Project(raw))
	if err != nil {
		return models.Result{}, err
	}

	payload := DeletionPayload{
		UserID:      event.UserID(),
		AnonymousID: event.AnonymousID(),
	}

	controller := retry.NewController(d.scheme().IsOAuth(), d.reauthenticator(opts), opts.logger(d.logger))

	return retry.Run(ctx, controller, raw, func(ctx context.Context, state retry.State) (models.Result, error) {
		destinationSettings := settings.Project(state.Settings)
		auth := settings.AuthData(state.Settings)

		result, err := d.definition.OnDelete(ctx, d.requestClient(destinationSettings, &auth, payload), DeleteInput{
			Payload:  payload,
			Settings: destinationSettings,
			Auth:     auth,
		})
		if err != nil {
			return models.Result{}, err
		}

		if result == nil {
			return models.OutputResult(noDeleteHandler), nil
		}

		return *result, nil
	}, nil)
}
