package destination

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/retry"
	"github.com/dukex/courier/pkg/settings"
)

// TestAuthentication checks the credentials carried in raw against the
// third party.
func (d *Destination) TestAuthentication(ctx context.Context, raw models.Settings) error {
	destinationSettings := settings.Project(raw)
	auth := settings.AuthData(raw)

	err := d.ValidateSettings(destinationSettings)
	if err != nil {
		return err
	}

	if d.definition.Authentication == nil || d.definition.Authentication.TestAuthentication == nil {
		return nil
	}

	client := d.requestClient(destinationSettings, &auth, nil)

	err = d.definition.Authentication.TestAuthentication(ctx, client, AuthenticationInput{
		Settings: destinationSettings,
		Auth:     auth,
	})
	if err != nil {
		if integration.IsCancelled(err) {
			return err
		}

		return integration.NewInvalidAuthenticationError(
			fmt.Sprintf("Credentials are invalid: %d %s", integration.StatusCode(err), err.Error()),
			integration.CodeInvalidAuthentication,
			err,
		)
	}

	return nil
}

// RefreshAccessToken obtains a new access token with the client credentials
// in creds. A destination without a refresh callback returns nil.
func (d *Destination) RefreshAccessToken(
	ctx context.Context,
	destinationSettings models.Settings,
	creds models.OAuth2ClientCredentials,
	opts *Options,
) (*models.RefreshAccessTokenResult, error) {
	if !d.scheme().IsOAuth() {
		return nil, integration.NewIntegrationError(
			"refreshAccessToken is only valid with oauth2 authentication scheme",
			integration.CodeNotImplemented,
			http.StatusNotImplemented,
		)
	}

	refresh := d.definition.Authentication.RefreshAccessToken
	if refresh == nil {
		return nil, nil
	}

	perform := func(ctx context.Context) (*models.RefreshAccessTokenResult, error) {
		client := d.requestClient(destinationSettings, &creds.AuthTokens, nil)

		return refresh(ctx, client, RefreshInput{Settings: destinationSettings, Auth: creds})
	}

	synchronizer := opts.synchronizer()
	if synchronizer == nil {
		return perform(ctx)
	}

	scope := opts.refreshScope(d.TokenScope(creds.ClientID))

	return synchronizer.Synchronize(ctx, scope, creds.AccessToken, perform)
}

// TokenScope names the credential of clientID on this destination. Refreshes
// are synchronized per scope unless Options.RefreshScope overrides it.
func (d *Destination) TokenScope(clientID string) string {
	return d.definition.Slug + ":" + clientID
}

// reauthenticator refreshes the tokens held in a settings blob, reports them
// through OnTokenRefresh and returns the updated blob.
func (d *Destination) reauthenticator(opts *Options) retry.Reauthenticator {
	return func(ctx context.Context, raw models.Settings) (models.Settings, error) {
		tokens, err := d.refreshTokenAndGetNewToken(ctx, raw, opts)
		if err != nil {
			return nil, err
		}

		err = opts.tokenRefreshed(ctx, *tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to report refreshed token: %w", err)
		}

		return settings.UpdateOAuth(raw, *tokens)
	}
}

func (d *Destination) refreshTokenAndGetNewToken(
	ctx context.Context,
	raw models.Settings,
	opts *Options,
) (*models.RefreshAccessTokenResult, error) {
	creds, err := settings.OAuth2Data(raw)
	if err != nil {
		return nil, err
	}

	tokens, err := d.RefreshAccessToken(ctx, settings.Project(raw), creds, opts)
	if err != nil {
		if integration.IsCancelled(err) {
			return nil, err
		}

		return nil, integration.NewInvalidAuthenticationError(
			"Failed to refresh access token",
			integration.CodeOAuthRefreshFailed,
			err,
		)
	}

	if tokens == nil || tokens.AccessToken == "" {
		return nil, integration.NewInvalidAuthenticationError(
			"Failed to refresh access token",
			integration.CodeOAuthRefreshFailed,
			nil,
		)
	}

	opts.logger(d.logger).InfoContext(ctx, "access token refreshed", "destination", d.definition.Name)

	return tokens, nil
}
