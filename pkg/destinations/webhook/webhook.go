// Package webhook provides destinations that forward mapped events to arbitrary HTTP endpoints.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
)

const (
	SignatureHeader = "X-Signature"

	sharedSecretKey = "sharedSecret"
)

var presets = []destination.Preset{
	{
		Name:          "Forward track calls",
		Subscribe:     `type = "track"`,
		PartnerAction: "send",
		Type:          destination.PresetAutomatic,
		Mapping: map[string]any{
			"url":  map[string]any{"@path": "$.properties.webhook_url"},
			"data": map[string]any{"@path": "$.properties"},
		},
	},
}

// Definition is the webhook destination. When a shared secret is configured
// every request carries the hex HMAC-SHA256 of its JSON body.
func Definition() destination.Definition {
	return destination.Definition{
		Name:        "Webhook",
		Slug:        "actions-webhook",
		Description: "Send events to a custom HTTP endpoint.",
		Mode:        destination.ModeCloud,
		Authentication: &destination.Authentication{
			Scheme: destination.SchemeCustom,
			Fields: map[string]schema.Field{
				sharedSecretKey: {
					Label:       "Shared Secret",
					Description: "Used to sign outgoing payloads.",
					Type:        schema.TypePassword,
				},
			},
		},
		ExtendRequest: func(input destination.ExtendRequestInput) request.Options {
			secret, _ := input.Settings[sharedSecretKey].(string)
			if secret == "" || input.Payload == nil {
				return request.Options{}
			}

			return request.Options{Headers: map[string]string{SignatureHeader: Sign(secret, requestBody(input.Payload))}}
		},
		Actions: map[string]protocol.Action{"send": Send{}},
		Presets: presets,
	}
}

// OAuthDefinition is the webhook destination authenticating with OAuth 2
// bearer tokens refreshed against the refresh token URL.
func OAuthDefinition() destination.Definition {
	return destination.Definition{
		Name:        "Webhook (OAuth)",
		Slug:        "actions-webhook-oauth",
		Description: "Send events to an HTTP endpoint protected by OAuth 2.",
		Mode:        destination.ModeCloud,
		Authentication: &destination.Authentication{
			Scheme:             destination.SchemeOAuth2,
			RefreshAccessToken: RefreshAccessToken,
		},
		ExtendRequest: func(input destination.ExtendRequestInput) request.Options {
			if input.Auth == nil || input.Auth.AccessToken == "" {
				return request.Options{}
			}

			return request.Options{Headers: map[string]string{"Authorization": "Bearer " + input.Auth.AccessToken}}
		},
		Actions: map[string]protocol.Action{"send": Send{}},
		Presets: presets,
	}
}

// RefreshAccessToken performs a refresh_token grant.
func RefreshAccessToken(
	ctx context.Context,
	client *request.Client,
	input destination.RefreshInput,
) (*models.RefreshAccessTokenResult, error) {
	if input.Auth.RefreshTokenURL == "" {
		return nil, integration.NewConfigurationError("refresh token url is not configured")
	}

	resp, err := client.PostForm(ctx, input.Auth.RefreshTokenURL, map[string][]string{
		"grant_type":    {"refresh_token"},
		"refresh_token": {input.Auth.RefreshToken},
		"client_id":     {input.Auth.ClientID},
		"client_secret": {input.Auth.ClientSecret},
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}

	err = resp.JSON(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &models.RefreshAccessTokenResult{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, nil
}

// Sign returns the hex HMAC-SHA256 of payload encoded as JSON.
func Sign(secret string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)

	return hex.EncodeToString(mac.Sum(nil))
}

// requestBody returns what Send puts on the wire for the given payloads.
func requestBody(payload any) any {
	switch p := payload.(type) {
	case map[string]any:
		return p["data"]
	case []map[string]any:
		data := make([]any, len(p))
		for i, item := range p {
			data[i] = item["data"]
		}

		return data
	default:
		return payload
	}
}
