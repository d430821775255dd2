// Package settings separates destination settings from the transport metadata carried in the same blob.
package settings

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"
	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
)

// OAuth blob keys.
const (
	AccessTokenKey     = "access_token"
	RefreshTokenKey    = "refresh_token"
	RefreshTokenURLKey = "refresh_token_url"
	ClientIDKey        = "clientId"
	ClientSecretKey    = "clientSecret"
)

var transportKeys = []string{
	models.SubscriptionKey,
	models.SubscriptionsKey,
	models.OAuthKey,
}

// Project returns a deep copy of raw without the transport keys and without the
// OAuth blob nested in dynamicAuthSettings. raw is never mutated, so projecting
// the same blob twice yields equal results.
func Project(raw models.Settings) models.Settings {
	out := raw.Clone()
	if out == nil {
		return models.Settings{}
	}

	for _, key := range transportKeys {
		delete(out, key)
	}

	if dynamic := asMap(out[models.DynamicAuthSettingsKey]); dynamic != nil {
		delete(dynamic, models.OAuthKey)

		if len(dynamic) == 0 {
			delete(out, models.DynamicAuthSettingsKey)
		}
	}

	return out
}

// Subscriptions returns the subscriptions carried by raw: the single
// "subscription" entry when present, the "subscriptions" list otherwise.
func Subscriptions(raw models.Settings) ([]models.Subscription, error) {
	if single, ok := raw[models.SubscriptionKey]; ok && single != nil {
		sub, err := decodeSubscription(single)
		if err != nil {
			return nil, err
		}

		return []models.Subscription{sub}, nil
	}

	var list []any

	switch value := raw[models.SubscriptionsKey].(type) {
	case []any:
		list = value
	case []map[string]any:
		for _, item := range value {
			list = append(list, item)
		}
	case []models.Subscription:
		return append([]models.Subscription{}, value...), nil
	case string:
		err := json.Unmarshal([]byte(value), &list)
		if err != nil {
			return nil, integration.NewConfigurationError(fmt.Sprintf("invalid subscriptions: %v", err))
		}
	}

	out := make([]models.Subscription, 0, len(list))

	for _, item := range list {
		sub, err := decodeSubscription(item)
		if err != nil {
			return nil, err
		}

		out = append(out, sub)
	}

	return out, nil
}

func decodeSubscription(raw any) (models.Subscription, error) {
	var sub models.Subscription

	switch value := raw.(type) {
	case models.Subscription:
		return value, nil
	case *models.Subscription:
		return *value, nil
	case string:
		err := json.Unmarshal([]byte(value), &sub)
		if err != nil {
			return sub, integration.NewConfigurationError(fmt.Sprintf("invalid subscription: %v", err))
		}

		return sub, nil
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return sub, integration.NewConfigurationError(fmt.Sprintf("invalid subscription: %v", err))
	}

	err = json.Unmarshal(payload, &sub)
	if err != nil {
		return sub, integration.NewConfigurationError(fmt.Sprintf("invalid subscription: %v", err))
	}

	return sub, nil
}

// AuthData extracts the credentials carried in the OAuth blob.
func AuthData(raw models.Settings) models.AuthTokens {
	blob := oauthBlob(raw)

	return models.AuthTokens{
		AccessToken:     stringValue(blob, AccessTokenKey),
		RefreshToken:    stringValue(blob, RefreshTokenKey),
		RefreshTokenURL: stringValue(blob, RefreshTokenURLKey),
	}
}

// OAuth2Data extracts the client credentials used to refresh an access token.
// Unlike AuthData it fails when raw carries no OAuth blob.
func OAuth2Data(raw models.Settings) (models.OAuth2ClientCredentials, error) {
	blob := oauthBlob(raw)
	if blob == nil {
		return models.OAuth2ClientCredentials{}, integration.NewConfigurationError("settings carry no oauth credentials")
	}

	return models.OAuth2ClientCredentials{
		AuthTokens: models.AuthTokens{
			AccessToken:     stringValue(blob, AccessTokenKey),
			RefreshToken:    stringValue(blob, RefreshTokenKey),
			RefreshTokenURL: stringValue(blob, RefreshTokenURLKey),
		},
		ClientID:     stringValue(blob, ClientIDKey),
		ClientSecret: stringValue(blob, ClientSecretKey),
	}, nil
}

// UpdateOAuth returns a copy of raw with the refreshed tokens merged into its
// OAuth blob. The previous refresh token is kept when the provider did not
// rotate it.
func UpdateOAuth(raw models.Settings, tokens models.RefreshAccessTokenResult) (models.Settings, error) {
	out := raw.Clone()
	if out == nil {
		out = models.Settings{}
	}

	blob := map[string]any{}
	if current := oauthBlob(raw); current != nil {
		blob = models.DeepCopyMap(current)
	}

	update := map[string]any{AccessTokenKey: tokens.AccessToken}
	if tokens.RefreshToken != "" {
		update[RefreshTokenKey] = tokens.RefreshToken
	}

	err := mergo.Merge(&blob, update, mergo.WithOverride)
	if err != nil {
		return nil, fmt.Errorf("failed to merge oauth settings: %w", err)
	}

	out[models.OAuthKey] = blob

	return out, nil
}

func oauthBlob(raw models.Settings) map[string]any {
	if blob := asMap(raw[models.OAuthKey]); blob != nil {
		return blob
	}

	dynamic := asMap(raw[models.DynamicAuthSettingsKey])
	if dynamic == nil {
		return nil
	}

	return asMap(dynamic[models.OAuthKey])
}

func asMap(v any) map[string]any {
	switch value := v.(type) {
	case map[string]any:
		return value
	case models.Settings:
		return value
	default:
		return nil
	}
}

func stringValue(m map[string]any, key string) string {
	v, _ := m[key].(string)

	return v
}
