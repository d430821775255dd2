// Package destination implements the dispatch engine: it routes events to the actions of a destination
// according to the subscriptions carried in its settings.
package destination

import (
	"context"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
)

type Mode string

const (
	ModeCloud  Mode = "cloud"
	ModeDevice Mode = "device"
)

// Scheme is the authentication scheme of a destination.
type Scheme string

const (
	SchemeBasic        Scheme = "basic"
	SchemeCustom       Scheme = "custom"
	SchemeOAuth2       Scheme = "oauth2"
	SchemeOAuthManaged Scheme = "oauth-managed"
)

// IsOAuth reports whether credentials can be refreshed.
func (s Scheme) IsOAuth() bool {
	return s == SchemeOAuth2 || s == SchemeOAuthManaged
}

type AuthenticationInput struct {
	Settings models.Settings
	Auth     models.AuthTokens
}

type RefreshInput struct {
	Settings models.Settings
	Auth     models.OAuth2ClientCredentials
}

type Authentication struct {
	Scheme             Scheme
	Fields             map[string]schema.Field
	TestAuthentication func(ctx context.Context, client *request.Client, input AuthenticationInput) error
	RefreshAccessToken func(
		ctx context.Context,
		client *request.Client,
		input RefreshInput,
	) (*models.RefreshAccessTokenResult, error)
}

// ExtendRequestInput is handed to ExtendRequest before every outbound call.
type ExtendRequestInput struct {
	Settings models.Settings
	Auth     *models.AuthTokens
	Payload  any
}

type DeleteInput struct {
	Payload  DeletionPayload
	Settings models.Settings
	Auth     models.AuthTokens
}

type DeletionPayload struct {
	UserID      string `json:"userId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`
}

type AudienceMode struct {
	Type             string `json:"type"`
	FullAudienceSync bool   `json:"full_audience_sync,omitempty"`
}

type CreateAudienceInput struct {
	Settings         models.Settings
	AudienceName     string
	AudienceSettings map[string]any
	Personas         map[string]any
}

type GetAudienceInput struct {
	Settings         models.Settings
	ExternalID       string
	AudienceSettings map[string]any
}

type AudienceConfig struct {
	Mode           AudienceMode
	CreateAudience func(ctx context.Context, client *request.Client, input CreateAudienceInput) (*models.AudienceResult, error)
	GetAudience    func(ctx context.Context, client *request.Client, input GetAudienceInput) (*models.AudienceResult, error)
}

type PresetType string

const (
	PresetAutomatic     PresetType = "automatic"
	PresetSpecificEvent PresetType = "specificEvent"
)

// Preset is a suggested subscription shipped with a destination.
type Preset struct {
	Name          string         `json:"name"`
	Subscribe     string         `json:"subscribe,omitempty"`
	PartnerAction string         `json:"partnerAction"`
	Mapping       map[string]any `json:"mapping,omitempty"`
	Type          PresetType     `json:"type"`
	EventSlug     string         `json:"eventSlug,omitempty"`
}

// Definition declares a destination: its actions, authentication and hooks.
type Definition struct {
	Name           string
	Slug           string
	Description    string
	Mode           Mode
	Authentication *Authentication
	Actions        map[string]protocol.Action
	ExtendRequest  func(input ExtendRequestInput) request.Options
	OnDelete       func(ctx context.Context, client *request.Client, input DeleteInput) (*models.Result, error)
	AudienceFields map[string]schema.Field
	AudienceConfig *AudienceConfig
	Presets        []Preset
}
