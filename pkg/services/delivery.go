// Package services runs destination operations with the capabilities of the running process: token
// storage, refresh synchronization and metrics.
package services

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/log"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/registry"
	"github.com/dukex/courier/pkg/settings"
)

// Metrics receives engine counters and one record per subscription invocation.
type Metrics interface {
	protocol.StatsClient
	RecordSubscription(stats models.SubscriptionStats)
}

// DeliveryConfig holds the optional collaborators of a Delivery.
type DeliveryConfig struct {
	Tokens       persistence.TokenStore
	Synchronizer protocol.RefreshSynchronizer
	Metrics      Metrics
	// OnComplete is called after Metrics for every subscription invocation.
	OnComplete func(ctx context.Context, stats models.SubscriptionStats)
	Logger     *slog.Logger
}

type Delivery struct {
	catalog *registry.Registry[*destination.Destination]
	config  DeliveryConfig
	logger  *slog.Logger
}

func NewDelivery(catalog *registry.Registry[*destination.Destination], config DeliveryConfig) *Delivery {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Delivery{
		catalog: catalog,
		config:  config,
		logger:  logger.With("module", "delivery"),
	}
}

// HealthCheck checks the health of the token store.
func (s *Delivery) HealthCheck(ctx context.Context) (string, bool) {
	if s.config.Tokens == nil {
		return "Token store not configured", true
	}

	err := s.config.Tokens.HealthCheck(ctx)
	if err != nil {
		return "Token store is unhealthy: " + err.Error(), false
	}

	return "Token store is healthy", true
}

// Destinations returns every registered destination ordered by slug.
func (s *Delivery) Destinations() []*destination.Destination {
	slugs := s.catalog.Slugs()
	out := make([]*destination.Destination, 0, len(slugs))

	for _, slug := range slugs {
		if d, ok := s.catalog.Resolve(slug); ok {
			out = append(out, d)
		}
	}

	return out
}

func (s *Delivery) Destination(slug string) (*destination.Destination, error) {
	d, ok := s.catalog.Resolve(slug)
	if !ok {
		return nil, destinationNotFound(slug)
	}

	return d, nil
}

func (s *Delivery) Deliver(ctx context.Context, slug string, event models.Event, raw models.Settings) ([]models.Result, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return nil, err
	}

	raw = s.hydrate(ctx, d, raw)

	return d.OnEvent(ctx, event, raw, s.options(ctx, d, raw))
}

func (s *Delivery) DeliverBatch(ctx context.Context, slug string, batch []models.Event, raw models.Settings) ([]models.Result, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	d, err := s.Destination(slug)
	if err != nil {
		return nil, err
	}

	raw = s.hydrate(ctx, d, raw)

	return d.OnBatch(ctx, batch, raw, s.options(ctx, d, raw))
}

func (s *Delivery) Delete(ctx context.Context, slug string, event models.Event, raw models.Settings) (models.Result, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return models.Result{}, err
	}

	raw = s.hydrate(ctx, d, raw)

	return d.OnDelete(ctx, event, raw, s.options(ctx, d, raw))
}

func (s *Delivery) TestAuthentication(ctx context.Context, slug string, raw models.Settings) error {
	d, err := s.Destination(slug)
	if err != nil {
		return err
	}

	return d.TestAuthentication(ctx, raw)
}

// RefreshAccessToken refreshes the credentials carried in raw and stores the
// result under the credential scope.
func (s *Delivery) RefreshAccessToken(ctx context.Context, slug string, raw models.Settings) (*models.RefreshAccessTokenResult, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return nil, err
	}

	creds, err := settings.OAuth2Data(raw)
	if err != nil {
		return nil, err
	}

	opts := s.options(ctx, d, raw)

	tokens, err := d.RefreshAccessToken(ctx, settings.Project(raw), creds, opts)
	if err != nil || tokens == nil {
		return tokens, err
	}

	err = opts.OnTokenRefresh(ctx, *tokens)
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func (s *Delivery) DynamicField(
	ctx context.Context,
	slug string,
	action string,
	field string,
	input protocol.DynamicFieldInput,
) (models.DynamicFieldResponse, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return models.DynamicFieldResponse{}, err
	}

	if !slices.Contains(d.Actions(), action) {
		return models.DynamicFieldResponse{}, actionNotFound(slug, action)
	}

	return d.ExecuteDynamicField(ctx, action, field, input)
}

func (s *Delivery) CreateAudience(ctx context.Context, slug string, req destination.CreateAudienceRequest) (*models.AudienceResult, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return nil, err
	}

	req.Settings = s.hydrate(ctx, d, req.Settings)

	return d.CreateAudience(ctx, req, s.options(ctx, d, req.Settings))
}

func (s *Delivery) GetAudience(ctx context.Context, slug string, req destination.GetAudienceRequest) (*models.AudienceResult, error) {
	d, err := s.Destination(slug)
	if err != nil {
		return nil, err
	}

	req.Settings = s.hydrate(ctx, d, req.Settings)

	return d.GetAudience(ctx, req, s.options(ctx, d, req.Settings))
}

func (s *Delivery) options(ctx context.Context, d *destination.Destination, raw models.Settings) *destination.Options {
	scope := tokenScope(d, raw)
	logger := log.FromContext(ctx, s.logger).With("destination", d.Slug())

	opts := &destination.Options{
		Logger:              logger,
		RefreshSynchronizer: s.config.Synchronizer,
		OnTokenRefresh: func(ctx context.Context, tokens models.RefreshAccessTokenResult) error {
			if s.config.Tokens == nil || scope == "" {
				return nil
			}

			return s.config.Tokens.Save(ctx, scope, tokens)
		},
		OnComplete: func(stats models.SubscriptionStats) {
			if s.config.Metrics != nil {
				s.config.Metrics.RecordSubscription(stats)
			}

			if s.config.OnComplete != nil {
				s.config.OnComplete(ctx, stats)
			}
		},
	}

	if s.config.Metrics != nil {
		opts.Stats = protocol.StatsContext{Client: s.config.Metrics, Tags: []string{"destination:" + d.Slug()}}
	}

	return opts
}

// hydrate replaces the OAuth tokens of raw with the stored ones, so a token
// refreshed by an earlier delivery is used even when the caller still holds
// the previous one.
func (s *Delivery) hydrate(ctx context.Context, d *destination.Destination, raw models.Settings) models.Settings {
	scope := tokenScope(d, raw)
	if s.config.Tokens == nil || scope == "" {
		return raw
	}

	stored, err := s.config.Tokens.Get(ctx, scope)
	if err != nil {
		if !persistence.IsTokensNotFound(err) {
			s.logger.WarnContext(ctx, "failed to load stored tokens", "scope", scope, "error", err)
		}

		return raw
	}

	updated, err := settings.UpdateOAuth(raw, stored.Result())
	if err != nil {
		s.logger.WarnContext(ctx, "failed to apply stored tokens", "scope", scope, "error", err)

		return raw
	}

	return updated
}

func tokenScope(d *destination.Destination, raw models.Settings) string {
	creds, err := settings.OAuth2Data(raw)
	if err != nil {
		return ""
	}

	return d.TokenScope(creds.ClientID)
}
