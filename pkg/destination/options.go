package destination

import (
	"context"
	"log/slog"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
)

// Options are the per-call capabilities a caller may supply. Every field is
// optional and a nil *Options is valid.
type Options struct {
	// OnTokenRefresh receives refreshed tokens, usually to persist them.
	OnTokenRefresh func(ctx context.Context, tokens models.RefreshAccessTokenResult) error

	// OnComplete is called once per subscription invocation.
	OnComplete func(stats models.SubscriptionStats)

	Features    models.Features
	Stats       protocol.StatsContext
	Logger      *slog.Logger
	Transaction protocol.TransactionContext
	State       protocol.StateContext

	// RefreshSynchronizer serializes token refreshes per RefreshScope.
	RefreshSynchronizer protocol.RefreshSynchronizer
	RefreshScope        string
}

func (o *Options) logger(fallback *slog.Logger) *slog.Logger {
	if o == nil || o.Logger == nil {
		return fallback
	}

	return o.Logger
}

func (o *Options) stats() protocol.StatsContext {
	if o == nil {
		return protocol.StatsContext{}
	}

	return o.Stats
}

func (o *Options) features() models.Features {
	if o == nil || o.Features == nil {
		return models.Features{}
	}

	return o.Features
}

func (o *Options) transaction() protocol.TransactionContext {
	if o == nil {
		return nil
	}

	return o.Transaction
}

func (o *Options) state() protocol.StateContext {
	if o == nil {
		return nil
	}

	return o.State
}

func (o *Options) complete(stats models.SubscriptionStats) {
	if o == nil || o.OnComplete == nil {
		return
	}

	o.OnComplete(stats)
}

func (o *Options) tokenRefreshed(ctx context.Context, tokens models.RefreshAccessTokenResult) error {
	if o == nil || o.OnTokenRefresh == nil {
		return nil
	}

	return o.OnTokenRefresh(ctx, tokens)
}

func (o *Options) synchronizer() protocol.RefreshSynchronizer {
	if o == nil {
		return nil
	}

	return o.RefreshSynchronizer
}

func (o *Options) refreshScope(fallback string) string {
	if o == nil || o.RefreshScope == "" {
		return fallback
	}

	return o.RefreshScope
}
