// Package persistence stores the OAuth tokens obtained by refreshes so that later deliveries start from
// the latest credentials, and the delivery requests a worker accepted but has not delivered yet.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/models"
)

// StoredTokens are the latest tokens of one refresh scope.
type StoredTokens struct {
	Scope        string    `json:"scope"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenStore persists refreshed tokens by scope.
type TokenStore interface {
	// Save stores tokens for scope. An empty refresh token keeps the stored one.
	Save(ctx context.Context, scope string, tokens models.RefreshAccessTokenResult) error
	// Get returns ErrTokensNotFound when nothing was stored for scope.
	Get(ctx context.Context, scope string) (*StoredTokens, error)
	Delete(ctx context.Context, scope string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Result converts stored tokens back to a refresh result.
func (s StoredTokens) Result() models.RefreshAccessTokenResult {
	return models.RefreshAccessTokenResult{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}

// BatchJournal keeps the delivery requests a worker queued for batching until
// their batch is delivered. Entries are grouped by owner, the worker id.
type BatchJournal interface {
	Append(ctx context.Context, owner string, request events.DeliveryRequested) error
	// Remove forgets ids. Unknown ids are ignored.
	Remove(ctx context.Context, owner string, ids []string) error
	// Pending returns the requests of owner in the order they were appended.
	Pending(ctx context.Context, owner string) ([]events.DeliveryRequested, error)

	Close(ctx context.Context) error
}
