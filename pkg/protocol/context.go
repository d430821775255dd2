package protocol

import (
	"context"
	"time"

	"github.com/dukex/courier/pkg/models"
)

// StatsClient receives engine counters and timings.
type StatsClient interface {
	Incr(name string, value int64, tags []string)
	Histogram(name string, value float64, tags []string)
}

type StatsContext struct {
	Client StatsClient
	Tags   []string
}

// Incr is a no-op when no client is configured.
func (s StatsContext) Incr(name string, value int64, tags ...string) {
	if s.Client == nil {
		return
	}

	s.Client.Incr(name, value, append(append([]string{}, s.Tags...), tags...))
}

func (s StatsContext) Histogram(name string, value float64, tags ...string) {
	if s.Client == nil {
		return
	}

	s.Client.Histogram(name, value, append(append([]string{}, s.Tags...), tags...))
}

// TransactionContext exposes key/value pairs scoped to the current delivery.
type TransactionContext interface {
	Transaction() map[string]string
	SetTransaction(key, value string)
}

// StateContext exposes state carried between deliveries of the same destination instance.
type StateContext interface {
	GetRequestContext(key string) (string, bool)
	SetResponseContext(key, value string, ttl time.Duration)
}

// RefreshFunc performs one access token refresh.
type RefreshFunc func(ctx context.Context) (*models.RefreshAccessTokenResult, error)

// RefreshSynchronizer guarantees that at most one refresh per scope is in
// flight. Callers presenting the same stale access token reuse its result.
type RefreshSynchronizer interface {
	Synchronize(
		ctx context.Context,
		scope string,
		staleAccessToken string,
		refresh RefreshFunc,
	) (*models.RefreshAccessTokenResult, error)
}
