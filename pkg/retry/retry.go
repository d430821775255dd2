// Package retry wraps outbound operations in a bounded retry loop that refreshes OAuth credentials on
// authentication failures.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
)

// DefaultRetries is the number of retries after the first attempt.
const DefaultRetries = 2

// State is threaded by value through every attempt.
type State struct {
	Settings models.Settings
	Attempt  int
}

// Operation performs one attempt with the settings of state.
type Operation[T any] func(ctx context.Context, state State) (T, error)

// Inspector reports whether a successful value still carries authentication
// failures, such as multistatus nodes with status 401.
type Inspector[T any] func(value T) bool

// Reauthenticator refreshes the credentials carried in settings and returns
// the updated settings.
type Reauthenticator func(ctx context.Context, settings models.Settings) (models.Settings, error)

type Controller struct {
	Retries int
	OAuth   bool
	Reauth  Reauthenticator
	Logger  *slog.Logger
}

func NewController(oauth bool, reauth Reauthenticator, logger *slog.Logger) Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return Controller{
		Retries: DefaultRetries,
		OAuth:   oauth,
		Reauth:  reauth,
		Logger:  logger,
	}
}

// Run executes op until it succeeds, fails with an error that does not call
// for reauthentication, or runs out of retries.
func Run[T any](ctx context.Context, c Controller, settings models.Settings, op Operation[T], inspect Inspector[T]) (T, error) {
	var zero T

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := State{Settings: settings}

	for {
		if err := ctx.Err(); err != nil {
			return zero, integration.NewCancelledError(err)
		}

		value, err := op(ctx, state)
		remaining := state.Attempt < c.Retries

		if err != nil {
			if integration.IsCancelled(err) || !c.needsReauthentication(err) {
				return zero, err
			}

			if !remaining {
				return zero, integration.NewInvalidAuthenticationError(
					fmt.Sprintf("credentials still rejected after %d attempts: %v", state.Attempt+1, err),
					integration.CodeInvalidAuthentication,
					err,
				)
			}

			logger.WarnContext(ctx, "authentication failed, refreshing credentials", "attempt", state.Attempt, "error", err)
		} else {
			if inspect == nil || !c.canReauthenticate() || !remaining || !inspect(value) {
				return value, nil
			}

			logger.WarnContext(ctx, "multistatus carries authentication failures, refreshing credentials", "attempt", state.Attempt)
		}

		next, err := c.Reauth(ctx, state.Settings)
		if err != nil {
			return zero, err
		}

		state = State{Settings: next, Attempt: state.Attempt + 1}
	}
}

func (c Controller) canReauthenticate() bool {
	return c.OAuth && c.Reauth != nil
}

func (c Controller) needsReauthentication(err error) bool {
	return c.canReauthenticate() && integration.StatusCode(err) == http.StatusUnauthorized
}

// HasUnauthorized reports whether any result carries a 401 multistatus node.
func HasUnauthorized(results []models.Result) bool {
	for _, result := range results {
		for _, node := range result.MultiStatus {
			if node.Status == http.StatusUnauthorized {
				return true
			}
		}
	}

	return false
}
