package tokensync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultKeyPrefix    = "courier:tokensync"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis synchronizes refreshes across processes sharing a Redis server.
type Redis struct {
	client       redis.UniversalClient
	logger       *slog.Logger
	prefix       string
	lockTTL      time.Duration
	resultTTL    time.Duration
	pollInterval time.Duration
}

var _ protocol.RefreshSynchronizer = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}

	return &Redis{
		client:       client,
		logger:       logger.With("module", "tokensync"),
		prefix:       defaultKeyPrefix,
		lockTTL:      defaultLockTTL,
		resultTTL:    DefaultReuseWindow,
		pollInterval: defaultPollInterval,
	}
}

// Synchronize takes a per-scope lock before refreshing. Callers that do not
// get the lock poll for the result published by the holder.
func (r *Redis) Synchronize(
	ctx context.Context,
	scope string,
	staleAccessToken string,
	refresh protocol.RefreshFunc,
) (*models.RefreshAccessTokenResult, error) {
	resultKey := r.prefix + ":result:" + memoKey(scope, staleAccessToken)
	lockKey := r.prefix + ":lock:" + scope

	for {
		result, err := r.cached(ctx, resultKey)
		if err != nil || result != nil {
			return result, err
		}

		token := uuid.NewString()

		acquired, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, integration.NewCancelledError(ctxErr)
			}

			return nil, fmt.Errorf("failed to acquire refresh lock: %w", err)
		}

		if acquired {
			return r.refreshLocked(ctx, lockKey, token, resultKey, refresh)
		}

		select {
		case <-ctx.Done():
			return nil, integration.NewCancelledError(ctx.Err())
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Redis) refreshLocked(
	ctx context.Context,
	lockKey, token, resultKey string,
	refresh protocol.RefreshFunc,
) (*models.RefreshAccessTokenResult, error) {
	defer func() {
		err := releaseScript.Run(context.WithoutCancel(ctx), r.client, []string{lockKey}, token).Err()
		if err != nil {
			r.logger.WarnContext(ctx, "failed to release refresh lock", "key", lockKey, "error", err)
		}
	}()

	result, err := r.cached(ctx, resultKey)
	if err != nil || result != nil {
		return result, err
	}

	result, err = refresh(ctx)
	if err != nil || result == nil {
		return result, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode refreshed token: %w", err)
	}

	err = r.client.Set(context.WithoutCancel(ctx), resultKey, payload, r.resultTTL).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "failed to publish refreshed token", "error", err)
	}

	return result, nil
}

func (r *Redis) cached(ctx context.Context, key string) (*models.RefreshAccessTokenResult, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, integration.NewCancelledError(ctxErr)
		}

		return nil, fmt.Errorf("failed to read refreshed token: %w", err)
	}

	var result models.RefreshAccessTokenResult

	err = json.Unmarshal(payload, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode refreshed token: %w", err)
	}

	return &result, nil
}
