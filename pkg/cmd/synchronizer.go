package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/tokensync"
	"github.com/redis/go-redis/v9"
)

// NewRefreshSynchronizer returns a Redis backed synchronizer when redisURL is
// set, so every worker shares one refresh per credential. Without Redis the
// guarantee only holds within the process.
func NewRefreshSynchronizer(redisURL string, logger *slog.Logger) protocol.RefreshSynchronizer {
	if redisURL == "" {
		return tokensync.NewLocal(tokensync.DefaultReuseWindow)
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("invalid redis url: %w", err))
	}

	return tokensync.NewRedis(redis.NewClient(options), logger)
}
