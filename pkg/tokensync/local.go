// Package tokensync provides refresh synchronizers guaranteeing a single in-flight access token
// refresh per credential scope.
package tokensync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"golang.org/x/sync/singleflight"
)

// DefaultReuseWindow is how long a refreshed token is handed to late callers
// still presenting the token it replaced.
const DefaultReuseWindow = time.Minute

type memoEntry struct {
	result  *models.RefreshAccessTokenResult
	expires time.Time
}

// Local synchronizes refreshes within one process.
type Local struct {
	group  singleflight.Group
	mu     sync.Mutex
	memo   map[string]memoEntry
	window time.Duration
	now    func() time.Time
}

var _ protocol.RefreshSynchronizer = (*Local)(nil)

func NewLocal(window time.Duration) *Local {
	if window <= 0 {
		window = DefaultReuseWindow
	}

	return &Local{
		memo:   make(map[string]memoEntry),
		window: window,
		now:    time.Now,
	}
}

// Synchronize runs refresh unless a refresh for scope is already in flight or
// recently replaced staleAccessToken, in which case its result is reused. The
// shared refresh is detached from the cancellation of the caller that started
// it; every caller still stops waiting when its own ctx is done.
func (l *Local) Synchronize(
	ctx context.Context,
	scope string,
	staleAccessToken string,
	refresh protocol.RefreshFunc,
) (*models.RefreshAccessTokenResult, error) {
	key := memoKey(scope, staleAccessToken)

	if result, ok := l.lookup(key); ok {
		return result, nil
	}

	ch := l.group.DoChan(scope, func() (any, error) {
		if result, ok := l.lookup(key); ok {
			return result, nil
		}

		result, err := refresh(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		if result != nil {
			l.store(key, result)
		}

		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, integration.NewCancelledError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		result, _ := res.Val.(*models.RefreshAccessTokenResult)

		return result, nil
	}
}

func (l *Local) lookup(key string) (*models.RefreshAccessTokenResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.memo[key]
	if !ok {
		return nil, false
	}

	if l.now().After(entry.expires) {
		delete(l.memo, key)

		return nil, false
	}

	return entry.result, true
}

func (l *Local) store(key string, result *models.RefreshAccessTokenResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	for k, entry := range l.memo {
		if now.After(entry.expires) {
			delete(l.memo, k)
		}
	}

	l.memo[key] = memoEntry{result: result, expires: now.Add(l.window)}
}

func memoKey(scope, staleAccessToken string) string {
	sum := sha256.Sum256([]byte(staleAccessToken))

	return scope + ":" + hex.EncodeToString(sum[:])
}
