package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(requests []events.DeliveryRequested) []string {
	out := make([]string, len(requests))
	for i, request := range requests {
		out[i] = request.ID
	}

	return out
}

func TestJournal_AppendPendingRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal("file://" + t.TempDir())

	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	journal.now = func() time.Time {
		clock = clock.Add(time.Second)

		return clock
	}

	first := events.NewDeliveryRequested("actions-webhook", models.Settings{"url": "https://example.com"}, models.Event{"messageId": "m-1"}, "acct-1")
	second := events.NewDeliveryRequested("actions-webhook", models.Settings{}, models.Event{"messageId": "m-2"}, "acct-1")
	other := events.NewDeliveryRequested("actions-webhook", models.Settings{}, models.Event{"messageId": "m-3"}, "acct-1")

	require.NoError(t, journal.Append(ctx, "worker-a", first))
	require.NoError(t, journal.Append(ctx, "worker-a", second))
	require.NoError(t, journal.Append(ctx, "worker-b", other))

	pending, err := journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids(pending))
	assert.Equal(t, "m-1", pending[0].Event["messageId"])
	assert.Equal(t, "https://example.com", pending[0].Settings["url"])
	assert.Equal(t, "acct-1", pending[0].BatchKey)

	require.NoError(t, journal.Remove(ctx, "worker-a", []string{first.ID, "unknown"}))

	pending, err = journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids(pending))

	pending, err = journal.Pending(ctx, "worker-b")
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, ids(pending))
}

func TestJournal_EmptyAndInvalidOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := NewJournal(t.TempDir())

	pending, err := journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = journal.Append(ctx, "", events.NewDeliveryRequested("actions-webhook", nil, nil, "k"))
	assert.ErrorIs(t, err, persistence.ErrInvalidOwner)
}
