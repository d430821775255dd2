package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushed struct {
	mu      sync.Mutex
	batches map[Key][][]string
}

func (f *flushed) record(_ context.Context, key Key, requests []events.DeliveryRequested) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.batches == nil {
		f.batches = map[Key][][]string{}
	}

	ids := make([]string, len(requests))
	for i, request := range requests {
		ids[i] = request.Event["messageId"].(string)
	}

	f.batches[key] = append(f.batches[key], ids)

	return nil
}

func (f *flushed) get(key Key) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.batches[key]
}

func request(destination, batchKey, id string) events.DeliveryRequested {
	return events.NewDeliveryRequested(destination, models.Settings{}, models.Event{"messageId": id}, batchKey)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Schedule: "not a schedule"}, (&flushed{}).record, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	b, err := New(Config{}, (&flushed{}).record, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSize, b.config.MaxSize)
	assert.Equal(t, DefaultSchedule, b.config.Schedule)
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	t.Parallel()

	out := &flushed{}
	b, err := New(Config{MaxSize: 2}, out.record, nil)
	require.NoError(t, err)

	ctx := context.Background()
	key := Key{Destination: "webhook", BatchKey: "acct-1"}

	require.NoError(t, b.Add(ctx, request("webhook", "acct-1", "1")))
	assert.Empty(t, out.get(key))

	require.NoError(t, b.Add(ctx, request("webhook", "acct-1", "2")))
	require.NoError(t, b.Add(ctx, request("webhook", "acct-2", "3")))

	assert.Equal(t, [][]string{{"1", "2"}}, out.get(key))
	assert.Equal(t, 1, b.Pending())
}

func TestBatcher_FlushAllGroupsByKey(t *testing.T) {
	t.Parallel()

	out := &flushed{}
	b, err := New(Config{MaxSize: 10}, out.record, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, r := range []events.DeliveryRequested{
		request("webhook", "a", "1"),
		request("logger", "a", "2"),
		request("webhook", "a", "3"),
	} {
		require.NoError(t, b.Add(ctx, r))
	}

	require.NoError(t, b.FlushAll(ctx))

	assert.Equal(t, [][]string{{"1", "3"}}, out.get(Key{Destination: "webhook", BatchKey: "a"}))
	assert.Equal(t, [][]string{{"2"}}, out.get(Key{Destination: "logger", BatchKey: "a"}))
	assert.Zero(t, b.Pending())
}

func TestBatcher_FlushAllJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b, err := New(Config{}, func(context.Context, Key, []events.DeliveryRequested) error { return boom }, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Add(ctx, request("webhook", "a", "1")))
	require.NoError(t, b.Add(ctx, request("logger", "a", "2")))

	require.ErrorIs(t, b.FlushAll(ctx), boom)
}

func TestBatcher_ScheduledFlush(t *testing.T) {
	t.Parallel()

	out := &flushed{}
	b, err := New(Config{MaxSize: 10, Schedule: "@every 1s"}, out.record, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Add(ctx, request("webhook", "a", "1")))

	assert.Eventually(t, func() bool {
		return len(out.get(Key{Destination: "webhook", BatchKey: "a"})) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, b.Add(ctx, request("webhook", "b", "2")))
	require.NoError(t, b.Stop(ctx))

	assert.Len(t, out.get(Key{Destination: "webhook", BatchKey: "b"}), 1)
}

type memoryJournal struct {
	mu        sync.Mutex
	entries   map[string][]events.DeliveryRequested
	appendErr error
}

func (j *memoryJournal) Append(_ context.Context, owner string, request events.DeliveryRequested) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.appendErr != nil {
		return j.appendErr
	}

	if j.entries == nil {
		j.entries = map[string][]events.DeliveryRequested{}
	}

	j.entries[owner] = append(j.entries[owner], request)

	return nil
}

func (j *memoryJournal) Remove(_ context.Context, owner string, ids []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}

	kept := j.entries[owner][:0]
	for _, request := range j.entries[owner] {
		if !drop[request.ID] {
			kept = append(kept, request)
		}
	}

	j.entries[owner] = kept

	return nil
}

func (j *memoryJournal) Pending(_ context.Context, owner string) ([]events.DeliveryRequested, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]events.DeliveryRequested(nil), j.entries[owner]...), nil
}

func (j *memoryJournal) messageIDs(owner string) []string {
	pending, _ := j.Pending(context.Background(), owner)

	out := make([]string, len(pending))
	for i, request := range pending {
		out[i] = request.Event["messageId"].(string)
	}

	return out
}

func TestBatcher_Journal(t *testing.T) {
	t.Parallel()

	cancelled := context.Canceled

	tests := []struct {
		name        string
		failures    int
		wantBatches [][]string
		wantPending int
		wantJournal []string
	}{
		{
			name:        "delivered batches leave the journal",
			wantBatches: [][]string{{"1", "2"}},
			wantPending: 1,
			wantJournal: []string{"3"},
		},
		{
			name:        "failed batches stay queued and journaled",
			failures:    2,
			wantBatches: nil,
			wantPending: 3,
			wantJournal: []string{"1", "2", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := &flushed{}
			failures := tt.failures
			flush := func(ctx context.Context, key Key, requests []events.DeliveryRequested) error {
				if failures > 0 {
					failures--

					return cancelled
				}

				return out.record(ctx, key, requests)
			}

			b, err := New(Config{MaxSize: 2}, flush, nil)
			require.NoError(t, err)

			journal := &memoryJournal{}
			b.UseJournal(journal, "worker-a")

			ctx := context.Background()
			for _, id := range []string{"1", "2", "3"} {
				require.NoError(t, b.Add(ctx, request("webhook", "acct-1", id)))
			}

			assert.Equal(t, tt.wantBatches, out.get(Key{Destination: "webhook", BatchKey: "acct-1"}))
			assert.Equal(t, tt.wantPending, b.Pending())
			assert.Equal(t, tt.wantJournal, journal.messageIDs("worker-a"))
		})
	}
}

func TestBatcher_JournalAppendFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	b, err := New(Config{}, (&flushed{}).record, nil)
	require.NoError(t, err)

	b.UseJournal(&memoryJournal{appendErr: boom}, "worker-a")

	require.ErrorIs(t, b.Add(context.Background(), request("webhook", "a", "1")), boom)
	assert.Zero(t, b.Pending())
}

func TestBatcher_RecoverAfterRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := &memoryJournal{}

	first, err := New(Config{MaxSize: 10}, (&flushed{}).record, nil)
	require.NoError(t, err)
	first.UseJournal(journal, "worker-a")

	require.NoError(t, first.Add(ctx, request("webhook", "a", "1")))
	require.NoError(t, first.Add(ctx, request("logger", "a", "2")))

	out := &flushed{}
	second, err := New(Config{MaxSize: 10}, out.record, nil)
	require.NoError(t, err)
	second.UseJournal(journal, "worker-a")

	recovered, err := second.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	recovered, err = second.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Equal(t, 2, second.Pending())

	redelivered, err := journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	require.NoError(t, second.Add(ctx, redelivered[0]))
	assert.Equal(t, 2, second.Pending())

	require.NoError(t, second.FlushAll(ctx))

	assert.Equal(t, [][]string{{"1"}}, out.get(Key{Destination: "webhook", BatchKey: "a"}))
	assert.Equal(t, [][]string{{"2"}}, out.get(Key{Destination: "logger", BatchKey: "a"}))
	assert.Empty(t, journal.messageIDs("worker-a"))
}

func TestBatcher_FlushAllKeepsFailedBatchesWithJournal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journal := &memoryJournal{}

	b, err := New(Config{}, func(context.Context, Key, []events.DeliveryRequested) error { return context.Canceled }, nil)
	require.NoError(t, err)
	b.UseJournal(journal, "worker-a")

	require.NoError(t, b.Add(ctx, request("webhook", "a", "1")))
	require.NoError(t, b.Add(ctx, request("webhook", "a", "2")))

	require.ErrorIs(t, b.FlushAll(ctx), context.Canceled)
	assert.Equal(t, 2, b.Pending())
	assert.Equal(t, []string{"1", "2"}, journal.messageIDs("worker-a"))
}
