// Package batcher groups delivery requests by destination instance and hands them to a flush function
// when a batch is full or on a cron schedule. With a Journal, queued requests survive a restart and a
// failed flush is retried on the next one.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/dukex/courier/pkg/events"
	"github.com/robfig/cron/v3"
)

const (
	DefaultMaxSize  = 100
	DefaultSchedule = "@every 5s"
)

var ErrInvalidConfig = errors.New("invalid batcher configuration")

// Key identifies the requests that may be delivered together.
type Key struct {
	Destination string
	BatchKey    string
}

func (k Key) String() string {
	return k.Destination + "/" + k.BatchKey
}

// FlushFunc delivers one batch. Requests share a Key and keep arrival order.
type FlushFunc func(ctx context.Context, key Key, requests []events.DeliveryRequested) error

// Journal keeps queued requests durable until their batch is delivered.
type Journal interface {
	Append(ctx context.Context, owner string, request events.DeliveryRequested) error
	Remove(ctx context.Context, owner string, ids []string) error
	Pending(ctx context.Context, owner string) ([]events.DeliveryRequested, error)
}

type Config struct {
	MaxSize  int
	Schedule string
}

type Batcher struct {
	config Config
	flush  FlushFunc
	logger *slog.Logger
	cron   *cron.Cron

	journal Journal
	owner   string

	mu      sync.Mutex
	pending map[Key][]events.DeliveryRequested
}

func New(config Config, flush FlushFunc, logger *slog.Logger) (*Batcher, error) {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}

	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", ErrInvalidConfig, config.Schedule, err)
	}

	if flush == nil {
		return nil, fmt.Errorf("%w: flush function is required", ErrInvalidConfig)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Batcher{
		config:  config,
		flush:   flush,
		logger:  logger.With("module", "batcher", "max_size", config.MaxSize, "schedule", config.Schedule),
		pending: make(map[Key][]events.DeliveryRequested),
	}, nil
}

// UseJournal makes queued requests durable under owner. Call it before Add.
func (b *Batcher) UseJournal(journal Journal, owner string) {
	b.journal = journal
	b.owner = owner
	b.logger = b.logger.With("owner", owner)
}

// Add queues request. When its batch reaches MaxSize the batch is flushed
// before Add returns. With a journal, Add fails only when request could not
// be journaled; a failed flush is queued again instead.
func (b *Batcher) Add(ctx context.Context, request events.DeliveryRequested) error {
	key := Key{Destination: request.Destination, BatchKey: request.BatchKey}

	if b.journal != nil {
		err := b.journal.Append(ctx, b.owner, request)
		if err != nil {
			return fmt.Errorf("failed to journal request %s: %w", request.ID, err)
		}
	}

	b.mu.Lock()

	// A message redelivered after a crash may already be queued by Recover.
	if slices.ContainsFunc(b.pending[key], func(queued events.DeliveryRequested) bool { return queued.ID == request.ID }) {
		b.mu.Unlock()

		return nil
	}

	b.pending[key] = append(b.pending[key], request)

	var full []events.DeliveryRequested
	if len(b.pending[key]) >= b.config.MaxSize {
		full = b.pending[key]
		delete(b.pending, key)
	}
	b.mu.Unlock()

	if full == nil {
		return nil
	}

	err := b.deliver(ctx, key, full)
	if b.journal != nil {
		return nil
	}

	return err
}

// Recover queues the journaled requests left by a previous run of the same owner.
func (b *Batcher) Recover(ctx context.Context) (int, error) {
	if b.journal == nil {
		return 0, nil
	}

	requests, err := b.journal.Pending(ctx, b.owner)
	if err != nil {
		return 0, fmt.Errorf("failed to read batch journal: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	queued := make(map[string]bool)
	for _, pending := range b.pending {
		for _, request := range pending {
			queued[request.ID] = true
		}
	}

	recovered := 0

	for _, request := range requests {
		if queued[request.ID] {
			continue
		}

		key := Key{Destination: request.Destination, BatchKey: request.BatchKey}
		b.pending[key] = append(b.pending[key], request)
		recovered++
	}

	if recovered > 0 {
		b.logger.InfoContext(ctx, "recovered journaled requests", "count", recovered)
	}

	return recovered, nil
}

func (b *Batcher) deliver(ctx context.Context, key Key, requests []events.DeliveryRequested) error {
	err := b.flush(ctx, key, requests)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to flush batch", "key", key.String(), "size", len(requests), "error", err)

		if b.journal != nil {
			b.requeue(key, requests)
		}

		return err
	}

	if b.journal == nil {
		return nil
	}

	ids := make([]string, len(requests))
	for i, request := range requests {
		ids[i] = request.ID
	}

	removeErr := b.journal.Remove(context.WithoutCancel(ctx), b.owner, ids)
	if removeErr != nil {
		b.logger.WarnContext(ctx, "delivered requests remain journaled", "key", key.String(), "size", len(ids), "error", removeErr)
	}

	return nil
}

// requeue puts requests back ahead of anything queued since they were taken.
func (b *Batcher) requeue(key Key, requests []events.DeliveryRequested) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[key] = append(append([]events.DeliveryRequested(nil), requests...), b.pending[key]...)
}

// Pending returns the number of queued requests.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, requests := range b.pending {
		total += len(requests)
	}

	return total
}

// FlushAll flushes every pending batch, in key order. With a journal, batches
// that fail stay queued.
func (b *Batcher) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[Key][]events.DeliveryRequested)
	b.mu.Unlock()

	keys := make([]Key, 0, len(pending))
	for key := range pending {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var errs []error

	for _, key := range keys {
		err := b.deliver(ctx, key, pending[key])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Start recovers journaled requests and flushes pending batches on the
// configured schedule until Stop.
func (b *Batcher) Start(ctx context.Context) error {
	_, err := b.Recover(ctx)
	if err != nil {
		return err
	}

	b.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = b.cron.AddFunc(b.config.Schedule, func() {
		_ = b.FlushAll(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule flushes: %w", err)
	}

	b.cron.Start()
	b.logger.InfoContext(ctx, "batcher started")

	return nil
}

// Stop waits for a running scheduled flush and flushes what is left.
func (b *Batcher) Stop(ctx context.Context) error {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}

	b.logger.InfoContext(ctx, "batcher stopped")

	return b.FlushAll(ctx)
}
