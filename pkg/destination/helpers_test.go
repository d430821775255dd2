package destination

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
	"github.com/stretchr/testify/require"
)

// spyAction records what it receives and delegates to optional callbacks.
type spyAction struct {
	fields       map[string]schema.Field
	perform      func(input protocol.ExecuteInput) (any, error)
	performBatch func(input protocol.BatchExecuteInput) ([]models.MultiStatusNode, error)

	mu       sync.Mutex
	payloads []map[string]any
	batches  [][]map[string]any
	calls    atomic.Int32
}

func (a *spyAction) Title() string       { return "Spy" }
func (a *spyAction) Description() string { return "Records deliveries" }

func (a *spyAction) Fields() map[string]schema.Field {
	return a.fields
}

func (a *spyAction) Perform(_ context.Context, _ *request.Client, input protocol.ExecuteInput) (any, error) {
	a.calls.Add(1)

	a.mu.Lock()
	a.payloads = append(a.payloads, input.Payload)
	a.mu.Unlock()

	if a.perform == nil {
		return input.Payload, nil
	}

	return a.perform(input)
}

func (a *spyAction) received() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]map[string]any{}, a.payloads...)
}

// spyBatchAction adds batch support to spyAction.
type spyBatchAction struct {
	*spyAction
}

func (a spyBatchAction) PerformBatch(
	_ context.Context,
	_ *request.Client,
	input protocol.BatchExecuteInput,
) ([]models.MultiStatusNode, error) {
	a.calls.Add(1)

	a.mu.Lock()
	a.batches = append(a.batches, input.Payloads)
	a.mu.Unlock()

	if a.performBatch != nil {
		return a.performBatch(input)
	}

	nodes := make([]models.MultiStatusNode, len(input.Payloads))
	for i, payload := range input.Payloads {
		nodes[i] = models.MultiStatusNode{Status: 200, Body: payload}
	}

	return nodes, nil
}

func (a spyBatchAction) sentBatches() [][]map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([][]map[string]any{}, a.batches...)
}

type countingStats struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingStats) Incr(name string, value int64, _ []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counts == nil {
		s.counts = map[string]int64{}
	}

	s.counts[name] += value
}

func (s *countingStats) Histogram(string, float64, []string) {}

func (s *countingStats) count(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[name]
}

type completions struct {
	mu    sync.Mutex
	stats []models.SubscriptionStats
}

func (c *completions) record(stats models.SubscriptionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = append(c.stats, stats)
}

func (c *completions) all() []models.SubscriptionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.SubscriptionStats{}, c.stats...)
}

func newDestination(t *testing.T, def Definition) *Destination {
	t.Helper()

	if def.Name == "" {
		def.Name = "Spy Destination"
	}

	d, err := New(def, Dependencies{})
	require.NoError(t, err)

	return d
}

func subscribed(subscribe any, action string, mapping map[string]any) models.Settings {
	return models.Settings{
		"apiKey": "secret",
		models.SubscriptionKey: map[string]any{
			"id":            "sub-1",
			"partnerAction": action,
			"subscribe":     subscribe,
			"mapping":       mapping,
		},
	}
}

func track(event string, props map[string]any) models.Event {
	return models.Event{
		"type":       "track",
		"event":      event,
		"userId":     "user-1",
		"properties": props,
	}
}
