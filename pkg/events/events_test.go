package events

import (
	"net/http"
	"testing"
	"time"

	"github.com/dukex/courier/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNewDeliveryRequested(t *testing.T) {
	t.Parallel()

	event := NewDeliveryRequested("webhook", models.Settings{"url": "https://example.com"}, models.Event{"type": "track"}, "acct-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, DeliveryRequestedEvent, event.GetType())
	assert.Equal(t, DeliveryRequestedEvent, event.Type)
	assert.Equal(t, "webhook", event.Destination)
	assert.Equal(t, "acct-1", event.BatchKey)
}

func TestNewSubscriptionCompleted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		output     []models.Result
		wantFailed bool
	}{
		{name: "output", output: []models.Result{models.OutputResult("ok")}},
		{name: "error", output: []models.Result{models.ErrorResult("boom", http.StatusBadGateway, "")}, wantFailed: true},
		{
			name: "multistatus with a rejected node",
			output: []models.Result{models.MultiStatusResult([]models.MultiStatusNode{
				{Status: http.StatusOK},
				{Status: http.StatusBadRequest},
			})},
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := NewSubscriptionCompleted(models.SubscriptionStats{
				Duration:    1500 * time.Millisecond,
				Destination: "webhook",
				Action:      "send",
				Input:       models.SubscriptionInput{Data: []models.Event{{}, {}}},
				Output:      tt.output,
			})

			assert.Equal(t, SubscriptionCompletedEvent, event.GetType())
			assert.Equal(t, int64(1500), event.DurationMs)
			assert.Equal(t, 2, event.EventCount)
			assert.Equal(t, tt.wantFailed, event.Failed)
		})
	}
}
