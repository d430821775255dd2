package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/courier/pkg/config"
	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/destinations/webhook"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/mocks"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/registry"
	"github.com/dukex/courier/pkg/services"
	"github.com/dukex/courier/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, bus *mocks.MockEventBus) (*fiber.App, *httptest.Server) {
	t.Helper()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	t.Cleanup(target.Close)

	catalog := catalogFor(t, target)

	var publisher eventbus.EventPublisher
	if bus != nil {
		publisher = bus
	}

	handlers := web.NewAPIHandlers(services.NewDelivery(catalog, services.DeliveryConfig{}), validator.New(), publisher)

	app := fiber.New()
	handlers.Register(app)

	return app, target
}

func catalogFor(t *testing.T, target *httptest.Server) *registry.Registry[*destination.Destination] {
	t.Helper()

	catalog := registry.New[*destination.Destination](nil)

	for _, def := range []destination.Definition{webhook.Definition(), webhook.OAuthDefinition()} {
		d, err := destination.New(def, destination.Dependencies{HTTPClient: target.Client()})
		require.NoError(t, err)
		require.NoError(t, catalog.Register(d.Slug(), d))
	}

	return catalog
}

func subscribedSettings(target *httptest.Server) models.Settings {
	return models.Settings{
		models.SubscriptionKey: map[string]any{
			"partnerAction": "send",
			"subscribe":     `type = "track"`,
			"mapping": map[string]any{
				"url":  target.URL,
				"data": map[string]any{"@path": "$.properties"},
			},
		},
	}
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestAPIHandlers_Deliver(t *testing.T) {
	t.Parallel()

	app, target := setupTestApp(t, nil)

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "delivered",
			requestBody: web.DeliverRequest{
				Settings: subscribedSettings(target),
				Event:    models.Event{"type": "track", "properties": map[string]any{"plan": "pro"}},
			},
			expectedStatus: http.StatusOK,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var response web.ResultsResponse
				require.NoError(t, json.Unmarshal(body, &response))
				require.Len(t, response.Results, 1)
				assert.Equal(t, map[string]any{"received": true}, response.Results[0].Output)
			},
		},
		{
			name: "not subscribed",
			requestBody: web.DeliverRequest{
				Settings: subscribedSettings(target),
				Event:    models.Event{"type": "page"},
			},
			expectedStatus: http.StatusOK,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var response web.ResultsResponse
				require.NoError(t, json.Unmarshal(body, &response))
				require.Len(t, response.Results, 1)
				assert.Equal(t, "not subscribed", response.Results[0].Output)
			},
		},
		{
			name:           "invalid json",
			requestBody:    "{",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid JSON format",
		},
		{
			name:           "missing settings",
			requestBody:    web.DeliverRequest{Event: models.Event{"type": "track"}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Settings",
		},
		{
			name: "async without event bus",
			requestBody: web.DeliverRequest{
				Settings: subscribedSettings(target),
				Event:    models.Event{"type": "track"},
				Async:    true,
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Asynchronous delivery is not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := do(t, app, http.MethodPost, "/destinations/actions-webhook/event", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)
			}

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_DeliverAsync(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "tenant-1", mock.MatchedBy(func(event events.DeliveryRequested) bool {
		return event.Destination == "actions-webhook" && event.BatchKey == "tenant-1"
	})).Return(nil).Once()

	app, target := setupTestApp(t, bus)

	status, body := do(t, app, http.MethodPost, "/destinations/actions-webhook/event", web.DeliverRequest{
		Settings: subscribedSettings(target),
		Event:    models.Event{"type": "track"},
		Async:    true,
		BatchKey: "tenant-1",
	})

	assert.Equal(t, http.StatusAccepted, status)

	var response web.QueuedResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.NotEmpty(t, response.ID)
	bus.AssertExpectations(t)
}

func TestAPIHandlers_DeliverBatch(t *testing.T) {
	t.Parallel()

	app, target := setupTestApp(t, nil)

	status, body := do(t, app, http.MethodPost, "/destinations/actions-webhook/batch", web.DeliverBatchRequest{
		Settings: subscribedSettings(target),
		Events: []models.Event{
			{"type": "track", "properties": map[string]any{"n": 1}},
			{"type": "identify"},
		},
	})

	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ResultsResponse
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.Results, 1)
	require.Len(t, response.Results[0].MultiStatus, 2)
	assert.Equal(t, http.StatusOK, response.Results[0].MultiStatus[0].Status)
	assert.Equal(t, http.StatusBadRequest, response.Results[0].MultiStatus[1].Status)

	status, body = do(t, app, http.MethodPost, "/destinations/actions-webhook/batch", web.DeliverBatchRequest{
		Settings: subscribedSettings(target),
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "Events")
}

func TestAPIHandlers_Destinations(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/destinations", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Destinations []web.DestinationResponse `json:"destinations"`
		TotalCount   int                       `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 2, list.TotalCount)
	assert.Equal(t, "actions-webhook", list.Destinations[0].Slug)
	require.Len(t, list.Destinations[0].Actions, 1)
	assert.True(t, list.Destinations[0].Actions[0].Batch)
	assert.True(t, list.Destinations[0].Actions[0].DynamicField)
	assert.Equal(t, destination.SchemeOAuth2, list.Destinations[1].Scheme)

	status, body = do(t, app, http.MethodGet, "/destinations/actions-missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "destination_not_found")
}

func TestAPIHandlers_Capabilities(t *testing.T) {
	t.Parallel()

	app, target := setupTestApp(t, nil)

	tests := []struct {
		name           string
		path           string
		requestBody    any
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "authentication accepted",
			path:           "/destinations/actions-webhook/authentication",
			requestBody:    web.SettingsRequest{Settings: models.Settings{"sharedSecret": "s"}},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "refresh requires oauth scheme",
			path:           "/destinations/actions-webhook/refresh",
			requestBody:    web.SettingsRequest{Settings: models.Settings{models.OAuthKey: map[string]any{"clientId": "c"}}},
			expectedStatus: http.StatusNotImplemented,
			expectedBody:   "NotImplemented",
		},
		{
			name:           "deletion not supported",
			path:           "/destinations/actions-webhook/delete",
			requestBody:    web.DeleteRequest{Settings: subscribedSettings(target), Event: models.Event{"userId": "u"}},
			expectedStatus: http.StatusNotImplemented,
		},
		{
			name:           "dynamic field",
			path:           "/destinations/actions-webhook/actions/send/fields/method",
			requestBody:    web.DynamicFieldRequest{},
			expectedStatus: http.StatusOK,
			expectedBody:   `"PATCH"`,
		},
		{
			name: "dynamic field with every request field",
			path: "/destinations/actions-webhook/actions/send/fields/method",
			requestBody: web.DynamicFieldRequest{
				Settings: models.Settings{"sharedSecret": "s"},
				Auth:     &models.AuthTokens{AccessToken: "a"},
				Payload:  map[string]any{"url": "https://example.com"},
				Page:     "2",
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"PUT"`,
		},
		{
			name:           "dynamic field of unknown action",
			path:           "/destinations/actions-webhook/actions/missing/fields/method",
			requestBody:    web.DynamicFieldRequest{},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "action_not_found",
		},
		{
			name:           "audiences not supported",
			path:           "/destinations/actions-webhook/audiences",
			requestBody:    web.CreateAudienceRequest{Settings: models.Settings{}, AudienceName: "vip"},
			expectedStatus: http.StatusNotImplemented,
		},
		{
			name:           "audience name required",
			path:           "/destinations/actions-webhook/audiences",
			requestBody:    web.CreateAudienceRequest{Settings: models.Settings{}},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "AudienceName",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := do(t, app, http.MethodPost, tt.path, tt.requestBody)

			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedBody != "" {
				assert.Contains(t, string(body), tt.expectedBody)
			}
		})
	}
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t, nil)

	status, body := do(t, app, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_Instances(t *testing.T) {
	t.Parallel()

	_, target := setupTestApp(t, nil)

	instances, err := config.ParseInstances([]byte(`
instances:
  - id: orders
    destination: actions-webhook
    subscriptions:
      - partnerAction: send
        subscribe: 'type = "track"'
        mapping:
          url: ` + target.URL + `
`))
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(
		services.NewDelivery(catalogFor(t, target), services.DeliveryConfig{}),
		validator.New(),
		nil,
	).WithInstances(instances)

	app := fiber.New()
	handlers.Register(app)

	status, body := do(t, app, http.MethodGet, "/instances", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"id":"orders"`)

	status, body = do(t, app, http.MethodPost, "/instances/orders/event", web.InstanceEventRequest{
		Event: models.Event{"type": "track"},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ResultsResponse
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.Results, 1)
	assert.Equal(t, map[string]any{"received": true}, response.Results[0].Output)

	status, body = do(t, app, http.MethodPost, "/instances/orders/batch", web.InstanceBatchRequest{
		Events: []models.Event{{"type": "track"}, {"type": "page"}},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.Results[0].MultiStatus, 2)

	status, body = do(t, app, http.MethodPost, "/instances/missing/event", web.InstanceEventRequest{
		Event: models.Event{"type": "track"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "instance_not_found")
}
