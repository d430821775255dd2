package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/courier/pkg/cmd"
	"github.com/dukex/courier/pkg/metrics"
	"github.com/dukex/courier/pkg/persistence/file"
	"github.com/dukex/courier/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	catalog, err := cmd.NewCatalog(slog.Default(), nil)
	require.NoError(t, err)

	api := NewAPI(
		slog.Default(),
		catalog,
		services.DeliveryConfig{Tokens: file.NewTokenStore(t.TempDir())},
		nil,
		metrics.NewPrometheus("courier", true),
		nil,
	)

	return api.App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Courier API", body)
}

func TestAPI_Liveness(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/livez")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Token store is healthy")
}

func TestAPI_Destinations(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/destinations")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"slug":"actions-logger"`)
	assert.Contains(t, body, `"slug":"actions-webhook-oauth"`)
}

func TestAPI_Metrics(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/metrics")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}
