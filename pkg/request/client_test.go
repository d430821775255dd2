package request

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/courier/pkg/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Order Completed", body["event"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), Options{Headers: map[string]string{"Authorization": "Bearer token"}}, nil)

	resp, err := client.PostJSON(context.Background(), server.URL, map[string]any{"event": "Order Completed"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data())
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("expired"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), Options{}, nil)

	resp, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	require.NotNil(t, resp)

	var httpErr *integration.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.Equal(t, "expired", httpErr.Body)
	assert.True(t, integration.IsAuthentication(err))
}

func TestClient_BasicAuth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.Client(), Options{}, nil).With(Options{Username: "user", Password: "secret"})

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestClient_Cancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.Client(), Options{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, integration.IsCancelled(err))
	assert.NotErrorIs(t, err, integration.ErrTransport)
}

func TestClient_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(nil, Options{}, nil).Get(ctx, "http://127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrCancelled)
}

func TestOptions_Merge(t *testing.T) {
	t.Parallel()

	base := Options{Headers: map[string]string{"A": "1", "B": "2"}, Timeout: time.Second}
	got := base.Merge(Options{Headers: map[string]string{"B": "3"}, Username: "u"})

	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, got.Headers)
	assert.Equal(t, "u", got.Username)
	assert.Equal(t, time.Second, got.Timeout)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, base.Headers)
}
