package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/courier/pkg/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "destination.subscription",
		attribute.String(DestinationKey, "Webhook"),
		attribute.String(ActionKey, "send"),
	)
	SetError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "destination.subscription", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String(ActionKey, "send"))
}

func TestSetError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		wantStatus     codes.Code
		wantHTTPStatus int
	}{
		{
			name:           "authentication failure",
			err:            integration.NewInvalidAuthenticationError("token expired", "INVALID_AUTHENTICATION", nil),
			wantStatus:     codes.Error,
			wantHTTPStatus: 401,
		},
		{
			name:           "cancellation",
			err:            integration.NewCancelledError(context.Canceled),
			wantStatus:     codes.Unset,
			wantHTTPStatus: 408,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := tracetest.NewSpanRecorder()
			tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

			_, span := tracer.Start(context.Background(), "worker.deliver")
			SetError(span, tt.err)
			span.End()

			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, tt.wantStatus, ended[0].Status().Code)
			require.Len(t, ended[0].Events(), 1)
			assert.Contains(t, ended[0].Events()[0].Attributes, attribute.Int(ErrorStatusKey, tt.wantHTTPStatus))
		})
	}
}
