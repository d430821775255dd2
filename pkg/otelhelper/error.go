package otelhelper

import (
	"github.com/dukex/courier/pkg/integration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error attribute keys.
const (
	ErrorStatusKey = "error.status"
	ErrorCodeKey   = "error.code"
)

// SetError records err on span with its delivery status and code. A
// cancellation is recorded without marking the span as failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	attrs = append(attrs,
		attribute.Int(ErrorStatusKey, integration.StatusCode(err)),
		attribute.String(ErrorCodeKey, integration.Code(err)),
	)

	span.RecordError(err, trace.WithAttributes(attrs...))

	if integration.IsCancelled(err) {
		return
	}

	span.SetStatus(codes.Error, err.Error())
}
