package otelhelper

import (
	"errors"

	"github.com/autoflow-io/autoflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorCodeKey carries the node error code of a failed span.
const ErrorCodeKey = "autoflow.error.code"

// SetError marks span as failed. Node errors also record their code so traces can be
// grouped by failure class.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	var nodeErr *models.NodeError
	if errors.As(err, &nodeErr) {
		attrs = append(attrs, attribute.String(ErrorCodeKey, string(nodeErr.Code)))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}
