package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for classification job identifiers.
	FieldJobID = "job_id"
	// FieldStatus is the standardized structured logging key for job statuses.
	FieldStatus = "status"
	// FieldRequestID is the X-Request-ID sent with an API call.
	FieldRequestID = "request_id"
	// FieldUsername identifies the signed-in account.
	FieldUsername = "username"
	// FieldViewID identifies a mounted job view.
	FieldViewID = "view_id"
)

type requestIDKey struct{}

// WithRequestID stores an API request identifier in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request identifier stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		return logger.With(slog.String(FieldRequestID, id))
	}
	return logger
}
