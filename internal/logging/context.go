package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	processInstanceIDKey ctxKey = iota
	processDefinitionIDKey
	formNameKey
)

// WithProcessInstanceID returns a context with the process instance ID set.
func WithProcessInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processInstanceIDKey, id)
}

// WithProcessDefinitionID returns a context with the process definition ID set.
func WithProcessDefinitionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processDefinitionIDKey, id)
}

// WithFormName returns a context with the form name set.
func WithFormName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, formNameKey, name)
}

// ProcessInstanceID extracts the process instance ID from the context, or "" if absent.
func ProcessInstanceID(ctx context.Context) string {
	v, _ := ctx.Value(processInstanceIDKey).(string)
	return v
}

// ProcessDefinitionID extracts the process definition ID from the context, or "" if absent.
func ProcessDefinitionID(ctx context.Context) string {
	v, _ := ctx.Value(processDefinitionIDKey).(string)
	return v
}

// FormName extracts the form name from the context, or "" if absent.
func FormName(ctx context.Context) string {
	v, _ := ctx.Value(formNameKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ProcessInstanceID(ctx); v != "" {
		r.AddAttrs(slog.String("process_instance_id", v))
	}
	if v := ProcessDefinitionID(ctx); v != "" {
		r.AddAttrs(slog.String("process_definition_id", v))
	}
	if v := FormName(ctx); v != "" {
		r.AddAttrs(slog.String("form_name", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
