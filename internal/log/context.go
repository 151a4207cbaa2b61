// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides the process logger and correlation helpers.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	itemIDKey
	tickIDKey
)

// correlated lists the context keys copied into log fields, in output order.
var correlated = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{itemIDKey, FieldItemID},
	{tickIDKey, FieldTickID},
}

func with(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func value(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// ContextWithRequestID tags ctx with an HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

// ContextWithItemID tags ctx with the schedule item being worked on.
func ContextWithItemID(ctx context.Context, id string) context.Context {
	return with(ctx, itemIDKey, id)
}

// ContextWithTickID tags ctx with a reconcile tick id.
func ContextWithTickID(ctx context.Context, id string) context.Context {
	return with(ctx, tickIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string { return value(ctx, requestIDKey) }
func ItemIDFromContext(ctx context.Context) string    { return value(ctx, itemIDKey) }
func TickIDFromContext(ctx context.Context) string    { return value(ctx, tickIDKey) }

// WithContext copies the correlation ids present in ctx onto logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	b := logger.With()
	n := 0
	for _, c := range correlated {
		if v := value(ctx, c.key); v != "" {
			b = b.Str(c.field, v)
			n++
		}
	}
	if n == 0 {
		return logger
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent plus the ids carried by ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
