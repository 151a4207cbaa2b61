// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithItemID(ctx, "item-7")
	ctx = ContextWithTickID(ctx, "tick-3")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "item-7", ItemIDFromContext(ctx))
	assert.Equal(t, "tick-3", TickIDFromContext(ctx))
}

func TestContextIDs_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Empty(t, ItemIDFromContext(nil))
}

func TestWithContext_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug", Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithItemID(context.Background(), "item-42")
	l := WithComponentFromContext(ctx, "download")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "download", entry[FieldComponent])
	assert.Equal(t, "item-42", entry[FieldItemID])
	assert.Equal(t, "test", entry["service"])
}

func TestConfigure_Defaults(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "bogus"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("x")
	l.Debug().Msg("hidden")
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain", entry["message"])
	assert.Equal(t, "reelflow", entry["service"])
}

func TestWithContext_NoIDsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithContext(context.Background(), Base())
	l.Info().Msg("x")
	assert.NotContains(t, buf.String(), FieldRequestID)
}
