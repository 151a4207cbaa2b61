// SPDX-License-Identifier: MIT
package validate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid http", "http://example.com", false},
		{"valid https", "https://link.demo.com", false},
		{"empty url", "", true},
		{"no host", "http://", true},
		{"invalid scheme", "ftp://example.com", true},
		{"no scheme", "example.com", true},
		{"with port", "http://example.com:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("server", tt.value, []string{"http", "https"})
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err=%v", v.Err())
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"", false},
		{":8088", false},
		{"127.0.0.1:9090", false},
		{"localhost", true},
		{":0", true},
		{":http", true},
		{":70000", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			v := New()
			v.ListenAddr("listen", tt.addr)
			assert.Equal(t, tt.wantErr, !v.IsValid())
		})
	}
}

func TestValidator_Accumulates(t *testing.T) {
	v := New()
	v.NotEmpty("deviceId", "  ")
	v.OneOf("backend", "mongo", []string{"bolt", "memory"})
	v.Positive("concurrency", 0)
	v.NonNegative("retries", -1)
	v.Range("workers", 99, 1, 16)
	v.DurationAtLeast("syncInterval", 10*time.Millisecond, time.Second)
	v.PositiveFloat("rps", 0)
	v.Fraction("samplingRate", 1.5)

	require.Len(t, v.Errors(), 8)

	err := v.Err()
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"deviceId", "backend", "concurrency", "retries",
		"workers", "syncInterval", "rps", "samplingRate",
	}, verr.Fields())
	assert.Contains(t, err.Error(), "; ")

	var field Error
	require.ErrorAs(t, err, &field)
	assert.Equal(t, "deviceId", field.Field)
}

func TestValidator_ErrNilWhenValid(t *testing.T) {
	v := New()
	v.OneOf("backend", "bolt", []string{"bolt", "memory"})
	v.Fraction("samplingRate", 0)
	v.LogLevel("logLevel", "DEBUG")
	assert.NoError(t, v.Err())
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	lvl, err = ParseLogLevel(" Trace ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, lvl)

	for _, bad := range []string{"", "loud", "fatal", "disabled"} {
		_, err = ParseLogLevel(bad)
		assert.ErrorIs(t, err, ErrInvalidLogLevel, bad)
	}
}
