// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	t.Setenv("REELFLOW_TEST_STR", "value")
	assert.Equal(t, "value", ParseString("REELFLOW_TEST_STR", "def"))

	t.Setenv("REELFLOW_TEST_STR", "")
	assert.Equal(t, "def", ParseString("REELFLOW_TEST_STR", "def"))

	assert.Equal(t, "def", ParseString("REELFLOW_TEST_UNSET", "def"))
}

func TestParseInt(t *testing.T) {
	t.Setenv("REELFLOW_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("REELFLOW_TEST_INT", 1))

	t.Setenv("REELFLOW_TEST_INT", "forty-two")
	assert.Equal(t, 1, ParseInt("REELFLOW_TEST_INT", 1))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("REELFLOW_TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, ParseDuration("REELFLOW_TEST_DUR", time.Second))

	t.Setenv("REELFLOW_TEST_DUR", "soon")
	assert.Equal(t, time.Second, ParseDuration("REELFLOW_TEST_DUR", time.Second))
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "YES": true, "false": false, "0": false, "no": false}
	for raw, want := range cases {
		t.Setenv("REELFLOW_TEST_BOOL", raw)
		assert.Equal(t, want, ParseBool("REELFLOW_TEST_BOOL", !want), raw)
	}

	t.Setenv("REELFLOW_TEST_BOOL", "maybe")
	assert.True(t, ParseBool("REELFLOW_TEST_BOOL", true))
}

func TestParseFloat(t *testing.T) {
	t.Setenv("REELFLOW_TEST_FLOAT", "0.25")
	assert.InDelta(t, 0.25, ParseFloat("REELFLOW_TEST_FLOAT", 1), 1e-9)

	t.Setenv("REELFLOW_TEST_FLOAT", "x")
	assert.InDelta(t, 1.0, ParseFloat("REELFLOW_TEST_FLOAT", 1), 1e-9)
}
