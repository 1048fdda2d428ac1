// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlog

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"critical", levelCritical},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	_, err := ParseLevel("nonsense")
	assert.Error(t, err)
}

func TestCriticalRanksAboveError(t *testing.T) {
	assert.Greater(t, int(levelCritical), int(slog.LevelError))
}

func TestSetLevel_UpdatesSharedLevelVar(t *testing.T) {
	require.NoError(t, SetLevel("error"))
	assert.Equal(t, slog.LevelError, programLevel.Level())

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, slog.LevelDebug, programLevel.Level())
}
