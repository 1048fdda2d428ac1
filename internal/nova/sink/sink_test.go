// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

func TestNewFromEnv_DisabledWhenURLUnset(t *testing.T) {
	t.Setenv("NOVA_INFLUX_URL", "")
	s, ok, err := NewFromEnv(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, s)
}

func TestNewFromEnv_ErrorsWithoutOrgOrBucket(t *testing.T) {
	t.Setenv("NOVA_INFLUX_URL", "http://localhost:8086")
	t.Setenv("NOVA_INFLUX_ORG", "")
	t.Setenv("NOVA_INFLUX_BUCKET", "")
	_, ok, err := NewFromEnv(nil)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSink_RecordVerdictWritesAPoint(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case received <- string(body):
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Setenv("NOVA_INFLUX_URL", srv.URL)
	t.Setenv("NOVA_INFLUX_TOKEN", "test-token")
	t.Setenv("NOVA_INFLUX_ORG", "nova-org")
	t.Setenv("NOVA_INFLUX_BUCKET", "nova-bucket")

	s, ok, err := NewFromEnv(nil)
	require.NoError(t, err)
	require.True(t, ok)
	defer s.Close(context.Background())

	v := pattern.NewVerdict("Sample", map[string]string{"severity": "high"})
	v.Matched = true
	v.SemanticScores["$intent"] = 0.87

	s.RecordVerdict("scan-1", "Sample", v, time.Unix(0, 0))
	s.Flush()

	select {
	case body := <-received:
		assert.Contains(t, body, measurement)
		assert.Contains(t, body, "rule=Sample")
		assert.Contains(t, body, "semantic_score_intent")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for influx write")
	}
}
