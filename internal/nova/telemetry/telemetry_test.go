// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_UsableBeforeInit(t *testing.T) {
	tr := Tracer()
	_, span := tr.Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid(), "the no-op tracer installed before Init must not fabricate a real span context")
}

func TestInit_StdoutExporterConfiguresProviderAndShutsDownCleanly(t *testing.T) {
	t.Setenv("NOVA_OTEL_EXPORTER", "stdout")

	shutdown, err := Init(context.Background(), "nova-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, span := StartScan(context.Background(), 3, 2)
	span.End()
	assert.NotNil(t, ctx)

	require.NoError(t, shutdown(context.Background()))
}
