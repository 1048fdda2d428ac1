// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink optionally streams scan verdicts and semantic/LLM scores
// into InfluxDB, for dashboards plotting match rates and score drift
// over time. A Sink is a pure side channel: nothing in internal/nova
// reads it back, and a process with no NOVA_INFLUX_URL configured runs
// identically without one.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

const measurement = "nova_verdict"

// Sink writes scan results to InfluxDB via its non-blocking write API,
// which batches and retries internally.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
}

// NewFromEnv builds a Sink from NOVA_INFLUX_URL / NOVA_INFLUX_TOKEN /
// NOVA_INFLUX_ORG / NOVA_INFLUX_BUCKET. ok is false (with a nil Sink and
// nil error) when NOVA_INFLUX_URL is unset, signaling "sink disabled"
// rather than a configuration error.
func NewFromEnv(logger *slog.Logger) (s *Sink, ok bool, err error) {
	url := os.Getenv("NOVA_INFLUX_URL")
	if url == "" {
		return nil, false, nil
	}
	token := os.Getenv("NOVA_INFLUX_TOKEN")
	org := os.Getenv("NOVA_INFLUX_ORG")
	bucket := os.Getenv("NOVA_INFLUX_BUCKET")
	if org == "" || bucket == "" {
		return nil, false, fmt.Errorf("sink: NOVA_INFLUX_URL is set but NOVA_INFLUX_ORG/NOVA_INFLUX_BUCKET are not")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influx write failed", slog.Any("error", err))
		}
	}()

	return &Sink{client: client, writeAPI: writeAPI, logger: logger}, true, nil
}

// RecordVerdict writes one point per evaluated rule for a scan result,
// tagged by rule name and match outcome, with semantic/LLM scores as
// fields so a dashboard can plot score drift per $var over time.
func (s *Sink) RecordVerdict(scanID, ruleName string, v *pattern.Verdict, ts time.Time) {
	fields := map[string]interface{}{
		"matched":        v.Matched,
		"keyword_count":  len(v.MatchingKeywords),
		"fuzzy_count":    len(v.MatchingFuzzy),
		"semantic_count": len(v.MatchingSemantics),
		"llm_count":      len(v.MatchingLLM),
	}
	for name, score := range v.SemanticScores {
		fields["semantic_score_"+trimVar(name)] = score
	}
	for name, score := range v.LLMScores {
		fields["llm_score_"+trimVar(name)] = score
	}

	p := influxdb2.NewPoint(measurement,
		map[string]string{
			"rule":    ruleName,
			"scan_id": scanID,
			"matched": boolTag(v.Matched),
		},
		fields,
		ts,
	)
	s.writeAPI.WritePoint(p)
}

// Flush blocks until all buffered points have been written.
func (s *Sink) Flush() {
	s.writeAPI.Flush()
}

// Close flushes pending points and releases the underlying HTTP client.
func (s *Sink) Close(ctx context.Context) {
	s.writeAPI.Flush()
	s.client.Close()
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// trimVar strips the leading "$" from a pattern variable name so it
// reads cleanly as an InfluxDB field-name suffix.
func trimVar(name string) string {
	if len(name) > 0 && name[0] == '$' {
		return name[1:]
	}
	return name
}
