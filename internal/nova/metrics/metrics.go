// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics exposes Prometheus counters and histograms for rule
// evaluation activity, namespaced "nova" the way the egress guard
// namespaces its own metrics "trace".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Rule Scanning
// =============================================================================

var (
	// ScansTotal counts completed Scanner.Check calls by rule and outcome.
	// Labels: rule, matched (true, false)
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nova",
		Subsystem: "scan",
		Name:      "checks_total",
		Help:      "Total rule checks by rule name and match outcome",
	}, []string{"rule", "matched"})

	// EvaluatorCallsTotal counts predicate evaluator invocations by section
	// and outcome, capturing how much work the lazy Matcher actually does.
	// Labels: section (keywords, fuzzy, semantics, llm), status (ok, error, absent)
	EvaluatorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nova",
		Subsystem: "evaluator",
		Name:      "calls_total",
		Help:      "Total evaluator invocations by section and status",
	}, []string{"section", "status"})

	// EvaluatorLatencySeconds measures per-predicate evaluation latency,
	// the dimension that most exposes the cost of the LLM and semantic
	// backends relative to keyword and fuzzy.
	// Labels: section
	EvaluatorLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nova",
		Subsystem: "evaluator",
		Name:      "latency_seconds",
		Help:      "Per-predicate evaluation latency by section",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"section"})

	// RuleReloadsTotal counts RuleWatcher reload attempts by outcome.
	// Labels: status (true, false) -- whether the reload was free of parse errors
	RuleReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nova",
		Subsystem: "rules",
		Name:      "reloads_total",
		Help:      "Total rule directory reloads by outcome",
	}, []string{"status"})

	// LoadedRuleCount tracks how many rules are currently active in a Scanner.
	LoadedRuleCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nova",
		Subsystem: "rules",
		Name:      "loaded",
		Help:      "Number of rules currently loaded",
	})
)

// RecordScan records the outcome of one Matcher.Check call.
//
// Inputs:
//   - rule: the rule name.
//   - matched: whether the verdict matched.
func RecordScan(rule string, matched bool) {
	ScansTotal.WithLabelValues(rule, boolLabel(matched)).Inc()
}

// RecordEvaluatorCall records one predicate evaluator invocation.
//
// Inputs:
//   - section: "keywords", "fuzzy", "semantics", or "llm".
//   - status: "ok", "error", or "absent".
//   - durationSec: wall-clock time spent in the evaluator.
func RecordEvaluatorCall(section, status string, durationSec float64) {
	EvaluatorCallsTotal.WithLabelValues(section, status).Inc()
	EvaluatorLatencySeconds.WithLabelValues(section).Observe(durationSec)
}

// RecordRuleReload records a RuleWatcher reload attempt and updates the
// currently-loaded rule gauge.
func RecordRuleReload(ok bool, ruleCount int) {
	RuleReloadsTotal.WithLabelValues(boolLabel(ok)).Inc()
	LoadedRuleCount.Set(float64(ruleCount))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
