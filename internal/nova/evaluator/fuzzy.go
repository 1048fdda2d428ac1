// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// FuzzyEvaluator computes a rapidfuzz-style "partial_ratio" needle-in-
// haystack similarity score in [0,100] (spec.md §4.4). go-difflib was
// already an indirect dependency (pulled in transitively through
// testify); Nova promotes it to a direct dependency and implements the
// same matching-blocks-driven windowed search rapidfuzz uses, rather
// than reaching for a cgo-backed fuzzy matching library.
//
// present reports whether the backend used to compute scores is available.
// It always returns true for this pure-Go implementation; the field exists
// so FuzzyEvaluator can model the same "optional back-end" shape as the
// semantic and LLM evaluators (spec.md §9's EvaluatorAbsent variant),
// mirroring the Python original's RAPIDFUZZ_AVAILABLE import guard.
type FuzzyEvaluator struct {
	present bool
}

// NewFuzzyEvaluator returns a ready-to-use FuzzyEvaluator.
func NewFuzzyEvaluator() *FuzzyEvaluator {
	return &FuzzyEvaluator{present: true}
}

// Evaluate implements Fuzzy.
func (e *FuzzyEvaluator) Evaluate(_ context.Context, varName string, p pattern.FuzzyPattern, prompt string) (bool, error) {
	if !e.present {
		return false, &EvaluatorAbsent{Section: SectionFuzzy, Reason: "fuzzy backend not installed"}
	}

	haystack, needle := prompt, p.Pattern
	if !p.CaseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}

	score, err := partialRatio(needle, haystack)
	if err != nil {
		return false, &EvaluatorFailure{Section: SectionFuzzy, VarName: varName, Err: err}
	}
	return score >= p.Threshold, nil
}

// partialRatio computes rapidfuzz's partial_ratio: the best similarity
// ratio between the shorter string and some equal-length window of the
// longer one, where candidate windows come from the matching blocks of a
// sequence alignment between the two strings.
func partialRatio(s1, s2 string) (int, error) {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 && len(r2) == 0 {
		return 100, nil
	}
	if len(r1) == 0 || len(r2) == 0 {
		return 0, nil
	}

	var shorter, longer []rune
	if len(r1) <= len(r2) {
		shorter, longer = r1, r2
	} else {
		shorter, longer = r2, r1
	}

	shorterSeq := runesToStrings(shorter)
	longerSeq := runesToStrings(longer)

	matcher := difflib.NewMatcher(shorterSeq, longerSeq)
	blocks := matcher.GetMatchingBlocks()

	best := 0.0
	for _, block := range blocks {
		longStart := block.B - block.A
		if longStart < 0 {
			longStart = 0
		}
		longEnd := longStart + len(shorter)
		if longEnd > len(longer) {
			longEnd = len(longer)
		}
		if longStart > longEnd {
			continue
		}
		window := longerSeq[longStart:longEnd]

		windowMatcher := difflib.NewMatcher(shorterSeq, window)
		ratio := windowMatcher.Ratio()
		if ratio > best {
			best = ratio
		}
		if best > 0.995 {
			return 100, nil
		}
	}
	return int(math.Round(best * 100)), nil
}

func runesToStrings(rs []rune) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
