// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator defines the predicate back-end contracts (spec.md
// §4.4) and the two evaluators with no external service dependency:
// keyword (literal/regex substring) and fuzzy (approximate substring).
package evaluator

import "fmt"

// Section names a predicate family, matching pattern.Section without
// importing the pattern package purely for this string alias.
type Section string

const (
	SectionKeywords  Section = "keywords"
	SectionFuzzy     Section = "fuzzy"
	SectionSemantics Section = "semantics"
	SectionLLM       Section = "llm"
)

// EvaluatorAbsent reports that a section's evaluator back-end was never
// installed (no override, no default available). The section then
// contributes only false results for the lifetime of the Matcher that
// surfaced it (spec.md §7).
type EvaluatorAbsent struct {
	Section Section
	Reason  string
}

func (e *EvaluatorAbsent) Error() string {
	return fmt.Sprintf("%s evaluator absent: %s", e.Section, e.Reason)
}

// EvaluatorFailure reports that a predicate raised while evaluating a
// specific variable. It is non-fatal: the predicate yields false/0.0 and
// the failure is recorded in the verdict's debug info (spec.md §7).
type EvaluatorFailure struct {
	Section Section
	VarName string
	Err     error
}

func (e *EvaluatorFailure) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Section, e.VarName, e.Err)
}

func (e *EvaluatorFailure) Unwrap() error {
	return e.Err
}

// ProviderAuthFailure specializes EvaluatorFailure for a back-end that
// rejected its credentials, so a caller can distinguish "the predicate
// didn't match" from "we couldn't even ask" (spec.md §7).
type ProviderAuthFailure struct {
	*EvaluatorFailure
	Provider string
}

func (e *ProviderAuthFailure) Error() string {
	return fmt.Sprintf("%s: authentication failed for provider %s: %v", e.Section, e.Provider, e.Err)
}

func NewProviderAuthFailure(section Section, varName, provider string, err error) *ProviderAuthFailure {
	return &ProviderAuthFailure{
		EvaluatorFailure: &EvaluatorFailure{Section: section, VarName: varName, Err: err},
		Provider:         provider,
	}
}
