// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/scanner"
)

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <prompt-a> <prompt-b>",
		Short: "Show which predicates flip between two prompts under --rules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(rulesDir)
			if err != nil {
				return err
			}
			secrets, err := loadSecrets()
			if err != nil {
				return err
			}
			defer secrets.Close()

			s := scanner.New(rules, matcherOptions(secrets, slog.Default())...)
			resA := s.ScanString(cmd.Context(), args[0])
			resB := s.ScanString(cmd.Context(), args[1])

			for _, r := range rules {
				if err := printPredicateDiff(r.Name, resA.Verdicts[r.Name], resB.Verdicts[r.Name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

// predicateLines renders a Verdict's full predicate truth table (every
// evaluated predicate, not just the matching ones) as sorted
// "section.$var=bool" lines, so two prompts' diffs line up predicate for
// predicate regardless of map iteration order.
func predicateLines(v *pattern.Verdict) []string {
	if v == nil {
		return nil
	}
	var lines []string
	add := func(section string, m map[string]bool) {
		for name, matched := range m {
			lines = append(lines, fmt.Sprintf("%s.%s=%v", section, name, matched))
		}
	}
	add("keywords", v.Debug.AllKeywordMatches)
	add("fuzzy", v.Debug.AllFuzzyMatches)
	add("semantics", v.Debug.AllSemanticMatches)
	add("llm", v.Debug.AllLLMMatches)
	sort.Strings(lines)
	return lines
}

// printPredicateDiff prints a unified diff of ruleName's predicate truth
// table between two verdicts, plus an added/deleted summary line. It's a
// no-op when nothing changed.
func printPredicateDiff(ruleName string, a, b *pattern.Verdict) error {
	linesA := predicateLines(a)
	linesB := predicateLines(b)

	ud := difflib.UnifiedDiff{
		A:        linesA,
		B:        linesB,
		FromFile: ruleName + " (a)",
		ToFile:   ruleName + " (b)",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Errorf("diffing %s: %w", ruleName, err)
	}
	if text == "" {
		return nil
	}

	fd, err := diff.ParseFileDiff([]byte(text))
	if err != nil {
		// A malformed diff never blocks the CLI from showing the raw
		// text; the stat line is a nice-to-have, not load-bearing.
		fmt.Print(text)
		return nil
	}
	stat := fd.Stat()
	fmt.Printf("--- %s (+%d/-%d) ---\n%s", ruleName, stat.Added, stat.Deleted, text)
	return nil
}
