// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/ruleparse"
	"github.com/nova-sec/nova/internal/nova/tui"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules [query]",
		Short: "List rules in --rules, or typo-tolerant search with a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, errs := ruleparse.ParseDirFlat(rulesDir)
			for _, e := range errs {
				fmt.Println("warning:", e.Error())
			}

			if len(args) == 0 {
				for _, r := range rules {
					printRuleSummary(r)
				}
				return nil
			}

			names := make([]string, len(rules))
			byName := make(map[string]*pattern.Rule, len(rules))
			for i, r := range rules {
				names[i] = r.Name
				byName[r.Name] = r
			}
			for _, m := range fuzzy.Find(args[0], names) {
				printRuleSummary(byName[m.Str])
			}
			return nil
		},
	}

	cmd.AddCommand(newRulesNewCmd())
	return cmd
}

func printRuleSummary(r *pattern.Rule) {
	meta := r.MetaMap()
	fmt.Printf("%s\t%s:%d\tseverity=%s\n", r.Name, filepath.Base(r.SourceFile), r.SourceLine, meta["severity"])
}

func newRulesNewCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Walk through an interactive wizard and write a starter .nova rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunWizard(out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "new-rule.nova", "path to write the generated rule to")
	return cmd
}
