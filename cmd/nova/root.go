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
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/nlog"
)

// rulesDir is the global --rules flag shared by every subcommand that
// needs a rule set.
var rulesDir string

// NewRootCmd creates the root "nova" command and wires every subcommand
// under it, in the same NewXCmd()-returns-*cobra.Command shape
// holomush's cmd/holomush/root.go uses for its own CLI surface.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nova",
		Short: "Nova — a prompt-pattern rule engine",
		Long: `Nova matches prompts against declarative rules combining keyword,
fuzzy, semantic, and LLM-judged predicates under a boolean condition.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			nlog.Init()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&rulesDir, "rules", "./rules", "directory of .nova rule files")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newTUICmd())
	cmd.AddCommand(newDiffCmd())

	return cmd
}
