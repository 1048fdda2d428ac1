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
	"os"

	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/ruleparse"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse every rule in --rules and report malformed ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, errs := ruleparse.ParseDirFlat(rulesDir)
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			fmt.Printf("%d rule(s) parsed, %d error(s)\n", len(rules), len(errs))
			if len(errs) > 0 {
				return fmt.Errorf("%d rule file(s) failed to parse", len(errs))
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
