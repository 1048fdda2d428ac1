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
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/scanner"
	"github.com/nova-sec/nova/internal/nova/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactively try prompts against --rules",
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
			names := make([]string, len(rules))
			for i, r := range rules {
				names[i] = r.Name
			}

			p := tea.NewProgram(tui.NewReplModel(s, names), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
