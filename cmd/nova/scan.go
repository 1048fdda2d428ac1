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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/scanner"
)

func newScanCmd() *cobra.Command {
	var file string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "scan [prompt]",
		Short: "Scan one or more prompts against the loaded rules",
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

			var results []scanner.Result
			switch {
			case file != "":
				results, err = s.ScanFile(cmd.Context(), file)
				if err != nil {
					return err
				}
			case len(args) > 0:
				results = []scanner.Result{s.ScanString(cmd.Context(), args[0])}
			default:
				return fmt.Errorf("provide a prompt argument or --file")
			}

			if pretty || (file == "" && isatty.IsTerminal(os.Stdout.Fd())) {
				printPretty(results)
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "scan one prompt per line from a file instead of an argument")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "force colorized terminal output even when piped")
	return cmd
}

var (
	matchColor   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	noMatchColor = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
)

// printPretty reproduces the Python original's novatester.py colorized
// per-rule summary (tests/novatester.py), using lipgloss styles instead
// of raw ANSI escape constants.
func printPretty(results []scanner.Result) {
	for _, res := range results {
		fmt.Printf("scan %s (%s):\n", res.ScanID, res.InputID)
		for name, v := range res.Verdicts {
			if v.Matched {
				fmt.Println("  " + matchColor.Render(fmt.Sprintf("MATCH     %s", name)))
			} else {
				fmt.Println("  " + noMatchColor.Render(fmt.Sprintf("no match  %s", name)))
			}
		}
	}
}
