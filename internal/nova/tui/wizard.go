// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides nova's two interactive surfaces: a bubbletea
// "try a prompt against a rule set" REPL (nova tui) and a huh-driven
// rule-authoring wizard (nova rules new) that emits a .nova file.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// WizardAnswers collects the rule-authoring wizard's form fields before
// they're rendered into .nova source.
type WizardAnswers struct {
	Name        string
	Author      string
	Severity    string
	KeywordVar  string
	KeywordText string
	Condition   string
}

// RunWizard walks the user through authoring a single-keyword-predicate
// rule and writes the result to path. It's deliberately narrower than
// the full Nova grammar (no fuzzy/semantic/llm sections) — a starting
// point meant to be hand-edited afterward, not a full rule-set editor.
func RunWizard(path string) error {
	var a WizardAnswers

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rule name").
				Value(&a.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("rule name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Author").
				Value(&a.Author),
			huh.NewSelect[string]().
				Title("Severity").
				Options(
					huh.NewOption("low", "low"),
					huh.NewOption("medium", "medium"),
					huh.NewOption("high", "high"),
					huh.NewOption("critical", "critical"),
				).
				Value(&a.Severity),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Keyword variable name (without $)").
				Value(&a.KeywordVar).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a keyword variable name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Keyword text to match").
				Value(&a.KeywordText),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard cancelled: %w", err)
	}

	a.Condition = fmt.Sprintf("keywords.$%s", a.KeywordVar)
	return os.WriteFile(path, []byte(render(a)), 0o644)
}

func render(a WizardAnswers) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule %s\n{\n", a.Name)
	b.WriteString("    meta:\n")
	fmt.Fprintf(&b, "        author = %q\n", a.Author)
	fmt.Fprintf(&b, "        severity = %q\n\n", a.Severity)
	b.WriteString("    keywords:\n")
	fmt.Fprintf(&b, "        $%s = %q\n\n", a.KeywordVar, a.KeywordText)
	b.WriteString("    condition:\n")
	fmt.Fprintf(&b, "        %s\n", a.Condition)
	b.WriteString("}\n")
	return b.String()
}
