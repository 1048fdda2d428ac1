// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nova-sec/nova/internal/nova/scanner"
)

var (
	matchedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	unmatchedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d6dae0"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
)

// replModel is the bubbletea Model for `nova tui`: a single text input
// that scans each submitted line against every loaded rule and appends
// a rendered verdict to a scrollback viewport, in the style of
// codenerd's chatModel (textinput + viewport + spinner).
type replModel struct {
	input      textinput.Model
	viewport   viewport.Model
	scanner    *scanner.Scanner
	ruleNames  []string
	transcript strings.Builder
	ready      bool
}

// NewReplModel builds the interactive REPL model over an already-built
// Scanner, so the caller controls which rules it runs (a single rule
// file, a whole directory, hot-reloaded or not).
func NewReplModel(s *scanner.Scanner, ruleNames []string) tea.Model {
	ti := textinput.New()
	ti.Placeholder = "type a prompt to test against the loaded rules..."
	ti.Focus()
	ti.CharLimit = 2000

	return replModel{
		input:     ti,
		scanner:   s,
		ruleNames: ruleNames,
	}
}

func (m replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.input.View())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			prompt := strings.TrimSpace(m.input.Value())
			if prompt == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.appendResult(prompt)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) appendResult(prompt string) {
	result := m.scanner.ScanString(context.Background(), prompt)
	var b strings.Builder
	fmt.Fprintf(&b, "> %s\n", prompt)
	for _, name := range m.ruleNames {
		v, ok := result.Verdicts[name]
		if !ok {
			continue
		}
		if v.Matched {
			b.WriteString(matchedStyle.Render(fmt.Sprintf("  [MATCH]   %s", name)) + "\n")
		} else {
			b.WriteString(unmatchedStyle.Render(fmt.Sprintf("  [no match] %s", name)) + "\n")
		}
	}
	m.transcript.WriteString(b.String())
	m.viewport.SetContent(m.transcript.String())
	m.viewport.GotoBottom()
}

func (m replModel) headerView() string {
	return headerStyle.Render(fmt.Sprintf("nova tui — %d rule(s) loaded", len(m.ruleNames)))
}

func (m replModel) View() string {
	if !m.ready {
		return "initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.input.View())
}
