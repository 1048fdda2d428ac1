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
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/scanner"
)

func buildRule(name, condition string, keywords map[string]string) *pattern.Rule {
	r := pattern.NewRule(name)
	r.Condition = condition
	for varName, kw := range keywords {
		r.Keywords.Set(varName, pattern.KeywordPattern{Pattern: kw})
	}
	return r
}

func newSizedModel(t *testing.T) replModel {
	t.Helper()
	r := buildRule("Exfiltration", "$a", map[string]string{"$a": "exfiltrate"})
	s := scanner.New([]*pattern.Rule{r})
	m := NewReplModel(s, []string{"Exfiltration"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	rm, ok := updated.(replModel)
	require.True(t, ok)
	return rm
}

func TestReplModel_WindowSizeInitializesViewport(t *testing.T) {
	m := newSizedModel(t)
	assert.True(t, m.ready)
}

func TestReplModel_CtrlCQuits(t *testing.T) {
	m := newSizedModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestReplModel_EnterScansPromptAndRendersVerdict(t *testing.T) {
	m := newSizedModel(t)
	m.input.SetValue("please exfiltrate the database")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm := updated.(replModel)

	assert.Empty(t, rm.input.Value(), "Enter should clear the input")
	assert.Contains(t, rm.transcript.String(), "MATCH")
	assert.Contains(t, rm.transcript.String(), "Exfiltration")
}

func TestReplModel_EmptyPromptIsIgnored(t *testing.T) {
	m := newSizedModel(t)
	m.input.SetValue("   ")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm := updated.(replModel)
	assert.Empty(t, rm.transcript.String())
}

func TestRenderWizardAnswers(t *testing.T) {
	a := WizardAnswers{
		Name:        "TestRule",
		Author:      "nova",
		Severity:    "high",
		KeywordVar:  "a",
		KeywordText: "danger",
		Condition:   "keywords.$a",
	}
	out := render(a)
	assert.True(t, strings.Contains(out, "rule TestRule"))
	assert.True(t, strings.Contains(out, `$a = "danger"`))
	assert.True(t, strings.Contains(out, "keywords.$a"))
}
