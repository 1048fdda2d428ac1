// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ruleparse

import "fmt"

// ParseError is a fatal diagnostic for a single malformed rule (spec.md §7).
// A ParseError aborts the rule it occurred in; ParseFile continues to the
// next rule block when possible, and ParseDir continues to the next file.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	file := e.File
	if file == "" {
		file = "<rule>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Line, e.Column, e.Message)
}

func newParseError(file string, line, col int, format string, args ...any) *ParseError {
	return &ParseError{File: file, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}
