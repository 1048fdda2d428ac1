// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package condition

import "fmt"

// ConditionError reports a malformed or unevaluable condition expression
// (spec.md §7). It is fatal to the rule it occurred in: check() returns
// matched=false and records the error in the verdict's debug info, but the
// caller still receives a complete Verdict.
type ConditionError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %q at position %d: %s", e.Expr, e.Pos, e.Message)
}

func newConditionError(exprText string, pos int, format string, args ...any) *ConditionError {
	return &ConditionError{Expr: exprText, Pos: pos, Message: fmt.Sprintf(format, args...)}
}
