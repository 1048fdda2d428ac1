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

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// ParseDir parses every "*.nova" file directly under dir (non-recursive,
// matching how cmd/trace walks a single rules directory) and returns rules
// grouped by source file. A file that fails to read or contains malformed
// rule blocks never stops its siblings from parsing: errors for that file
// are appended to the returned slice and the walk continues.
func ParseDir(dir string) (map[string][]*pattern.Rule, []*ParseError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []*ParseError{newParseError(dir, 0, 0, "reading rule directory: %v", err)}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".nova" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	rules := make(map[string][]*pattern.Rule, len(names))
	var allErrs []*ParseError
	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		if err != nil {
			allErrs = append(allErrs, newParseError(path, 0, 0, "reading rule file: %v", err))
			continue
		}
		fileRules, errs := ParseFile(path, string(src))
		if len(fileRules) > 0 {
			rules[path] = fileRules
		}
		allErrs = append(allErrs, errs...)
	}
	return rules, allErrs
}

// ParseDirFlat is ParseDir with every file's rules flattened into one slice,
// for callers (scanner.Scanner, the "nova validate" command) that don't
// care which file a rule came from.
func ParseDirFlat(dir string) ([]*pattern.Rule, []*ParseError) {
	byFile, errs := ParseDir(dir)
	var all []*pattern.Rule
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		all = append(all, byFile[f]...)
	}
	return all, errs
}

// ErrorsToError joins a batch of ParseErrors into a single error, or
// returns nil when errs is empty. Useful for callers that want a plain
// `error` return from a batch parse.
func ErrorsToError(errs []*ParseError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d rule parse error(s):\n%s", len(errs), joinLines(msgs))
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += "  " + l
	}
	return out
}
