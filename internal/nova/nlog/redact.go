// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlog

import "regexp"

// redactionPattern pairs a compiled regex with a replacement label so the
// log reader knows what class of secret was removed without seeing its
// value.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns is ordered most-specific-first: sk-ant-api03- must be
// checked before the bare sk- OpenAI pattern, or an Anthropic key would
// get only partially redacted by the OpenAI rule.
var redactionPatterns = []redactionPattern{
	{regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`), "key=[REDACTED]"},
	{regexp.MustCompile(`password=[^\s&]{3,}`), "password=[REDACTED]"},
	{regexp.MustCompile(`(postgres|mysql|mongodb)://[^\s]+@`), "${1}://[REDACTED]@"},
}

// Redact strips known secret formats (provider API keys, bearer tokens,
// connection-string credentials) out of a string before it's logged.
// langchaingo provider errors sometimes echo the outgoing request,
// headers included, so every llmjudge log line is run through this
// before it reaches the handler.
//
// Pattern-based only: a custom, non-standard secret format won't be
// caught. Not a substitute for keeping secrets out of error strings in
// the first place, just a backstop for providers that don't cooperate.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}
