// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nlog configures Nova's process-wide *slog.Logger from
// NOVA_LOG_LEVEL / NOVA_LOG_FORMAT, the Go equivalent of the original
// Python nova.utils.logger module's get_logger/set_log_level pair, but
// using a single slog.LevelVar instead of walking every "nova.*" logger
// by name — Go's handler tree already shares one level reference.
package nlog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// levelCritical sits one level above slog.LevelError, the same relative
// position Python's logging.CRITICAL (50) holds above logging.ERROR (40).
const levelCritical slog.Level = slog.LevelError + 4

var (
	programLevel = new(slog.LevelVar)
	once         sync.Once
)

// Init configures the default *slog.Logger exactly once per process,
// reading NOVA_LOG_LEVEL (default INFO) and NOVA_LOG_FORMAT (default
// text, "json" selects slog.JSONHandler) from the environment. Calling
// Init more than once is a no-op, matching the Python original's
// "only configure if no handlers exist" guard against duplicate
// handlers.
func Init() {
	once.Do(func() {
		level, err := ParseLevel(os.Getenv("NOVA_LOG_LEVEL"))
		if err != nil {
			level = slog.LevelInfo
		}
		programLevel.Set(level)

		var handler slog.Handler
		opts := &slog.HandlerOptions{Level: programLevel}
		if strings.EqualFold(os.Getenv("NOVA_LOG_FORMAT"), "json") {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	})
}

// SetLevel updates the level of every logger obtained from this package
// (and the process default, since Init wires them to the same
// slog.LevelVar) at runtime, reproducing nova.utils.logger.set_log_level
// without needing to enumerate logger instances by name.
func SetLevel(level string) error {
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}
	programLevel.Set(parsed)
	return nil
}

// ParseLevel maps a NOVA_LOG_LEVEL string (DEBUG|INFO|WARNING|ERROR|CRITICAL,
// case-insensitive) to a slog.Level. An empty string returns INFO.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return levelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("nlog: invalid log level %q", level)
	}
}
