// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nova-sec/nova/internal/nova/metrics"
	"github.com/nova-sec/nova/internal/nova/ruleparse"
)

// RuleWatcher watches a directory of .nova files for changes and hot-reloads
// the Scanner's rule set on write, create, remove, and rename events. It
// debounces rapid successive writes to the same file (editors often emit
// several events per save) before re-parsing.
type RuleWatcher struct {
	mu      sync.Mutex
	dir     string
	scan    *Scanner
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	debounce    time.Duration
	pendingMu   sync.Mutex
	pending     map[string]time.Time
	onReload    func(errs []*ruleparse.ParseError)
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// WatcherOption configures a RuleWatcher.
type WatcherOption func(*RuleWatcher)

// WithDebounce overrides the default 250ms debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *RuleWatcher) { w.debounce = d }
}

// WithLogger overrides the default slog.Default() logger.
func WithReloadLogger(l *slog.Logger) WatcherOption {
	return func(w *RuleWatcher) { w.logger = l }
}

// WithReloadCallback registers a hook invoked after every reload attempt,
// receiving any per-file parse errors (nil slice means a clean reload).
func WithReloadCallback(fn func(errs []*ruleparse.ParseError)) WatcherOption {
	return func(w *RuleWatcher) { w.onReload = fn }
}

// NewRuleWatcher constructs a RuleWatcher over dir, reloading s whenever a
// .nova file under dir changes.
func NewRuleWatcher(dir string, s *Scanner, opts ...WatcherOption) (*RuleWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &RuleWatcher{
		dir:      dir,
		scan:     s,
		logger:   slog.Default(),
		watcher:  fw,
		debounce: 250 * time.Millisecond,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds dir to the watch list and begins the event loop in a
// goroutine. It does not block.
func (w *RuleWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("rule watcher started", slog.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

// Stop terminates the event loop and releases the underlying fsnotify
// watcher. It blocks until the loop has exited.
func (w *RuleWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *RuleWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("rule watcher error", slog.Any("error", err))
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *RuleWatcher) handleEvent(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".nova") {
		return
	}
	interesting := ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
	if !interesting {
		return
	}
	w.pendingMu.Lock()
	w.pending[ev.Name] = time.Now()
	w.pendingMu.Unlock()
}

func (w *RuleWatcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	now := time.Now()
	ready := false
	for _, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = true
			break
		}
	}
	if !ready {
		w.pendingMu.Unlock()
		return
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	w.reload()
}

func (w *RuleWatcher) reload() {
	rules, errs := ruleparse.ParseDirFlat(w.dir)
	for _, e := range errs {
		w.logger.Warn("rule parse error during reload",
			slog.String("file", e.File), slog.Int("line", e.Line), slog.String("message", e.Message))
	}

	w.mu.Lock()
	w.scan.SetRules(rules)
	w.mu.Unlock()

	metrics.RecordRuleReload(len(errs) == 0, len(rules))
	w.logger.Info("rule set reloaded", slog.String("dir", w.dir), slog.Int("rule_count", len(rules)))
	if w.onReload != nil {
		w.onReload(errs)
	}
}
