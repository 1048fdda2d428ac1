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
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/ruleparse"
	"github.com/nova-sec/nova/internal/nova/scanner"
)

func newWatchCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Hot-reload --rules on change, or stream stdin prompts to a running `nova serve`",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				return watchRemote(remote)
			}
			return watchLocal(cmd)
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "stream stdin prompts to a running nova serve's /v1/nova/stream instead of watching locally")
	return cmd
}

// watchLocal hot-reloads the --rules directory in place, logging every
// reload attempt, until interrupted.
func watchLocal(cmd *cobra.Command) error {
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
	w, err := scanner.NewRuleWatcher(rulesDir, s, scanner.WithReloadCallback(func(errs []*ruleparse.ParseError) {
		if len(errs) == 0 {
			slog.Info("rules reloaded", slog.String("dir", rulesDir))
			return
		}
		for _, e := range errs {
			slog.Warn("rule reload error", slog.String("error", e.Error()))
		}
	}))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

// watchRemote dials addr's /v1/nova/stream and relays stdin lines as scan
// prompts, printing each pushed-back scanner.Result as it arrives.
func watchRemote(addr string) error {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr + "/v1/nova/stream"
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		for {
			var result scanner.Result
			if err := conn.ReadJSON(&result); err != nil {
				return
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
	}
	return sc.Err()
}
