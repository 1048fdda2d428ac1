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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nova-sec/nova/internal/nova/scanner"
	"github.com/nova-sec/nova/internal/nova/server"
	"github.com/nova-sec/nova/internal/nova/sink"
	"github.com/nova-sec/nova/internal/nova/telemetry"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP (POST /v1/nova/scan, GET /v1/nova/stream)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(rulesDir)
			if err != nil {
				return err
			}
			secrets, err := loadSecrets()
			if err != nil {
				return err
			}
			defer secrets.Close()

			shutdownTelemetry, err := telemetry.Init(cmd.Context(), "nova")
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer shutdownTelemetry(context.Background())

			verdictSink, sinkEnabled, err := sink.NewFromEnv(slog.Default())
			if err != nil {
				return fmt.Errorf("initializing verdict sink: %w", err)
			}
			if sinkEnabled {
				defer verdictSink.Close(context.Background())
			}

			s := scanner.New(rules, matcherOptions(secrets, slog.Default())...)
			handlers := server.NewHandlers(s, slog.Default())
			if sinkEnabled {
				handlers.WithSink(verdictSink)
			}
			router := server.NewRouter(handlers)

			addr := fmt.Sprintf(":%d", port)
			slog.Info("nova serve starting", slog.String("address", addr), slog.Int("rule_count", len(rules)))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-quit
				slog.Info("nova serve shutting down")
				os.Exit(0)
			}()

			return router.Run(addr)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	return cmd
}
