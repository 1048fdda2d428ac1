// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rulesource provides alternatives to a local directory for feeding
// .nova rule text to the parser, for deployments that keep their rule packs
// in object storage rather than on a scanned host's filesystem.
package rulesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/ruleparse"
)

// GCSSource lists and reads .nova objects out of a single GCS bucket/prefix,
// presenting them to the parser exactly as a local directory would.
type GCSSource struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSSource wraps an already-authenticated storage.Client. Callers own
// the client's lifecycle (Close it when done); GCSSource never closes it.
func NewGCSSource(client *storage.Client, bucket, prefix string) *GCSSource {
	return &GCSSource{client: client, bucket: bucket, prefix: prefix, logger: slog.Default()}
}

// WithLogger overrides the default slog.Default() logger, returning the
// receiver for chaining.
func (g *GCSSource) WithLogger(l *slog.Logger) *GCSSource {
	g.logger = l
	return g
}

// Load lists every object under bucket/prefix ending in ".nova", reads each,
// and parses them into rules. Per-file parse errors are collected rather
// than aborting the whole load, matching ruleparse.ParseDir's isolation
// guarantee for local directories.
func (g *GCSSource) Load(ctx context.Context) ([]*pattern.Rule, []*ruleparse.ParseError, error) {
	bucket := g.client.Bucket(g.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})

	var allRules []*pattern.Rule
	var allErrs []*ruleparse.ParseError

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("rulesource: listing gs://%s/%s: %w", g.bucket, g.prefix, err)
		}
		if !strings.HasSuffix(attrs.Name, ".nova") {
			continue
		}

		src, err := g.readObject(ctx, bucket, attrs.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("rulesource: reading gs://%s/%s: %w", g.bucket, attrs.Name, err)
		}

		rules, errs := ruleparse.ParseFile(attrs.Name, src)
		allRules = append(allRules, rules...)
		allErrs = append(allErrs, errs...)
	}

	g.logger.Info("loaded rules from gcs",
		slog.String("bucket", g.bucket), slog.String("prefix", g.prefix),
		slog.Int("rule_count", len(allRules)), slog.Int("error_count", len(allErrs)))

	return allRules, allErrs, nil
}

func (g *GCSSource) readObject(ctx context.Context, bucket *storage.BucketHandle, name string) (string, error) {
	r, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
