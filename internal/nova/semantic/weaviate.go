// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// weaviateClassName is the fixed Weaviate class every $var pattern vector
// is stored under. One class per Nova deployment is enough: the rule name
// and var name are stored as properties rather than split across classes.
const weaviateClassName = "NovaSemanticPattern"

// WeaviateEvaluator implements evaluator.Semantic against a Weaviate
// instance instead of the local BadgerStore cache: pattern vectors are
// objects in a Weaviate class, and a prompt is scored by nearVector
// search rather than an in-process cosine comparison. Selected in place
// of Evaluator when NOVA_SEMANTIC_BACKEND=weaviate.
type WeaviateEvaluator struct {
	client *weaviate.Client
	httpc  *http.Client
	embURL string
	model  string
	logger *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// NewWeaviateEvaluator builds a WeaviateEvaluator against host (e.g.
// "localhost:8080"), reusing the same EMBEDDING_SERVICE_URL /
// EMBEDDING_MODEL environment variables the Ollama-backed Evaluator reads,
// since both backends embed text the same way and only differ in where
// the resulting vectors are compared.
func NewWeaviateEvaluator(host, scheme string, logger *slog.Logger) (*WeaviateEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("new weaviate client: %w", err)
	}

	embURL := os.Getenv("EMBEDDING_SERVICE_URL")
	if embURL == "" {
		embURL = "http://host.containers.internal:11434/api/embed"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text-v2-moe"
	}

	return &WeaviateEvaluator{
		client: client,
		httpc:  &http.Client{},
		embURL: embURL,
		model:  model,
		logger: logger,
	}, nil
}

// ensureClass creates the NovaSemanticPattern class on first use. A class
// that already exists from a prior run is left alone — Weaviate's
// ClassCreator errors on a duplicate, which ensureClass treats as success.
func (e *WeaviateEvaluator) ensureClass(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensured {
		return nil
	}

	exists, err := e.client.Schema().ClassExistenceChecker().WithClassName(weaviateClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("check weaviate class: %w", err)
	}
	if !exists {
		class := &models.Class{
			Class:      weaviateClassName,
			Vectorizer: "none",
			Properties: []*models.Property{
				{Name: "ruleVar", DataType: []string{"text"}},
				{Name: "patternText", DataType: []string{"text"}},
			},
		}
		if err := e.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create weaviate class: %w", err)
		}
	}
	e.ensured = true
	return nil
}

// Precompile embeds every $var's pattern text in rule.Semantics and
// upserts it as a Weaviate object, satisfying evaluator.RulePrecompiler.
func (e *WeaviateEvaluator) Precompile(rule *pattern.Rule) error {
	if rule.Semantics.Len() == 0 {
		return nil
	}
	ctx := context.Background()
	if err := e.ensureClass(ctx); err != nil {
		return err
	}

	var firstErr error
	rule.Semantics.Range(func(name string, p pattern.SemanticPattern) bool {
		vec, err := ollamaEmbed(ctx, e.httpc, e.embURL, e.model, p.Pattern)
		if err != nil {
			e.logger.Warn("weaviate semantic: embed failed", slog.String("var", name), slog.Any("error", err))
			return true
		}
		unit := unitNormalize(vec)
		if unit == nil {
			return true
		}

		_, err = e.client.Data().Creator().
			WithClassName(weaviateClassName).
			WithID(objectID(rule.Name, name)).
			WithProperties(map[string]interface{}{
				"ruleVar":     rule.Name + "." + name,
				"patternText": p.Pattern,
			}).
			WithVector(unit).
			Do(ctx)
		if err != nil {
			e.logger.Warn("weaviate semantic: upsert failed", slog.String("var", name), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	return firstErr
}

// Evaluate embeds prompt and runs a nearVector search scoped to this
// rule's var by filtering on the ruleVar property, since Weaviate's
// nearVector has no notion of "compare against exactly this one object"
// the way the in-memory Evaluator's cosine check does.
func (e *WeaviateEvaluator) Evaluate(ctx context.Context, varName string, p pattern.SemanticPattern, prompt string) (bool, float64, error) {
	ruleVar := varName
	vec, err := ollamaEmbed(ctx, e.httpc, e.embURL, e.model, prompt)
	if err != nil {
		return false, 0, fmt.Errorf("embed prompt: %w", err)
	}
	unit := unitNormalize(vec)
	if unit == nil {
		return false, 0, nil
	}

	nearVector := e.client.GraphQL().NearVectorArgBuilder().WithVector(unit)
	where := filters.Where().
		WithPath([]string{"ruleVar"}).
		WithOperator(filters.Equal).
		WithValueString(ruleVar)

	result, err := e.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}}).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("weaviate nearVector query: %w", err)
	}
	if len(result.Errors) > 0 {
		return false, 0, fmt.Errorf("weaviate nearVector query: %s", result.Errors[0].Message)
	}

	certainty, ok := extractCertainty(result)
	if !ok {
		return false, 0, nil
	}
	return certainty >= p.Threshold, certainty, nil
}

func objectID(ruleName, varName string) string {
	return deterministicUUID(ruleName + "." + varName)
}

// deterministicUUID maps a (ruleName, varName) key to a stable v5 UUID, so
// re-running Precompile after a restart upserts the same Weaviate object
// instead of accumulating a duplicate per process lifetime.
func deterministicUUID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// extractCertainty digs result["Get"][weaviateClassName][0]["_additional"]["certainty"]
// out of a GraphQL Get response, returning false if the shape doesn't
// match (no objects yet, or a class/field mismatch).
func extractCertainty(result *models.GraphQLResponse) (float64, bool) {
	get, ok := result.Data["Get"]
	if !ok {
		return 0, false
	}
	rows, ok := get[weaviateClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, false
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, false
	}
	additional, ok := row["_additional"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	certainty, ok := additional["certainty"].(float64)
	return certainty, ok
}
