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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// badgerKeyPrefix namespaces Nova's semantic-pattern vectors within a
// BadgerDB instance that may also be used for other purposes, versioned so
// a future storage-format change doesn't collide with old entries.
const badgerKeyPrefix = "nova/semantic/emb/v1/"

// defaultTTL is long enough to survive weekends and short deployments
// without growing the database unboundedly.
const defaultTTL = 7 * 24 * time.Hour

var errCacheMiss = errors.New("cache miss")

// BadgerStore implements Store against an already-open BadgerDB instance.
// The caller owns the DB's lifecycle (open it at startup, close it at
// shutdown); BadgerStore never closes it.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerStore wraps db. Pass ttl <= 0 to use the 7-day default.
func NewBadgerStore(db *badger.DB, ttl time.Duration, logger *slog.Logger) *BadgerStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, ttl: ttl, logger: logger}
}

// LoadEmbeddings returns (nil, nil) on a cache miss (key absent or expired)
// and (nil, err) only on a genuine storage or decode failure.
func (s *BadgerStore) LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := []byte(badgerKeyPrefix + corpusHash)

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("semantic cache: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("semantic cache load: %w", err)
	}

	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("semantic cache decode: %w", err)
	}
	s.logger.Debug("semantic cache: hit", slog.String("hash", shortHash(corpusHash)), slog.Int("vector_count", len(vectors)))
	return vectors, nil
}

// SaveEmbeddings gob-encodes vectors and writes them with the store's TTL.
func (s *BadgerStore) SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("semantic cache encode: %w", err)
	}

	key := []byte(badgerKeyPrefix + corpusHash)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

// corpusItem is one (cache key, pattern text) pair to fold into the
// corpus hash.
type corpusItem struct{ key, text string }

// computeCorpusHash hashes every (key, text) pair plus the model name, so
// any change to a pattern's text, its owning var/rule name, or the
// embedding model invalidates the cache automatically.
func computeCorpusHash(items []corpusItem, model string) string {
	sorted := make([]corpusItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })

	h := sha256.New()
	for _, it := range sorted {
		fmt.Fprintf(h, "%s\t%s\n", it.key, it.text)
	}
	fmt.Fprintf(h, "model=%s\n", model)
	return hex.EncodeToString(h.Sum(nil))
}
