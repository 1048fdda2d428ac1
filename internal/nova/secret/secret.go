// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secret locks provider API keys and embedding-service tokens in
// guarded, non-swappable memory for the lifetime of the process, rather
// than reading bare strings out of os.Getenv and leaving the credential
// sitting in ordinary (swappable, GC-movable, core-dumpable) Go memory
// once loaded.
package secret

import (
	"fmt"
	"os"
	"sync"

	"github.com/awnumar/memguard"
)

// Well-known environment variable names for the LLM judge's provider
// clients and the semantic evaluator's embedding-service configuration.
const (
	AnthropicAPIKey = "ANTHROPIC_API_KEY"
	OpenAIAPIKey    = "OPENAI_API_KEY"
	GeminiAPIKey    = "GEMINI_API_KEY"
	EmbeddingToken  = "EMBEDDING_SERVICE_TOKEN"
)

// Store holds zero or more named credentials, each locked in its own
// memguard.LockedBuffer. A Store with no loaded credentials is valid —
// evaluators that need one simply fail with ProviderAuthFailure.
type Store struct {
	mu     sync.RWMutex
	locked map[string]*memguard.LockedBuffer
}

// New returns an empty Store.
func New() *Store {
	return &Store{locked: make(map[string]*memguard.LockedBuffer)}
}

// LoadFromEnv reads each named environment variable, locks its value in
// guarded memory, and clears the variable from the process environment
// so it doesn't linger in os.Environ() or get inherited by subprocesses.
// Names with no value set are skipped, not an error — callers discover
// missing credentials when an evaluator actually needs one.
func (s *Store) LoadFromEnv(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		buf := memguard.NewBufferFromBytes([]byte(val))
		if buf == nil {
			return fmt.Errorf("secret: failed to lock %s in guarded memory", name)
		}
		os.Unsetenv(name)
		s.locked[name] = buf
	}
	return nil
}

// Set locks a credential obtained some other way (a flag, a secrets
// file) under name, wiping the plaintext out of the caller's buf.
func (s *Store) Set(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[name] = memguard.NewBufferFromBytes(value)
}

// View hands fn a read-only, byte-slice view of the credential named
// name for the duration of the call; the view is only valid inside fn.
// Returns false if no credential by that name was loaded.
func (s *Store) View(name string, fn func(value []byte)) bool {
	s.mu.RLock()
	buf, ok := s.locked[name]
	s.mu.RUnlock()
	if !ok || buf.IsDestroyed() {
		return false
	}
	fn(buf.Bytes())
	return true
}

// Has reports whether a credential named name was loaded.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.locked[name]
	return ok && !buf.IsDestroyed()
}

// Close destroys every locked buffer, zeroing and unlocking their
// backing memory. Call once at process shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buf := range s.locked {
		buf.Destroy()
	}
	s.locked = make(map[string]*memguard.LockedBuffer)
}
