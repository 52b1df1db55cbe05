// Copyright 2026 The Authzd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChainLogger appends entries to the per-tenant hash chain. Appends for
// one tenant are serialized so previous_hash links stay consistent;
// different tenants append in parallel. Append errors are returned for
// the caller to report operationally, but the caller must never let them
// alter an already-computed decision.
type ChainLogger struct {
	store   Store
	timeout time.Duration

	mu    sync.Mutex
	tails map[string]*tenantTail
}

type tenantTail struct {
	mu sync.Mutex
	// hash of the newest entry; loaded lazily from the store.
	hash   string
	loaded bool
}

// NewChainLogger creates a chain logger over the store. timeout bounds
// each append's store call.
func NewChainLogger(store Store, timeout time.Duration) *ChainLogger {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ChainLogger{
		store:   store,
		timeout: timeout,
		tails:   make(map[string]*tenantTail),
	}
}

// Append populates the entry's ID, timestamp and hashes, links it to the
// tenant's chain, and persists it.
func (l *ChainLogger) Append(ctx context.Context, e *Entry) error {
	if e.TenantID == "" {
		return fmt.Errorf("audit entry missing tenant_id")
	}
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating entry id: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	tail := l.tail(e.TenantID)
	tail.mu.Lock()
	defer tail.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if !tail.loaded {
		hash, err := l.store.LastHash(ctx, e.TenantID)
		if err != nil {
			return fmt.Errorf("loading chain tail: %w", err)
		}
		tail.hash = hash
		tail.loaded = true
	}

	e.PreviousHash = tail.hash
	e.RequestHash = ComputeHash(e)

	if err := l.store.Append(ctx, e); err != nil {
		// The tail stays as-is: the entry was not persisted.
		return fmt.Errorf("appending audit entry: %w", err)
	}
	tail.hash = e.RequestHash
	return nil
}

func (l *ChainLogger) tail(tenantID string) *tenantTail {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tails[tenantID]
	if !ok {
		t = &tenantTail{}
		l.tails[tenantID] = t
	}
	return t
}

// Store exposes the read interface for the compliance plane.
func (l *ChainLogger) Store() Store {
	return l.store
}
