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

// Package audit records every authorization decision in an append-only,
// tamper-evident log. Entries form one hash chain per tenant: each entry
// carries a SHA-256 content hash over its material fields plus the hash
// of the tenant's previous entry, so both single-field edits and
// reordering are detectable by recomputation. Per-tenant (rather than
// global) scoping keeps tenants isolated and lets appends proceed in
// parallel across tenants.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// ErrBrokenChain is returned by VerifyChain when recomputation disagrees
// with stored hashes or links.
var ErrBrokenChain = errors.New("audit chain integrity violation")

// Entry is one immutable audit record. Entries are never updated or
// deleted once written.
type Entry struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	PrincipalID  string         `json:"principal_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Allowed      bool           `json:"allowed"`
	Reason       string         `json:"reason"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestHash  string         `json:"request_hash"`
	PreviousHash string         `json:"previous_hash"`
}

// hashPayload fixes the material fields and their order for hashing.
// encoding/json emits struct fields in declaration order and sorts map
// keys, so marshaling is deterministic.
type hashPayload struct {
	TenantID     string         `json:"tenant_id"`
	PrincipalID  string         `json:"principal_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Allowed      bool           `json:"allowed"`
	Reason       string         `json:"reason"`
	Timestamp    string         `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ComputeHash returns the hex SHA-256 content hash of the entry's
// material fields. Any single-field tamper changes the result.
func ComputeHash(e *Entry) string {
	payload := hashPayload{
		TenantID:     e.TenantID,
		PrincipalID:  e.PrincipalID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Allowed:      e.Allowed,
		Reason:       e.Reason,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		Metadata:     e.Metadata,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Store persists audit entries and serves the read interface consumed by
// the compliance-reporting plane. Implementations expose no update or
// delete operation.
type Store interface {
	// Append persists a fully populated entry (hashes included).
	Append(ctx context.Context, e *Entry) error

	// LastHash returns the request hash of the tenant's newest entry,
	// or "" when the tenant's chain is empty.
	LastHash(ctx context.Context, tenantID string) (string, error)

	// RecentByTenant returns up to limit entries of the tenant, oldest
	// first, so chains verify in append order.
	RecentByTenant(ctx context.Context, tenantID string, limit int) ([]Entry, error)

	RecentByPrincipal(ctx context.Context, tenantID, principalID string, limit int) ([]Entry, error)

	RecentByResource(ctx context.Context, tenantID, resourceType, resourceID string, limit int) ([]Entry, error)

	// DecisionCounts returns the allowed and denied totals of a tenant.
	DecisionCounts(ctx context.Context, tenantID string) (allowed, denied int64, err error)
}

// VerifyChain recomputes every hash and link of entries (append order
// expected). It returns the index of the first bad entry alongside
// ErrBrokenChain.
func VerifyChain(entries []Entry) (int, error) {
	prev := ""
	for i := range entries {
		e := &entries[i]
		if i > 0 && e.PreviousHash != prev {
			return i, ErrBrokenChain
		}
		if ComputeHash(e) != e.RequestHash {
			return i, ErrBrokenChain
		}
		prev = e.RequestHash
	}
	return -1, nil
}
