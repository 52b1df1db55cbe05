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
	"sync"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps audit entries in memory, append order preserved
// per tenant. Used in tests and single-node development setups.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry // tenantID -> entries, oldest first
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.TenantID] = append(s.entries[e.TenantID], *e)
	return nil
}

func (s *InMemoryStore) LastHash(_ context.Context, tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[tenantID]
	if len(list) == 0 {
		return "", nil
	}
	return list[len(list)-1].RequestHash, nil
}

func (s *InMemoryStore) RecentByTenant(_ context.Context, tenantID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tailCopy(s.entries[tenantID], limit), nil
}

func (s *InMemoryStore) RecentByPrincipal(_ context.Context, tenantID, principalID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterTail(s.entries[tenantID], limit, func(e *Entry) bool {
		return e.PrincipalID == principalID
	}), nil
}

func (s *InMemoryStore) RecentByResource(_ context.Context, tenantID, resourceType, resourceID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterTail(s.entries[tenantID], limit, func(e *Entry) bool {
		return e.ResourceType == resourceType && e.ResourceID == resourceID
	}), nil
}

func (s *InMemoryStore) DecisionCounts(_ context.Context, tenantID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var allowed, denied int64
	for i := range s.entries[tenantID] {
		if s.entries[tenantID][i].Allowed {
			allowed++
		} else {
			denied++
		}
	}
	return allowed, denied, nil
}

func tailCopy(list []Entry, limit int) []Entry {
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Entry, limit)
	copy(out, list[len(list)-limit:])
	return out
}

func filterTail(list []Entry, limit int, keep func(*Entry) bool) []Entry {
	var matches []Entry
	for i := range list {
		if keep(&list[i]) {
			matches = append(matches, list[i])
		}
	}
	return tailCopy(matches, limit)
}
