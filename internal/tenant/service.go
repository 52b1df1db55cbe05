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

package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/observability/logger"
)

// Service reads tenant configuration through the hours-scale cache
// class. Not-found is cached too: unknown tenants are a hot path for
// misconfigured callers.
type Service struct {
	repo      Repository
	cache     cache.Cache
	tenantTTL time.Duration
}

// cachedTenant distinguishes "known absent" from a cache miss.
type cachedTenant struct {
	Found  bool    `json:"found"`
	Tenant *Tenant `json:"tenant,omitempty"`
}

// NewService creates a tenant read service. c may be nil to bypass
// caching.
func NewService(repo Repository, c cache.Cache, tenantTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, tenantTTL: tenantTTL}
}

// Get returns the tenant, ErrTenantNotFound, or a storage error.
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	key := cache.TenantKey(id)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var ct cachedTenant
			if err := json.Unmarshal(raw, &ct); err == nil {
				if !ct.Found {
					return nil, ErrTenantNotFound
				}
				return ct.Tenant, nil
			}
			_ = s.cache.Delete(ctx, key)
		}
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil && err != ErrTenantNotFound {
		return nil, fmt.Errorf("loading tenant %s: %w", id, err)
	}

	if s.cache != nil {
		ct := cachedTenant{Found: err == nil, Tenant: t}
		if raw, merr := json.Marshal(ct); merr == nil {
			if cerr := s.cache.Set(ctx, key, raw, s.tenantTTL); cerr != nil {
				slog.WarnContext(ctx, "tenant cache write failed",
					logger.Component("tenant"), logger.CacheKey(key), logger.Error(cerr))
			}
		}
	}

	if err != nil {
		return nil, ErrTenantNotFound
	}
	return t, nil
}
