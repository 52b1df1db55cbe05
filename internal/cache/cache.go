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

// Package cache provides the tenant-namespaced decision cache. Keys embed
// the tenant id as a literal segment, so cross-tenant collisions are
// structurally impossible and bulk invalidation can target a tenant by
// prefix pattern. The cache is a best-effort accelerator: callers must
// treat any backend failure as a miss and compute fresh.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Cache abstracts a key-value cache with TTL support and glob-pattern
// bulk deletion. All operations are safe for concurrent use.
type Cache interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire (or uses the implementation's default expiration).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache. It is not an error to delete
	// a key that does not exist.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching the glob pattern
	// (redis-style: '*' matches any run of characters, '?' any single
	// character). Returns the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Ping verifies connectivity to the underlying cache backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the cache implementation.
	Close() error
}

// TTLs holds the independent expirations of the four cached data classes.
type TTLs struct {
	Decision time.Duration
	Roles    time.Duration
	Policies time.Duration
	Tenant   time.Duration
}

// DefaultTTLs mirrors the configuration defaults.
func DefaultTTLs() TTLs {
	return TTLs{
		Decision: 5 * time.Minute,
		Roles:    time.Hour,
		Policies: 30 * time.Minute,
		Tenant:   6 * time.Hour,
	}
}
