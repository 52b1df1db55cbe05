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

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Errors  uint64 `json:"errors"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
}

// Instrumented wraps a Cache with hit/miss/error counters. A backend
// error on Get is counted and reported as ErrNotFound so callers degrade
// to compute-fresh without special-casing outages.
type Instrumented struct {
	backend Cache

	hits    atomic.Uint64
	misses  atomic.Uint64
	errors  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

// NewInstrumented wraps backend with counters.
func NewInstrumented(backend Cache) *Instrumented {
	return &Instrumented{backend: backend}
}

func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		return val, nil
	case errors.Is(err, ErrNotFound):
		c.misses.Add(1)
		return nil, ErrNotFound
	default:
		// Unavailable backend degrades to a miss.
		c.errors.Add(1)
		return nil, ErrNotFound
	}
}

func (c *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.errors.Add(1)
		return err
	}
	c.sets.Add(1)
	return nil
}

func (c *Instrumented) Delete(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.errors.Add(1)
		return err
	}
	c.deletes.Add(1)
	return nil
}

func (c *Instrumented) DeletePattern(ctx context.Context, pattern string) (int, error) {
	n, err := c.backend.DeletePattern(ctx, pattern)
	if err != nil {
		c.errors.Add(1)
		return n, err
	}
	c.deletes.Add(uint64(n))
	return n, nil
}

func (c *Instrumented) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

func (c *Instrumented) Close() error {
	return c.backend.Close()
}

// Snapshot returns the current counter values.
func (c *Instrumented) Snapshot() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
	}
}
