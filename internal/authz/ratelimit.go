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

package authz

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter rate limits decision requests per tenant+principal pair.
type KeyedLimiter struct {
	limiters        map[string]*rate.Limiter
	mu              sync.Mutex
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
}

// NewKeyedLimiter creates a per-principal limiter.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	kl := &KeyedLimiter{
		limiters:        make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
	}

	go kl.cleanup()

	return kl
}

// Allow reports whether a request for the tenant+principal pair may
// proceed right now.
func (kl *KeyedLimiter) Allow(tenantID, principalID string) bool {
	key := tenantID + ":" + principalID

	kl.mu.Lock()
	limiter, exists := kl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(kl.rps, kl.burst)
		kl.limiters[key] = limiter
	}
	kl.mu.Unlock()

	return limiter.Allow()
}

// cleanup resets the map every interval to bound memory. Active
// principals get a fresh limiter on their next request.
func (kl *KeyedLimiter) cleanup() {
	ticker := time.NewTicker(kl.cleanupInterval)
	for range ticker.C {
		kl.mu.Lock()
		kl.limiters = make(map[string]*rate.Limiter)
		kl.mu.Unlock()
	}
}
