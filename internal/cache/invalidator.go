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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	// EventChannel is the Redis Pub/Sub channel carrying mutation events
	// from the management plane. Every subscribed authzd instance applies
	// the corresponding invalidation, keeping cached decisions consistent
	// with role/permission/policy state without waiting for TTL expiry.
	EventChannel = "authzd:events"
)

// Mutation event types published by the management plane.
const (
	EventRoleAssignmentChanged = "role_assignment_changed"
	EventRolePermissionChanged = "role_permission_changed"
	EventPolicyChanged         = "policy_changed"
	EventTenantChanged         = "tenant_changed"
)

// Event describes a single mutation in role/permission/policy state.
type Event struct {
	Type         string `json:"type"`
	TenantID     string `json:"tenant_id"`
	PrincipalID  string `json:"principal_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

// Invalidator maps mutation events onto cache deletions. It can be
// driven directly (Apply) or through a Redis Pub/Sub subscription
// (Listen) fed by the management plane.
type Invalidator struct {
	cache  Cache
	client *redis.Client
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator over the given cache. client may
// be nil when events arrive only through Apply (e.g. the HTTP event
// endpoint or tests).
func NewInvalidator(c Cache, client *redis.Client) *Invalidator {
	return &Invalidator{cache: c, client: client}
}

// Apply performs the cache deletions implied by one mutation event.
func (inv *Invalidator) Apply(ctx context.Context, ev Event) error {
	if ev.TenantID == "" {
		return fmt.Errorf("invalidation event missing tenant_id")
	}
	switch ev.Type {
	case EventRoleAssignmentChanged:
		// The principal's resolved hierarchy and every decision derived
		// from it are stale.
		if ev.PrincipalID == "" {
			return fmt.Errorf("role_assignment_changed event missing principal_id")
		}
		if err := inv.cache.Delete(ctx, RolesKey(ev.TenantID, ev.PrincipalID)); err != nil {
			return err
		}
		_, err := inv.cache.DeletePattern(ctx, PrincipalDecisionPattern(ev.TenantID, ev.PrincipalID))
		return err
	case EventRolePermissionChanged:
		// A permission grant moved between roles: every cached decision
		// for the affected resource type may have flipped.
		if ev.ResourceType == "" {
			return fmt.Errorf("role_permission_changed event missing resource_type")
		}
		_, err := inv.cache.DeletePattern(ctx, ResourceTypeDecisionPattern(ev.TenantID, ev.ResourceType))
		return err
	case EventPolicyChanged:
		if err := inv.cache.Delete(ctx, PoliciesKey(ev.TenantID)); err != nil {
			return err
		}
		_, err := inv.cache.DeletePattern(ctx, TenantDecisionPattern(ev.TenantID))
		return err
	case EventTenantChanged:
		// A status flip (e.g. suspension) must take effect immediately:
		// cached decisions are served before the tenant check runs, so
		// they go too, not just the tenant config entry.
		if err := inv.cache.Delete(ctx, TenantKey(ev.TenantID)); err != nil {
			return err
		}
		_, err := inv.cache.DeletePattern(ctx, TenantDecisionPattern(ev.TenantID))
		return err
	default:
		return fmt.Errorf("unknown invalidation event type %q", ev.Type)
	}
}

// Listen subscribes to EventChannel and applies incoming events. It
// blocks until the context is cancelled or Close is called.
func (inv *Invalidator) Listen(ctx context.Context) {
	if inv.client == nil {
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	inv.mu.Lock()
	inv.cancel = cancel
	inv.mu.Unlock()

	pubsub := inv.client.Subscribe(subCtx, EventChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.WarnContext(subCtx, "dropping malformed invalidation event",
					slog.String("payload", msg.Payload),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := inv.Apply(subCtx, ev); err != nil {
				slog.WarnContext(subCtx, "invalidation event failed",
					slog.String("event_type", ev.Type),
					slog.String("tenant_id", ev.TenantID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Publish sends a mutation event on the channel for other instances.
func (inv *Invalidator) Publish(ctx context.Context, ev Event) error {
	if inv.client == nil {
		return inv.Apply(ctx, ev)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return inv.client.Publish(ctx, EventChannel, payload).Err()
}

// Close stops the event listener.
func (inv *Invalidator) Close() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.closed {
		return nil
	}
	inv.closed = true
	if inv.cancel != nil {
		inv.cancel()
	}
	return nil
}
