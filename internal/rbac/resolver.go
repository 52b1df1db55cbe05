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

package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/observability/logger"
)

// maxHierarchyDepth bounds the upward walk. Role creation validates
// acyclicity, but the resolver must not trust that: a cycle or a chain
// deeper than this stops the walk instead of hanging the request.
const maxHierarchyDepth = 32

// Resolver resolves a principal's effective role set (direct assignments
// plus inherited ancestors) and answers permission checks against it,
// enforcing separation-of-duty constraints.
type Resolver struct {
	store   Store
	cache   cache.Cache
	roleTTL time.Duration
}

// NewResolver creates a resolver. c may be nil to disable the role
// hierarchy cache.
func NewResolver(store Store, c cache.Cache, roleTTL time.Duration) *Resolver {
	return &Resolver{store: store, cache: c, roleTTL: roleTTL}
}

// Result is the outcome of an RBAC permission check.
type Result struct {
	// Roles is the resolved role set: directly assigned roles first,
	// then ancestors, each role at most once.
	Roles []Role
	// Granted reports whether the required permission was found and no
	// deny-action constraint was violated.
	Granted bool
	// GrantingRole is set when Granted is true.
	GrantingRole *Role
	// Reason is the deterministic explanation for the outcome.
	Reason string
	// Alerts carries separation-of-duty violations whose action is
	// "alert": recorded, never decision-changing.
	Alerts []string
}

// RoleNames returns the resolved role names in order.
func (r *Result) RoleNames() []string {
	names := make([]string, 0, len(r.Roles))
	for _, role := range r.Roles {
		names = append(names, role.Name)
	}
	return names
}

// Authorize resolves the principal's roles and checks the required
// permission (canonical "{resource_type}.{action}" form) against the
// union of grants of the resolved set. Errors are storage failures only;
// the caller treats them as deny-closed.
func (r *Resolver) Authorize(ctx context.Context, tenantID, principalID, permission string) (*Result, error) {
	roles, err := r.ResolveRoles(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	res := &Result{Roles: roles}

	if len(roles) == 0 {
		res.Reason = fmt.Sprintf("missing permission %s: principal has no active roles (resolved role set is empty)", permission)
		return res, nil
	}

	violated, alerts, err := r.checkConstraints(ctx, tenantID, roles)
	if err != nil {
		return nil, err
	}
	res.Alerts = alerts
	if violated != nil {
		res.Reason = fmt.Sprintf(
			"separation of duties violation (constraint %s): principal holds mutually exclusive roles [%s]",
			violated.Name, strings.Join(intersectNames(roles, violated.RoleSet), ", "),
		)
		return res, nil
	}

	for i := range roles {
		perms, err := r.store.GetRolePermissions(ctx, tenantID, roles[i].ID)
		if err != nil {
			return nil, fmt.Errorf("loading permissions of role %s: %w", roles[i].ID, err)
		}
		for _, p := range perms {
			if p.Name() == permission {
				res.Granted = true
				res.GrantingRole = &roles[i]
				res.Reason = fmt.Sprintf("permission %s granted by role %s (level %d)", permission, roles[i].Name, roles[i].Level)
				return res, nil
			}
		}
	}

	res.Reason = fmt.Sprintf("missing permission %s; resolved roles: [%s]", permission, strings.Join(res.RoleNames(), ", "))
	return res, nil
}

// ResolveRoles returns the principal's effective roles: each active,
// non-expired direct assignment plus every ancestor reachable through
// parent_role_id, visited once. Results are cached per principal.
func (r *Resolver) ResolveRoles(ctx context.Context, tenantID, principalID string) ([]Role, error) {
	key := cache.RolesKey(tenantID, principalID)
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil {
			var roles []Role
			if err := json.Unmarshal(raw, &roles); err == nil {
				return roles, nil
			}
			// Undecodable entry: drop it and recompute.
			_ = r.cache.Delete(ctx, key)
		}
	}

	roles, err := r.resolveFromStore(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if raw, err := json.Marshal(roles); err == nil {
			if err := r.cache.Set(ctx, key, raw, r.roleTTL); err != nil {
				slog.WarnContext(ctx, "role hierarchy cache write failed",
					logger.Component("rbac"), logger.CacheKey(key), logger.Error(err))
			}
		}
	}
	return roles, nil
}

func (r *Resolver) resolveFromStore(ctx context.Context, tenantID, principalID string) ([]Role, error) {
	assignments, err := r.store.GetAssignments(ctx, tenantID, principalID)
	if err != nil {
		return nil, fmt.Errorf("loading role assignments: %w", err)
	}

	now := time.Now()
	visited := make(map[string]bool)
	roles := make([]Role, 0, len(assignments))

	// Breadth-first, direct roles before ancestors, so the grant reason
	// names the closest role that carries the permission.
	var frontier []string
	for _, a := range assignments {
		if !a.Effective(now) {
			continue
		}
		if visited[a.RoleID] {
			continue
		}
		visited[a.RoleID] = true
		frontier = append(frontier, a.RoleID)
	}
	sort.Strings(frontier) // deterministic order independent of storage

	depth := 0
	for len(frontier) > 0 && depth < maxHierarchyDepth {
		var next []string
		for _, roleID := range frontier {
			role, err := r.store.GetRole(ctx, tenantID, roleID)
			if errors.Is(err, ErrRoleNotFound) {
				// Dangling assignment or parent pointer: skip the branch.
				slog.WarnContext(ctx, "role referenced but not found, skipping branch",
					logger.Component("rbac"), logger.TenantID(tenantID), logger.RoleID(roleID))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading role %s: %w", roleID, err)
			}
			roles = append(roles, *role)
			if role.ParentRoleID == "" {
				continue
			}
			if visited[role.ParentRoleID] {
				// Already queued or walked; in a well-formed tree this is
				// shared ancestry, in a broken one it is a cycle. Either
				// way the walk stops here on this branch.
				continue
			}
			visited[role.ParentRoleID] = true
			next = append(next, role.ParentRoleID)
		}
		frontier = next
		depth++
	}
	if len(frontier) > 0 {
		slog.WarnContext(ctx, "role hierarchy exceeds depth bound, truncating walk",
			logger.Component("rbac"), logger.TenantID(tenantID), logger.PrincipalID(principalID))
	}

	return roles, nil
}

// checkConstraints returns the first deny-action constraint whose role
// set intersects the resolved roles in two or more elements, plus the
// alert messages of any alert-action violations.
func (r *Resolver) checkConstraints(ctx context.Context, tenantID string, roles []Role) (*Constraint, []string, error) {
	constraints, err := r.store.GetConstraints(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading role constraints: %w", err)
	}

	held := make(map[string]bool, len(roles))
	for _, role := range roles {
		held[role.ID] = true
	}

	var alerts []string
	for i := range constraints {
		c := &constraints[i]
		count := 0
		for _, roleID := range c.RoleSet {
			if held[roleID] {
				count++
			}
		}
		if count < 2 {
			continue
		}
		if c.ViolationAction == ViolationDeny {
			return c, alerts, nil
		}
		alerts = append(alerts, fmt.Sprintf(
			"separation of duties alert (constraint %s): roles [%s] held together",
			c.Name, strings.Join(intersectNames(roles, c.RoleSet), ", "),
		))
	}
	return nil, alerts, nil
}

func intersectNames(roles []Role, roleSet []string) []string {
	inSet := make(map[string]bool, len(roleSet))
	for _, id := range roleSet {
		inSet[id] = true
	}
	var names []string
	for _, role := range roles {
		if inSet[role.ID] {
			names = append(names, role.Name)
		}
	}
	return names
}
