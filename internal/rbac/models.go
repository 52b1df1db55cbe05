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
	"errors"
	"time"
)

var (
	ErrRoleNotFound = errors.New("role not found")
)

// Role is a node in a tenant's role hierarchy. ParentRoleID is empty for
// root roles; Level is 0 at the root and grows downward.
type Role struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	ParentRoleID string `json:"parent_role_id,omitempty"`
	Level        int    `json:"level"`
}

// Permission follows the {resource_type}.{action} naming convention,
// unique per tenant by (resource_type, action).
type Permission struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
}

// Name returns the canonical permission string, e.g. "invoice.delete".
func (p Permission) Name() string {
	return p.ResourceType + "." + p.Action
}

// Assignment binds a principal to a role. Expired or inactive
// assignments contribute no permissions.
type Assignment struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	PrincipalID string     `json:"principal_id"`
	RoleID      string     `json:"role_id"`
	GrantedBy   string     `json:"granted_by,omitempty"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// Effective reports whether the assignment contributes roles at the
// given instant.
func (a Assignment) Effective(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return false
	}
	return true
}

// ConstraintType discriminates separation-of-duty constraint kinds.
type ConstraintType string

const (
	ConstraintStatic  ConstraintType = "static"
	ConstraintDynamic ConstraintType = "dynamic"
)

// ViolationAction selects what a violated constraint does to the decision.
type ViolationAction string

const (
	ViolationDeny  ViolationAction = "deny"
	ViolationAlert ViolationAction = "alert"
)

// Constraint is a separation-of-duty rule: holding two or more roles
// from RoleSet simultaneously is a violation.
type Constraint struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	Name            string          `json:"name"`
	Type            ConstraintType  `json:"constraint_type"`
	RoleSet         []string        `json:"role_set"`
	ViolationAction ViolationAction `json:"violation_action"`
}

// Store is the read interface over role state, supplied by the
// management storage layer. All queries are tenant-scoped.
type Store interface {
	// GetAssignments returns every role assignment of the principal,
	// including inactive and expired ones; the resolver filters.
	GetAssignments(ctx context.Context, tenantID, principalID string) ([]Assignment, error)

	// GetRole returns a single role, or ErrRoleNotFound.
	GetRole(ctx context.Context, tenantID, roleID string) (*Role, error)

	// GetRolePermissions returns the role's own grants. Inheritance is
	// expressed by the resolver including ancestor roles in the
	// principal's role set, not by transitive permission derivation.
	GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]Permission, error)

	// GetConstraints returns the tenant's separation-of-duty constraints.
	GetConstraints(ctx context.Context, tenantID string) ([]Constraint, error)
}
