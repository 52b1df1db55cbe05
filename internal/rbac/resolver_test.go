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

package rbac_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/authzd/authzd/internal/rbac"
)

// MockRoleStore implements rbac.Store for testing
type MockRoleStore struct {
	assignments map[string][]rbac.Assignment // principalID -> assignments
	roles       map[string]*rbac.Role        // roleID -> role
	permissions map[string][]rbac.Permission // roleID -> permissions
	constraints []rbac.Constraint
}

func NewMockRoleStore() *MockRoleStore {
	return &MockRoleStore{
		assignments: make(map[string][]rbac.Assignment),
		roles:       make(map[string]*rbac.Role),
		permissions: make(map[string][]rbac.Permission),
	}
}

func (m *MockRoleStore) GetAssignments(ctx context.Context, tenantID, principalID string) ([]rbac.Assignment, error) {
	return m.assignments[principalID], nil
}

func (m *MockRoleStore) GetRole(ctx context.Context, tenantID, roleID string) (*rbac.Role, error) {
	if r, ok := m.roles[roleID]; ok {
		return r, nil
	}
	return nil, rbac.ErrRoleNotFound
}

func (m *MockRoleStore) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]rbac.Permission, error) {
	return m.permissions[roleID], nil
}

func (m *MockRoleStore) GetConstraints(ctx context.Context, tenantID string) ([]rbac.Constraint, error) {
	return m.constraints, nil
}

func (m *MockRoleStore) addRole(id, name, parent string, level int) {
	m.roles[id] = &rbac.Role{ID: id, TenantID: "t1", Name: name, ParentRoleID: parent, Level: level}
}

func (m *MockRoleStore) assign(principalID, roleID string) {
	m.assignments[principalID] = append(m.assignments[principalID], rbac.Assignment{
		ID: "a-" + roleID, TenantID: "t1", PrincipalID: principalID, RoleID: roleID,
		GrantedAt: time.Now(), IsActive: true,
	})
}

func (m *MockRoleStore) grant(roleID, resourceType, action string) {
	m.permissions[roleID] = append(m.permissions[roleID], rbac.Permission{
		ID: "p-" + roleID + "-" + action, TenantID: "t1", ResourceType: resourceType, Action: action,
	})
}

// admin -> manager -> employee hierarchy: a principal assigned the leaf
// role inherits permissions granted to every ancestor.
func hierarchyStore() *MockRoleStore {
	store := NewMockRoleStore()
	store.addRole("role-admin", "admin", "", 0)
	store.addRole("role-manager", "manager", "role-admin", 1)
	store.addRole("role-employee", "employee", "role-manager", 2)
	store.grant("role-admin", "document", "delete")
	store.grant("role-manager", "document", "write")
	store.grant("role-employee", "document", "read")
	return store
}

func TestResolver_InheritsAncestorPermissions(t *testing.T) {
	store := hierarchyStore()
	store.assign("user-1", "role-employee")
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Granted {
		t.Fatalf("ancestor permission should be granted, reason: %s", res.Reason)
	}
	if res.GrantingRole == nil || res.GrantingRole.Name != "manager" {
		t.Errorf("grant should come from the manager role, got %+v", res.GrantingRole)
	}
	if !strings.Contains(res.Reason, "manager") || !strings.Contains(res.Reason, "level 1") {
		t.Errorf("reason should name role and level, got %q", res.Reason)
	}
	if len(res.Roles) != 3 {
		t.Errorf("expected 3 resolved roles, got %v", res.RoleNames())
	}
}

func TestResolver_DenialListsResolvedRoles(t *testing.T) {
	store := hierarchyStore()
	store.assign("user-1", "role-employee")
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.publish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Granted {
		t.Fatal("publish is granted to no role")
	}
	for _, name := range []string{"employee", "manager", "admin"} {
		if !strings.Contains(res.Reason, name) {
			t.Errorf("denial reason should list role %s, got %q", name, res.Reason)
		}
	}
}

func TestResolver_EmptyRoleSet(t *testing.T) {
	store := hierarchyStore()
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-nobody", "document.read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Granted {
		t.Fatal("principal with no roles must be denied")
	}
	if !strings.Contains(res.Reason, "no active roles") {
		t.Errorf("reason should state the role set is empty, got %q", res.Reason)
	}
}

func TestResolver_ExpiredAndInactiveAssignmentsIgnored(t *testing.T) {
	store := hierarchyStore()
	past := time.Now().Add(-time.Hour)
	store.assignments["user-1"] = []rbac.Assignment{
		{ID: "a1", TenantID: "t1", PrincipalID: "user-1", RoleID: "role-employee", IsActive: true, ExpiresAt: &past},
		{ID: "a2", TenantID: "t1", PrincipalID: "user-1", RoleID: "role-manager", IsActive: false},
	}
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Granted {
		t.Fatal("expired and inactive assignments must contribute nothing")
	}
	if len(res.Roles) != 0 {
		t.Errorf("expected empty role set, got %v", res.RoleNames())
	}
}

func TestResolver_CycleTerminates(t *testing.T) {
	store := NewMockRoleStore()
	// x and y point at each other; the walk must still terminate and
	// keep both roles exactly once.
	store.roles["role-x"] = &rbac.Role{ID: "role-x", TenantID: "t1", Name: "x", ParentRoleID: "role-y"}
	store.roles["role-y"] = &rbac.Role{ID: "role-y", TenantID: "t1", Name: "y", ParentRoleID: "role-x"}
	store.grant("role-y", "report", "view")
	store.assign("user-1", "role-x")
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "report.view")
	if err != nil {
		t.Fatalf("cycle must not error the request: %v", err)
	}
	if !res.Granted {
		t.Fatalf("permission on the cyclic ancestor should still grant, reason: %s", res.Reason)
	}
	if len(res.Roles) != 2 {
		t.Errorf("each role should be visited once, got %v", res.RoleNames())
	}
}

func TestResolver_DanglingRoleSkipsBranch(t *testing.T) {
	store := hierarchyStore()
	store.assign("user-1", "role-employee")
	store.assign("user-1", "role-deleted")
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("dangling assignment must not error: %v", err)
	}
	if !res.Granted {
		t.Fatalf("surviving branch should still grant, reason: %s", res.Reason)
	}
}

// wrappingRoleStore annotates lookup failures the way a database-backed
// store does, keeping the sentinel in the chain.
type wrappingRoleStore struct {
	*MockRoleStore
}

func (s *wrappingRoleStore) GetRole(ctx context.Context, tenantID, roleID string) (*rbac.Role, error) {
	role, err := s.MockRoleStore.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", roleID, err)
	}
	return role, nil
}

func TestResolver_WrappedRoleNotFoundSkipsBranch(t *testing.T) {
	store := hierarchyStore()
	store.assign("user-1", "role-employee")
	store.assign("user-1", "role-deleted")
	resolver := rbac.NewResolver(&wrappingRoleStore{MockRoleStore: store}, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("wrapped dangling assignment must not error: %v", err)
	}
	if !res.Granted {
		t.Fatalf("surviving branch should still grant, reason: %s", res.Reason)
	}
}

func TestResolver_SoDDeny(t *testing.T) {
	store := hierarchyStore()
	store.addRole("role-auditor", "auditor", "", 0)
	store.grant("role-auditor", "report", "approve")
	store.assign("user-1", "role-employee")
	store.assign("user-1", "role-auditor")
	store.constraints = []rbac.Constraint{{
		ID: "c1", TenantID: "t1", Name: "maker-checker", Type: rbac.ConstraintStatic,
		RoleSet:         []string{"role-employee", "role-auditor"},
		ViolationAction: rbac.ViolationDeny,
	}}
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Granted {
		t.Fatal("deny-action constraint must fail the check even when permissions allow")
	}
	if !strings.Contains(res.Reason, "separation of duties violation") ||
		!strings.Contains(res.Reason, "maker-checker") {
		t.Errorf("reason should name the constraint, got %q", res.Reason)
	}
	if !strings.Contains(res.Reason, "employee") || !strings.Contains(res.Reason, "auditor") {
		t.Errorf("reason should name the conflicting roles, got %q", res.Reason)
	}
}

func TestResolver_SoDAlertDoesNotChangeDecision(t *testing.T) {
	store := hierarchyStore()
	store.addRole("role-auditor", "auditor", "", 0)
	store.assign("user-1", "role-employee")
	store.assign("user-1", "role-auditor")
	store.constraints = []rbac.Constraint{{
		ID: "c1", TenantID: "t1", Name: "watchlist", Type: rbac.ConstraintDynamic,
		RoleSet:         []string{"role-employee", "role-auditor"},
		ViolationAction: rbac.ViolationAlert,
	}}
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Granted {
		t.Fatalf("alert-action constraint must not deny, reason: %s", res.Reason)
	}
	if len(res.Alerts) != 1 || !strings.Contains(res.Alerts[0], "watchlist") {
		t.Errorf("violation should be recorded as an alert, got %v", res.Alerts)
	}
}

func TestResolver_SingleRoleInConstraintSetIsNoViolation(t *testing.T) {
	store := hierarchyStore()
	store.assign("user-1", "role-employee")
	store.constraints = []rbac.Constraint{{
		ID: "c1", TenantID: "t1", Name: "maker-checker", Type: rbac.ConstraintStatic,
		RoleSet:         []string{"role-employee", "role-auditor"},
		ViolationAction: rbac.ViolationDeny,
	}}
	resolver := rbac.NewResolver(store, nil, 0)

	res, err := resolver.Authorize(context.Background(), "t1", "user-1", "document.read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Granted {
		t.Fatalf("holding one role of the set is not a violation, reason: %s", res.Reason)
	}
}
