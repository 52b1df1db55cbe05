package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authzd/authzd/internal/rbac"
)

// RoleRepository implements rbac.Store
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// GetAssignments retrieves all role assignments of a principal,
// including inactive and expired ones. The resolver filters.
func (r *RoleRepository) GetAssignments(ctx context.Context, tenantID, principalID string) ([]rbac.Assignment, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, principal_id, role_id, granted_by, granted_at, expires_at, is_active
		FROM principal_roles
		WHERE tenant_id = $1 AND principal_id = $2
	`, tenantID, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []rbac.Assignment
	for rows.Next() {
		var a rbac.Assignment
		var grantedBy sql.NullString
		if err := rows.Scan(&a.ID, &a.TenantID, &a.PrincipalID, &a.RoleID, &grantedBy, &a.GrantedAt, &a.ExpiresAt, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if grantedBy.Valid {
			a.GrantedBy = grantedBy.String
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// GetRole retrieves a single role by id
func (r *RoleRepository) GetRole(ctx context.Context, tenantID, roleID string) (*rbac.Role, error) {
	var role rbac.Role
	var parent sql.NullString
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, parent_role_id, level
		FROM roles
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, roleID).Scan(&role.ID, &role.TenantID, &role.Name, &parent, &role.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if parent.Valid {
		role.ParentRoleID = parent.String
	}

	return &role, nil
}

// GetRolePermissions retrieves the role's own grants
func (r *RoleRepository) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]rbac.Permission, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT p.id, p.tenant_id, p.resource_type, p.action
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE p.tenant_id = $1 AND rp.role_id = $2
	`, tenantID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ResourceType, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}

	return perms, rows.Err()
}

// GetConstraints retrieves the tenant's separation-of-duty constraints
func (r *RoleRepository) GetConstraints(ctx context.Context, tenantID string) ([]rbac.Constraint, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, name, constraint_type, role_set, violation_action
		FROM role_constraints
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role constraints: %w", err)
	}
	defer rows.Close()

	var constraints []rbac.Constraint
	for rows.Next() {
		var c rbac.Constraint
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Type, &c.RoleSet, &c.ViolationAction); err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		constraints = append(constraints, c)
	}

	return constraints, rows.Err()
}
