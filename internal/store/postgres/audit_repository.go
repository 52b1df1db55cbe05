package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authzd/authzd/internal/audit"
)

// AuditRepository implements audit.Store over the append-only audit_log
// table. Rows are inserted once and never updated.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append persists a fully populated entry
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, principal_id, action, resource_type, resource_id,
			allowed, reason, timestamp, metadata, request_hash, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.TenantID, e.PrincipalID, e.Action, e.ResourceType, e.ResourceID,
		e.Allowed, e.Reason, e.Timestamp, e.Metadata, e.RequestHash, e.PreviousHash)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// LastHash returns the request hash of the tenant's newest entry
func (r *AuditRepository) LastHash(ctx context.Context, tenantID string) (string, error) {
	var hash string
	err := r.db.pool.QueryRow(ctx, `
		SELECT request_hash
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, tenantID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last audit hash: %w", err)
	}

	return hash, nil
}

// RecentByTenant returns up to limit entries of the tenant, oldest first
func (r *AuditRepository) RecentByTenant(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	return r.query(ctx, `
		SELECT id, tenant_id, principal_id, action, resource_type, resource_id,
			allowed, reason, timestamp, metadata, request_hash, previous_hash
		FROM (
			SELECT * FROM audit_log
			WHERE tenant_id = $1
			ORDER BY timestamp DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC, id ASC
	`, tenantID, limit)
}

// RecentByPrincipal returns up to limit entries of a principal, oldest first
func (r *AuditRepository) RecentByPrincipal(ctx context.Context, tenantID, principalID string, limit int) ([]audit.Entry, error) {
	return r.query(ctx, `
		SELECT id, tenant_id, principal_id, action, resource_type, resource_id,
			allowed, reason, timestamp, metadata, request_hash, previous_hash
		FROM (
			SELECT * FROM audit_log
			WHERE tenant_id = $1 AND principal_id = $2
			ORDER BY timestamp DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC, id ASC
	`, tenantID, principalID, limit)
}

// RecentByResource returns up to limit entries for a resource, oldest first
func (r *AuditRepository) RecentByResource(ctx context.Context, tenantID, resourceType, resourceID string, limit int) ([]audit.Entry, error) {
	return r.query(ctx, `
		SELECT id, tenant_id, principal_id, action, resource_type, resource_id,
			allowed, reason, timestamp, metadata, request_hash, previous_hash
		FROM (
			SELECT * FROM audit_log
			WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3
			ORDER BY timestamp DESC, id DESC
			LIMIT $4
		) recent
		ORDER BY timestamp ASC, id ASC
	`, tenantID, resourceType, resourceID, limit)
}

// DecisionCounts returns the allowed and denied totals of a tenant
func (r *AuditRepository) DecisionCounts(ctx context.Context, tenantID string) (int64, int64, error) {
	var allowed, denied int64
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE allowed),
			count(*) FILTER (WHERE NOT allowed)
		FROM audit_log
		WHERE tenant_id = $1
	`, tenantID).Scan(&allowed, &denied)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count decisions: %w", err)
	}

	return allowed, denied, nil
}

func (r *AuditRepository) query(ctx context.Context, sql string, args ...any) ([]audit.Entry, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.PrincipalID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Allowed, &e.Reason, &e.Timestamp, &e.Metadata, &e.RequestHash, &e.PreviousHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
