package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/authzd/authzd/internal/policy"
)

// PolicyRepository implements policy.Store
type PolicyRepository struct {
	db *DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetActivePolicies retrieves the tenant's active policies ordered by
// priority descending. Rules are stored as a JSONB document per policy.
func (r *PolicyRepository) GetActivePolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, name, priority, status, rules
		FROM policies
		WHERE tenant_id = $1 AND status = 'active'
		ORDER BY priority DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		var p policy.Policy
		var rules []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Priority, &p.Status, &rules); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		if err := json.Unmarshal(rules, &p.Rules); err != nil {
			// A rules document that does not even parse is surfaced as
			// malformed so the engine denies closed instead of skipping.
			return nil, fmt.Errorf("policy %s rules do not parse: %v: %w", p.ID, err, policy.ErrMalformed)
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}
