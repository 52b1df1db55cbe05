package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authzd/authzd/internal/authz"
)

// PrincipalRepository implements authz.PrincipalStore
type PrincipalRepository struct {
	db *DB
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// GetAttributes retrieves a principal's stored attribute map
func (r *PrincipalRepository) GetAttributes(ctx context.Context, tenantID, principalID string) (map[string]any, error) {
	var raw []byte
	err := r.db.pool.QueryRow(ctx, `
		SELECT attributes
		FROM principals
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, principalID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authz.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal attributes: %w", err)
	}

	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse principal attributes: %w", err)
	}

	return attrs, nil
}
