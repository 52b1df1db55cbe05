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

package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/authzd/authzd/internal/audit"
	"github.com/authzd/authzd/internal/authz"
	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/policy"
	"github.com/authzd/authzd/internal/rbac"
	"github.com/authzd/authzd/internal/tenant"
	transportHTTP "github.com/authzd/authzd/internal/transport/http"
)

const (
	testTenantID    = "0190a3a0-1111-7000-8000-000000000001"
	testPrincipalID = "0190a3a0-2222-7000-8000-000000000002"
)

type stubRBACStore struct{}

func (stubRBACStore) GetAssignments(ctx context.Context, tenantID, principalID string) ([]rbac.Assignment, error) {
	return []rbac.Assignment{
		{ID: "a1", TenantID: tenantID, PrincipalID: principalID, RoleID: "role-reader", IsActive: true},
	}, nil
}

func (stubRBACStore) GetRole(ctx context.Context, tenantID, roleID string) (*rbac.Role, error) {
	return &rbac.Role{ID: roleID, TenantID: tenantID, Name: "reader"}, nil
}

func (stubRBACStore) GetRolePermissions(ctx context.Context, tenantID, roleID string) ([]rbac.Permission, error) {
	return []rbac.Permission{{ID: "p1", TenantID: tenantID, ResourceType: "document", Action: "read"}}, nil
}

func (stubRBACStore) GetConstraints(ctx context.Context, tenantID string) ([]rbac.Constraint, error) {
	return nil, nil
}

type stubPolicyStore struct{}

func (stubPolicyStore) GetActivePolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	return nil, nil
}

type stubTenantRepo struct{}

func (stubTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return &tenant.Tenant{ID: id, Name: "acme", Status: tenant.StatusActive}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *audit.InMemoryStore) {
	t.Helper()

	c := cache.NewInstrumented(cache.NewInMemoryCache())
	t.Cleanup(func() { c.Close() })
	auditStore := audit.NewInMemoryStore()

	evaluator := authz.NewEvaluator(authz.Options{
		Cache:    c,
		Tenants:  tenant.NewService(stubTenantRepo{}, nil, time.Hour),
		Resolver: rbac.NewResolver(stubRBACStore{}, nil, time.Hour),
		Engine:   policy.NewEngine(stubPolicyStore{}, nil, time.Hour),
		Chain:    audit.NewChainLogger(auditStore, time.Second),
	})

	handler := transportHTTP.NewHandler(evaluator, auditStore, c, cache.NewInvalidator(c, nil))
	router := transportHTTP.NewRouter(handler, transportHTTP.NewRateLimiter(1000, 1000))
	return router, auditStore
}

func authorizeBody() string {
	return `{
		"tenantId": "` + testTenantID + `",
		"principalId": "` + testPrincipalID + `",
		"action": "read",
		"resource": {"type": "document", "id": "doc-1"}
	}`
}

func TestAuthorize_ReturnsDecision(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(authorizeBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp authz.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if !resp.Allowed {
		t.Errorf("expected allow, got: %s", resp.Reason)
	}
	if resp.Reason == "" || resp.EvaluatedAt.IsZero() {
		t.Error("response must carry reason and evaluated_at")
	}
}

func TestAuthorize_DeniedIsStill200(t *testing.T) {
	router, _ := newTestRouter(t)

	body := strings.Replace(authorizeBody(), `"read"`, `"delete"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("denials are decisions, not transport errors: status %d", rec.Code)
	}
	var resp authz.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if resp.Allowed {
		t.Error("delete should be denied")
	}
}

func TestAuthorize_MalformedJSONIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuditEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	// Produce two decisions to populate the trail.
	for _, action := range []string{"read", "delete"} {
		body := strings.Replace(authorizeBody(), `"read"`, `"`+action+`"`, 1)
		req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(body))
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	t.Run("entries", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/entries?tenant_id="+testTenantID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var out struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &out)
		if out.Count != 2 {
			t.Errorf("count = %d, want 2", out.Count)
		}
	})

	t.Run("entries requires tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/entries", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats?tenant_id="+testTenantID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var out struct {
			Allowed int64 `json:"allowed"`
			Denied  int64 `json:"denied"`
		}
		json.Unmarshal(rec.Body.Bytes(), &out)
		if out.Allowed != 1 || out.Denied != 1 {
			t.Errorf("stats = %d/%d, want 1/1", out.Allowed, out.Denied)
		}
	})

	t.Run("verify intact chain", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify?tenant_id="+testTenantID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var out struct {
			Intact  bool `json:"intact"`
			Checked int  `json:"checked"`
		}
		json.Unmarshal(rec.Body.Bytes(), &out)
		if !out.Intact || out.Checked != 2 {
			t.Errorf("verify = intact:%v checked:%d, want intact over 2 entries", out.Intact, out.Checked)
		}
	})
}

func TestCacheStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("applies event", func(t *testing.T) {
		body := `{"type": "policy_changed", "tenant_id": "` + testTenantID + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/invalidate", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects incomplete event", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/invalidate", strings.NewReader(`{"type": "policy_changed"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
