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

package policy_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/authzd/authzd/internal/policy"
)

// MockPolicyStore implements policy.Store for testing
type MockPolicyStore struct {
	policies []policy.Policy
	err      error
}

func (m *MockPolicyStore) GetActivePolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.policies, nil
}

func leaf(attr, op string, value any) policy.Condition {
	return policy.Condition{Attribute: attr, Operator: op, Value: value}
}

func testContext() *policy.EvalContext {
	return &policy.EvalContext{
		PrincipalID:  "user-1",
		Action:       "write",
		ResourceType: "document",
		ResourceID:   "doc-42",
		PrincipalAttrs: map[string]any{
			"department":      "engineering",
			"clearance_level": 3,
		},
		ResourceAttrs: map[string]any{
			"sensitivity": 2,
			"tags":        []any{"internal", "draft"},
		},
		RequestAttrs: map[string]any{
			"channel": "api",
		},
	}
}

func TestEngine_HigherPriorityPolicyWins(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-low", TenantID: "t1", Name: "allow-everything", Priority: 50, Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectAllow, Condition: leaf("action", "=", "write")},
			},
		},
		{
			ID: "pol-high", TenantID: "t1", Name: "deny-documents", Priority: 100, Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectDeny, Condition: leaf("resource.type", "=", "document")},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	res, err := engine.Evaluate(context.Background(), "t1", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a rule to match")
	}
	if res.Effect != policy.EffectDeny {
		t.Errorf("expected deny from priority-100 policy, got %s", res.Effect)
	}
	if res.PolicyID != "pol-high" {
		t.Errorf("expected pol-high to win, got %s", res.PolicyID)
	}
	if !strings.Contains(res.Explanation, "deny-documents") {
		t.Errorf("explanation should name the policy, got %q", res.Explanation)
	}
}

func TestEngine_RulePriorityWithinPolicy(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-1", TenantID: "t1", Name: "mixed", Priority: 10, Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r-allow", Priority: 1, Effect: policy.EffectAllow, Condition: leaf("action", "=", "write")},
				{ID: "r-deny", Priority: 5, Effect: policy.EffectDeny, Condition: leaf("action", "=", "write")},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	res, err := engine.Evaluate(context.Background(), "t1", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RuleID != "r-deny" {
		t.Errorf("higher-priority rule should win, got %s", res.RuleID)
	}
	if res.Effect != policy.EffectDeny {
		t.Errorf("expected deny, got %s", res.Effect)
	}
}

func TestEngine_GroupConditions(t *testing.T) {
	tests := []struct {
		name      string
		condition policy.Condition
		satisfied bool
	}{
		{
			name: "and all satisfied",
			condition: policy.Condition{Operator: policy.OpAnd, Conditions: []policy.Condition{
				leaf("principal.department", "=", "engineering"),
				leaf("resource.sensitivity", "<=", 3),
			}},
			satisfied: true,
		},
		{
			name: "and one failing",
			condition: policy.Condition{Operator: policy.OpAnd, Conditions: []policy.Condition{
				leaf("principal.department", "=", "engineering"),
				leaf("resource.sensitivity", ">", 5),
			}},
			satisfied: false,
		},
		{
			name: "or first failing second satisfied",
			condition: policy.Condition{Operator: policy.OpOr, Conditions: []policy.Condition{
				leaf("principal.department", "=", "sales"),
				leaf("context.channel", "=", "api"),
			}},
			satisfied: true,
		},
		{
			name: "not inverts",
			condition: policy.Condition{Operator: policy.OpNot, Conditions: []policy.Condition{
				leaf("principal.department", "=", "sales"),
			}},
			satisfied: true,
		},
		{
			name: "nested groups",
			condition: policy.Condition{Operator: policy.OpAnd, Conditions: []policy.Condition{
				leaf("action", "=", "write"),
				{Operator: policy.OpOr, Conditions: []policy.Condition{
					leaf("principal.clearance_level", ">=", 5),
					leaf("resource.sensitivity", "<", 3),
				}},
			}},
			satisfied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockPolicyStore{policies: []policy.Policy{
				{
					ID: "pol-1", TenantID: "t1", Name: "p", Priority: 0, Status: policy.StatusActive,
					Rules: []policy.Rule{
						{ID: "r1", Effect: policy.EffectAllow, Condition: tt.condition},
					},
				},
			}}
			engine := policy.NewEngine(store, nil, 0)

			res, err := engine.Evaluate(context.Background(), "t1", testContext())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Matched != tt.satisfied {
				t.Errorf("matched = %v, want %v (failures: %v)", res.Matched, tt.satisfied, res.FailedConditions)
			}
		})
	}
}

func TestEngine_LeafOperators(t *testing.T) {
	tests := []struct {
		name      string
		condition policy.Condition
		satisfied bool
	}{
		{"equal string", leaf("principal.department", "=", "engineering"), true},
		{"equal numeric normalization", leaf("resource.sensitivity", "=", 2.0), true},
		{"not equal", leaf("principal.department", "!=", "sales"), true},
		{"greater", leaf("principal.clearance_level", ">", 2), true},
		{"less or equal fails", leaf("principal.clearance_level", "<=", 2), false},
		{"in satisfied", policy.Condition{Attribute: "principal.department", Operator: policy.OpIn, Values: []any{"sales", "engineering"}}, true},
		{"in not satisfied", policy.Condition{Attribute: "principal.department", Operator: policy.OpIn, Values: []any{"sales", "hr"}}, false},
		{"contains slice element", leaf("resource.tags", "contains", "draft"), true},
		{"contains substring", leaf("principal.department", "contains", "gineer"), true},
		{"exists present", policy.Condition{Attribute: "context.channel", Operator: policy.OpExists}, true},
		{"exists absent", policy.Condition{Attribute: "context.nonexistent", Operator: policy.OpExists}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockPolicyStore{policies: []policy.Policy{
				{
					ID: "pol-1", TenantID: "t1", Name: "p", Status: policy.StatusActive,
					Rules: []policy.Rule{
						{ID: "r1", Effect: policy.EffectAllow, Condition: tt.condition},
					},
				},
			}}
			engine := policy.NewEngine(store, nil, 0)

			res, err := engine.Evaluate(context.Background(), "t1", testContext())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Matched != tt.satisfied {
				t.Errorf("matched = %v, want %v", res.Matched, tt.satisfied)
			}
		})
	}
}

func TestEngine_MissingAttributeIsNotSatisfied(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-1", TenantID: "t1", Name: "p", Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectAllow, Condition: leaf("principal.location", "=", "office")},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	res, err := engine.Evaluate(context.Background(), "t1", testContext())
	if err != nil {
		t.Fatalf("missing attribute must not error, got: %v", err)
	}
	if res.Matched {
		t.Fatal("missing attribute must not satisfy a comparison")
	}
	if len(res.FailedConditions) == 0 || !strings.Contains(res.FailedConditions[0], "attribute missing") {
		t.Errorf("expected a descriptive failure, got %v", res.FailedConditions)
	}
}

func TestEngine_MalformedNotArity(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-bad", TenantID: "t1", Name: "broken", Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectDeny, Condition: policy.Condition{
					Operator: policy.OpNot,
					Conditions: []policy.Condition{
						leaf("action", "=", "write"),
						leaf("action", "=", "read"),
					},
				}},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	_, err := engine.Evaluate(context.Background(), "t1", testContext())
	if !errors.Is(err, policy.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if !strings.Contains(err.Error(), "pol-bad") {
		t.Errorf("error should name the broken policy, got %q", err)
	}
}

func TestEngine_UnknownOperatorIsMalformed(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-bad", TenantID: "t1", Name: "broken", Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectAllow, Condition: leaf("action", "~=", "write")},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	_, err := engine.Evaluate(context.Background(), "t1", testContext())
	if !errors.Is(err, policy.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEngine_NoMatchIsNeutral(t *testing.T) {
	store := &MockPolicyStore{policies: []policy.Policy{
		{
			ID: "pol-1", TenantID: "t1", Name: "p", Status: policy.StatusActive,
			Rules: []policy.Rule{
				{ID: "r1", Effect: policy.EffectDeny, Condition: leaf("action", "=", "delete")},
			},
		},
	}}
	engine := policy.NewEngine(store, nil, 0)

	res, err := engine.Evaluate(context.Background(), "t1", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched {
		t.Fatal("no rule should match")
	}
	if res.Explanation != "no active policy rule matched" {
		t.Errorf("unexpected explanation %q", res.Explanation)
	}
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	store := &MockPolicyStore{err: errors.New("connection refused")}
	engine := policy.NewEngine(store, nil, 0)

	_, err := engine.Evaluate(context.Background(), "t1", testContext())
	if err == nil {
		t.Fatal("expected storage error to propagate")
	}
	if errors.Is(err, policy.ErrMalformed) {
		t.Error("storage error must be distinct from malformed policy state")
	}
}
