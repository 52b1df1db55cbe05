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
	"errors"
	"testing"

	"github.com/authzd/authzd/internal/policy"
)

func validPolicy() *policy.Policy {
	return &policy.Policy{
		ID: "pol-1", TenantID: "t1", Name: "p", Status: policy.StatusActive,
		Rules: []policy.Rule{
			{ID: "r1", Effect: policy.EffectAllow, Condition: policy.Condition{
				Operator: policy.OpAnd,
				Conditions: []policy.Condition{
					{Attribute: "action", Operator: policy.OpEqual, Value: "read"},
					{Attribute: "principal.department", Operator: policy.OpIn, Values: []any{"engineering"}},
				},
			}},
		},
	}
}

func TestValidate_AcceptsWellFormedPolicy(t *testing.T) {
	if err := policy.Validate(validPolicy()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsMalformedPolicies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*policy.Policy)
	}{
		{"unknown status", func(p *policy.Policy) { p.Status = "archived" }},
		{"no rules", func(p *policy.Policy) { p.Rules = nil }},
		{"unknown effect", func(p *policy.Policy) { p.Rules[0].Effect = "maybe" }},
		{"unknown operator", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Attribute: "action", Operator: "matches", Value: "x"}
		}},
		{"leaf without attribute", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Operator: policy.OpEqual, Value: "x"}
		}},
		{"empty group", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Operator: policy.OpOr}
		}},
		{"not with two children", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Operator: policy.OpNot, Conditions: []policy.Condition{
				{Attribute: "action", Operator: policy.OpEqual, Value: "a"},
				{Attribute: "action", Operator: policy.OpEqual, Value: "b"},
			}}
		}},
		{"in without values", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Attribute: "action", Operator: policy.OpIn}
		}},
		{"group naming an attribute", func(p *policy.Policy) {
			p.Rules[0].Condition = policy.Condition{Operator: policy.OpAnd, Attribute: "action", Conditions: []policy.Condition{
				{Attribute: "action", Operator: policy.OpEqual, Value: "a"},
			}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(p)
			err := policy.Validate(p)
			if !errors.Is(err, policy.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
