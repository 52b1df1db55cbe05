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

package policy

import (
	"context"
	"errors"
)

// ErrMalformed marks structural policy errors (unknown operator, wrong
// arity for "not", invalid group). The evaluator denies closed on it and
// reports an internal policy error, distinct from an ordinary rule
// mismatch.
var ErrMalformed = errors.New("malformed policy")

// Status of a policy; only active policies participate in evaluation.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

// Effect of a matched rule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Group operators.
const (
	OpAnd = "and"
	OpOr  = "or"
	OpNot = "not"
)

// Leaf comparison operators.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpIn           = "in"
	OpContains     = "contains"
	OpExists       = "exists"
)

// Policy is a tenant-defined, prioritized rule set. Higher priority is
// evaluated first.
type Policy struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Status   Status `json:"status"`
	Rules    []Rule `json:"rules"`
}

// Rule pairs a condition tree with an effect. Within a policy, rules
// evaluate by priority descending, declaration order breaking ties.
type Rule struct {
	ID        string    `json:"id"`
	Priority  int       `json:"priority"`
	Effect    Effect    `json:"effect"`
	Condition Condition `json:"condition"`
}

// Condition is a tagged variant: a group when Operator is one of
// and/or/not (Conditions populated), otherwise a leaf comparing one
// attribute. The discriminant is validated explicitly rather than probed
// dynamically.
type Condition struct {
	Operator string `json:"operator"`

	// Group fields
	Conditions []Condition `json:"conditions,omitempty"`

	// Leaf fields
	Attribute string `json:"attribute,omitempty"`
	Value     any    `json:"value,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// IsGroup reports whether the condition is a boolean group node.
func (c *Condition) IsGroup() bool {
	return c.Operator == OpAnd || c.Operator == OpOr || c.Operator == OpNot
}

// Store is the read interface over tenant policy state. Implementations
// must return policies with their rules fully loaded; ordering is the
// engine's concern.
type Store interface {
	GetActivePolicies(ctx context.Context, tenantID string) ([]Policy, error)
}
