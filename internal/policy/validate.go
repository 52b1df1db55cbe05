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

import "fmt"

var leafOperators = map[string]bool{
	OpEqual:        true,
	OpNotEqual:     true,
	OpGreater:      true,
	OpLess:         true,
	OpGreaterEqual: true,
	OpLessEqual:    true,
	OpIn:           true,
	OpContains:     true,
	OpExists:       true,
}

// Validate rejects malformed policy definitions. The management plane
// calls this at creation time; the engine still defends at evaluation
// time because stored state cannot be assumed clean.
func Validate(p *Policy) error {
	switch p.Status {
	case StatusActive, StatusInactive, StatusDraft:
	default:
		return fmt.Errorf("%w: policy %s: unknown status %q", ErrMalformed, p.ID, p.Status)
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("%w: policy %s: no rules", ErrMalformed, p.ID)
	}
	for i := range p.Rules {
		if err := validateRule(&p.Rules[i]); err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
	}
	return nil
}

func validateRule(r *Rule) error {
	if r.Effect != EffectAllow && r.Effect != EffectDeny {
		return fmt.Errorf("%w: rule %s: unknown effect %q", ErrMalformed, r.ID, r.Effect)
	}
	return validateCondition(&r.Condition)
}

func validateCondition(c *Condition) error {
	if c.IsGroup() {
		if c.Attribute != "" {
			return fmt.Errorf("%w: group %q must not name an attribute", ErrMalformed, c.Operator)
		}
		if len(c.Conditions) == 0 {
			return fmt.Errorf("%w: group %q has no child conditions", ErrMalformed, c.Operator)
		}
		if c.Operator == OpNot && len(c.Conditions) != 1 {
			return fmt.Errorf("%w: \"not\" requires exactly one child, got %d", ErrMalformed, len(c.Conditions))
		}
		for i := range c.Conditions {
			if err := validateCondition(&c.Conditions[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Attribute == "" {
		return fmt.Errorf("%w: leaf condition missing attribute", ErrMalformed)
	}
	if !leafOperators[c.Operator] {
		return fmt.Errorf("%w: unknown operator %q", ErrMalformed, c.Operator)
	}
	if len(c.Conditions) != 0 {
		return fmt.Errorf("%w: leaf condition on %q must not nest conditions", ErrMalformed, c.Attribute)
	}
	if c.Operator == OpIn && c.Value == nil && len(c.Values) == 0 {
		return fmt.Errorf("%w: \"in\" on %q requires a value list", ErrMalformed, c.Attribute)
	}
	return nil
}
