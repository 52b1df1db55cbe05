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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/observability/logger"
)

// Engine evaluates a tenant's active policies against a request context.
// Policies evaluate by priority descending; within a policy, rules by
// priority descending with declaration order breaking ties; the first
// satisfied rule's effect terminates the whole evaluation.
type Engine struct {
	store     Store
	cache     cache.Cache
	policyTTL time.Duration
}

// NewEngine creates a policy engine. c may be nil to disable the active
// policy cache.
func NewEngine(store Store, c cache.Cache, policyTTL time.Duration) *Engine {
	return &Engine{store: store, cache: c, policyTTL: policyTTL}
}

// Result of a policy evaluation pass.
type Result struct {
	// Matched reports whether any rule was satisfied. When false the
	// outcome is neutral: the evaluator treats it as pass-through, not
	// as a denial.
	Matched bool
	Effect  Effect
	// PolicyID/PolicyName/RuleID identify the authoritative rule when
	// Matched is true.
	PolicyID   string
	PolicyName string
	RuleID     string
	// Explanation is deterministic text describing the outcome.
	Explanation string
	// FailedConditions collects condition failures of the last
	// not-satisfied rules seen; populated only when nothing matched.
	FailedConditions []string
}

// Evaluate runs the tenant's active policies. A returned error is either
// a storage failure or wraps ErrMalformed; both deny closed upstream.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, ec *EvalContext) (*Result, error) {
	policies, err := e.activePolicies(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps declaration order for equal priorities.
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})

	var failures []string
	for pi := range policies {
		p := &policies[pi]
		if p.Status != StatusActive {
			// Defensive: the store contract is active-only.
			continue
		}
		rules := make([]Rule, len(p.Rules))
		copy(rules, p.Rules)
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Priority > rules[j].Priority
		})

		for ri := range rules {
			r := &rules[ri]
			satisfied, ruleFailures, err := evalCondition(&r.Condition, ec)
			if err != nil {
				return nil, fmt.Errorf("policy %s rule %s: %w", p.ID, r.ID, err)
			}
			if satisfied {
				return &Result{
					Matched:     true,
					Effect:      r.Effect,
					PolicyID:    p.ID,
					PolicyName:  p.Name,
					RuleID:      r.ID,
					Explanation: fmt.Sprintf("policy %s (priority %d) rule %s matched with effect %s", p.Name, p.Priority, r.ID, r.Effect),
				}, nil
			}
			failures = append(failures, ruleFailures...)
		}
	}

	return &Result{
		Matched:          false,
		Explanation:      "no active policy rule matched",
		FailedConditions: failures,
	}, nil
}

// activePolicies loads the tenant's active policy set through the
// tens-of-minutes cache class, falling back to the store on any miss.
func (e *Engine) activePolicies(ctx context.Context, tenantID string) ([]Policy, error) {
	key := cache.PoliciesKey(tenantID)
	if e.cache != nil {
		if raw, err := e.cache.Get(ctx, key); err == nil {
			var policies []Policy
			if err := json.Unmarshal(raw, &policies); err == nil {
				return policies, nil
			}
			_ = e.cache.Delete(ctx, key)
		}
	}

	policies, err := e.store.GetActivePolicies(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading active policies: %w", err)
	}

	if e.cache != nil {
		if raw, err := json.Marshal(policies); err == nil {
			if err := e.cache.Set(ctx, key, raw, e.policyTTL); err != nil {
				slog.WarnContext(ctx, "policy cache write failed",
					logger.Component("policy"), logger.CacheKey(key), logger.Error(err))
			}
		}
	}
	return policies, nil
}
