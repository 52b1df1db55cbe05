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

package cache

import "strings"

// Key prefixes per data class. The tenant id is always the first segment
// after the prefix.
const (
	prefixDecision = "authz"
	prefixRoles    = "roles"
	prefixPolicies = "policies"
	prefixTenant   = "tenantcfg"
)

// DecisionKey fingerprints an authorization request:
// authz:{tenant}:{principal}:{action}:{resourceType}:{resourceID}
func DecisionKey(tenantID, principalID, action, resourceType, resourceID string) string {
	return join(prefixDecision, tenantID, principalID, action, resourceType, resourceID)
}

// RolesKey caches a principal's resolved role hierarchy:
// roles:{tenant}:{principal}
func RolesKey(tenantID, principalID string) string {
	return join(prefixRoles, tenantID, principalID)
}

// PoliciesKey caches a tenant's active policy set: policies:{tenant}
func PoliciesKey(tenantID string) string {
	return join(prefixPolicies, tenantID)
}

// TenantKey caches tenant configuration: tenantcfg:{tenant}
func TenantKey(tenantID string) string {
	return join(prefixTenant, tenantID)
}

// PrincipalDecisionPattern matches every cached decision for a principal.
func PrincipalDecisionPattern(tenantID, principalID string) string {
	return join(prefixDecision, tenantID, principalID, "*")
}

// ResourceTypeDecisionPattern matches every cached decision touching a
// resource type, across principals and actions of one tenant.
func ResourceTypeDecisionPattern(tenantID, resourceType string) string {
	return join(prefixDecision, tenantID, "*", "*", resourceType, "*")
}

// TenantDecisionPattern matches every cached decision of a tenant.
func TenantDecisionPattern(tenantID string) string {
	return join(prefixDecision, tenantID, "*")
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

// MatchPattern reports whether key matches a redis-style glob pattern.
// Supported metacharacters: '*' (any run, including ':') and '?' (any
// single character). Used by the in-memory backend; the Redis backend
// delegates matching to SCAN MATCH, which follows the same rules.
func MatchPattern(pattern, key string) bool {
	return matchGlob(pattern, key)
}

func matchGlob(p, s string) bool {
	// Iterative glob with single-star backtracking.
	var pi, si int
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
