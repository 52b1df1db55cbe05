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

package authz

import (
	"context"
	"errors"
	"time"
)

// ErrPrincipalNotFound is returned by PrincipalStore when the principal
// has no stored record. The evaluator treats it as an empty attribute
// map, not as a failure: RBAC denies unknown principals on its own.
var ErrPrincipalNotFound = errors.New("principal not found")

// Resource identifies the object of an authorization request.
type Resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Principal carries request-supplied principal attributes, merged over
// the stored ones (request values win).
type Principal struct {
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Request is the transient authorization question.
type Request struct {
	TenantID    string         `json:"tenantId"`
	PrincipalID string         `json:"principalId"`
	Action      string         `json:"action"`
	Resource    Resource       `json:"resource"`
	Principal   *Principal     `json:"principal,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// Response is the decision returned to the caller. Every failure mode
// resolves to a denied Response; the evaluator never errors outward.
type Response struct {
	Allowed          bool      `json:"allowed"`
	Reason           string    `json:"reason"`
	Explanation      string    `json:"explanation"`
	PolicyEvaluated  string    `json:"policy_evaluated,omitempty"`
	FailedConditions []string  `json:"failed_conditions,omitempty"`
	CacheHit         bool      `json:"cache_hit"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// Decision stages recorded in audit metadata.
const (
	StageRateLimit  = "rate_limit"
	StageValidation = "validation"
	StageTenant     = "tenant"
	StageRBAC       = "rbac"
	StageABAC       = "abac"
	StagePolicy     = "policy"
	StageInternal   = "internal_error"
)

// PrincipalStore reads stored principal attributes, supplied by the
// management storage layer.
type PrincipalStore interface {
	// GetAttributes returns the principal's attribute map, or
	// ErrPrincipalNotFound.
	GetAttributes(ctx context.Context, tenantID, principalID string) (map[string]any, error)
}
