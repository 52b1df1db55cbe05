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

// Package authz hosts the decision evaluator: the request pipeline that
// composes rate limiting, caching, validation, tenant state, RBAC, ABAC
// and the policy engine into a single deterministic ALLOW/DENY answer.
//
// Evaluate never returns an error. Every failure mode, including
// unreachable storage and malformed policy state, resolves to a denied
// Response with an explanatory reason.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/authzd/authzd/internal/abac"
	"github.com/authzd/authzd/internal/audit"
	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/observability/logger"
	"github.com/authzd/authzd/internal/observability/metrics"
	"github.com/authzd/authzd/internal/policy"
	"github.com/authzd/authzd/internal/rbac"
	"github.com/authzd/authzd/internal/tenant"
)

// Evaluator runs the decision pipeline. All dependencies except the
// resolver and the policy engine may be nil, which disables the
// corresponding stage (no limiter means unlimited, no cache means every
// request computes fresh, no chain means no audit trail).
type Evaluator struct {
	limiter    *KeyedLimiter
	cache      cache.Cache
	tenants    *tenant.Service
	principals PrincipalStore
	resolver   *rbac.Resolver
	engine     *policy.Engine
	chain      *audit.ChainLogger
	metrics    *metrics.DecisionMetrics
	ttls       cache.TTLs
}

// Options carries the evaluator's collaborators.
type Options struct {
	Limiter    *KeyedLimiter
	Cache      cache.Cache
	Tenants    *tenant.Service
	Principals PrincipalStore
	Resolver   *rbac.Resolver
	Engine     *policy.Engine
	Chain      *audit.ChainLogger
	Metrics    *metrics.DecisionMetrics
	TTLs       cache.TTLs
}

// NewEvaluator wires a pipeline from its collaborators.
func NewEvaluator(opts Options) *Evaluator {
	ttls := opts.TTLs
	if ttls.Decision == 0 {
		ttls = cache.DefaultTTLs()
	}
	return &Evaluator{
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		tenants:    opts.Tenants,
		principals: opts.Principals,
		resolver:   opts.Resolver,
		engine:     opts.Engine,
		chain:      opts.Chain,
		metrics:    opts.Metrics,
		ttls:       ttls,
	}
}

// cachedDecision is the stored form of a decision cache entry. The
// volatile fields (CacheHit, EvaluatedAt) are reconstructed on read.
type cachedDecision struct {
	Allowed          bool     `json:"allowed"`
	Reason           string   `json:"reason"`
	Explanation      string   `json:"explanation"`
	PolicyEvaluated  string   `json:"policy_evaluated,omitempty"`
	FailedConditions []string `json:"failed_conditions,omitempty"`
}

// Evaluate runs the pipeline end to end. It never returns an error;
// callers always receive a well-formed Response.
func (e *Evaluator) Evaluate(ctx context.Context, req *Request) *Response {
	start := time.Now()
	defer e.metrics.RecordLatency(ctx, start)

	// Rate limiting reflects caller behavior, not access policy, so a
	// limited decision is never cached.
	if e.limiter != nil && !e.limiter.Allow(req.TenantID, req.PrincipalID) {
		resp := deny("rate limit exceeded", "request rate for this principal exceeds the configured limit")
		e.record(ctx, req, resp, StageRateLimit, nil)
		return resp
	}

	key := cache.DecisionKey(req.TenantID, req.PrincipalID, req.Action, req.Resource.Type, req.Resource.ID)
	if cached := e.cacheLookup(ctx, key); cached != nil {
		e.metrics.RecordCacheHit(ctx, req.TenantID)
		cached.CacheHit = true
		cached.EvaluatedAt = time.Now().UTC()
		return cached
	}

	if violations := Validate(req); len(violations) > 0 {
		resp := deny(
			"request validation failed: "+strings.Join(violations, "; "),
			"structural validation rejected the request before evaluation",
		)
		e.cacheStore(ctx, key, resp)
		e.record(ctx, req, resp, StageValidation, nil)
		return resp
	}

	if resp := e.checkTenant(ctx, req); resp != nil {
		e.record(ctx, req, resp, StageTenant, nil)
		return resp
	}

	principalAttrs := e.loadPrincipalAttrs(ctx, req)

	permission := req.Resource.Type + "." + req.Action
	rbacRes, err := e.resolver.Authorize(ctx, req.TenantID, req.PrincipalID, permission)
	if err != nil {
		resp := e.internalError(ctx, req, "role resolution failed", err)
		e.record(ctx, req, resp, StageInternal, map[string]any{"error": err.Error()})
		return resp
	}
	meta := map[string]any{"resolved_roles": rbacRes.RoleNames()}
	for _, alert := range rbacRes.Alerts {
		e.metrics.RecordSoDAlert(ctx, req.TenantID, alert)
		slog.WarnContext(ctx, "separation of duties alert",
			logger.Component("authz"),
			logger.TenantID(req.TenantID),
			logger.PrincipalID(req.PrincipalID),
			logger.String("constraint", alert))
	}
	if len(rbacRes.Alerts) > 0 {
		meta["sod_alerts"] = rbacRes.Alerts
	}
	if !rbacRes.Granted {
		resp := deny(rbacRes.Reason, "role-based access control denied the request")
		annotateAlerts(resp, rbacRes.Alerts)
		e.cacheStore(ctx, key, resp)
		e.record(ctx, req, resp, StageRBAC, meta)
		return resp
	}

	abacRes := abac.Check(req.PrincipalID, req.Action, principalAttrs, req.Resource.Attributes, req.Context)
	if !abacRes.Satisfied {
		resp := deny(
			"attribute conditions not satisfied: "+strings.Join(abacRes.Failed, "; "),
			"attribute-based checks denied the request",
		)
		resp.FailedConditions = abacRes.Failed
		annotateAlerts(resp, rbacRes.Alerts)
		e.cacheStore(ctx, key, resp)
		e.record(ctx, req, resp, StageABAC, meta)
		return resp
	}

	ec := &policy.EvalContext{
		PrincipalID:    req.PrincipalID,
		Action:         req.Action,
		ResourceType:   req.Resource.Type,
		ResourceID:     req.Resource.ID,
		PrincipalAttrs: principalAttrs,
		ResourceAttrs:  req.Resource.Attributes,
		RequestAttrs:   req.Context,
	}
	polRes, err := e.engine.Evaluate(ctx, req.TenantID, ec)
	if err != nil {
		var resp *Response
		if errors.Is(err, policy.ErrMalformed) {
			// Broken policy state is distinct from "policy said no":
			// deny closed but name the structural fault.
			resp = deny(
				fmt.Sprintf("internal policy error: %v", err),
				"a stored policy is structurally invalid; denying until it is repaired",
			)
			e.cacheStore(ctx, key, resp)
		} else {
			resp = e.internalError(ctx, req, "policy evaluation failed", err)
		}
		e.record(ctx, req, resp, StagePolicy, map[string]any{"error": err.Error()})
		return resp
	}

	var resp *Response
	switch {
	case polRes.Matched && polRes.Effect == policy.EffectDeny:
		resp = deny(
			fmt.Sprintf("denied by policy %s", polRes.PolicyName),
			polRes.Explanation,
		)
		resp.PolicyEvaluated = polRes.PolicyID
	case polRes.Matched:
		resp = allow(
			fmt.Sprintf("allowed by policy %s", polRes.PolicyName),
			polRes.Explanation,
		)
		resp.PolicyEvaluated = polRes.PolicyID
	default:
		// No rule matched: RBAC and ABAC already allowed, policy is a
		// neutral pass-through.
		resp = allow(rbacRes.Reason, rbacRes.Reason+"; "+polRes.Explanation)
		resp.FailedConditions = polRes.FailedConditions
	}
	annotateAlerts(resp, rbacRes.Alerts)

	e.cacheStore(ctx, key, resp)
	e.record(ctx, req, resp, StagePolicy, meta)
	return resp
}

func allow(reason, explanation string) *Response {
	return &Response{Allowed: true, Reason: reason, Explanation: explanation, EvaluatedAt: time.Now().UTC()}
}

func deny(reason, explanation string) *Response {
	return &Response{Allowed: false, Reason: reason, Explanation: explanation, EvaluatedAt: time.Now().UTC()}
}

// annotateAlerts surfaces watchlist-mode separation-of-duties hits in
// the explanation without changing the decision.
func annotateAlerts(resp *Response, alerts []string) {
	if len(alerts) == 0 {
		return
	}
	resp.Explanation += "; separation of duties alerts: " + strings.Join(alerts, ", ")
}

// checkTenant denies for suspended or unknown tenants. Storage errors
// deny closed.
func (e *Evaluator) checkTenant(ctx context.Context, req *Request) *Response {
	if e.tenants == nil {
		return nil
	}
	t, err := e.tenants.Get(ctx, req.TenantID)
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return deny("tenant not found", fmt.Sprintf("tenant %s does not exist", req.TenantID))
	case err != nil:
		return e.internalError(ctx, req, "tenant lookup failed", err)
	case t.Status != tenant.StatusActive:
		return deny("tenant is suspended", fmt.Sprintf("tenant %s has status %s", req.TenantID, t.Status))
	}
	return nil
}

// loadPrincipalAttrs merges stored principal attributes with the
// request-supplied ones; request values win. A missing principal record
// or a storage failure degrades to request attributes only, since RBAC
// resolution denies unknown principals on its own.
func (e *Evaluator) loadPrincipalAttrs(ctx context.Context, req *Request) map[string]any {
	merged := make(map[string]any)
	if e.principals != nil {
		stored, err := e.principals.GetAttributes(ctx, req.TenantID, req.PrincipalID)
		if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
			slog.WarnContext(ctx, "principal attribute load failed",
				logger.Component("authz"),
				logger.TenantID(req.TenantID),
				logger.PrincipalID(req.PrincipalID),
				logger.Error(err))
		}
		for k, v := range stored {
			merged[k] = v
		}
	}
	if req.Principal != nil {
		for k, v := range req.Principal.Attributes {
			merged[k] = v
		}
	}
	return merged
}

func (e *Evaluator) internalError(ctx context.Context, req *Request, msg string, err error) *Response {
	slog.ErrorContext(ctx, msg,
		logger.Component("authz"),
		logger.TenantID(req.TenantID),
		logger.PrincipalID(req.PrincipalID),
		logger.Action(req.Action),
		logger.Error(err))
	// Internal errors are transient: never cached, so recovery of the
	// dependency recovers the decision.
	return deny("internal error", "a backing dependency failed; denying until it recovers")
}

func (e *Evaluator) cacheLookup(ctx context.Context, key string) *Response {
	if e.cache == nil {
		return nil
	}
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var cd cachedDecision
	if err := json.Unmarshal(raw, &cd); err != nil {
		_ = e.cache.Delete(ctx, key)
		return nil
	}
	return &Response{
		Allowed:          cd.Allowed,
		Reason:           cd.Reason,
		Explanation:      cd.Explanation,
		PolicyEvaluated:  cd.PolicyEvaluated,
		FailedConditions: cd.FailedConditions,
	}
}

func (e *Evaluator) cacheStore(ctx context.Context, key string, resp *Response) {
	if e.cache == nil {
		return
	}
	cd := cachedDecision{
		Allowed:          resp.Allowed,
		Reason:           resp.Reason,
		Explanation:      resp.Explanation,
		PolicyEvaluated:  resp.PolicyEvaluated,
		FailedConditions: resp.FailedConditions,
	}
	raw, err := json.Marshal(cd)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.ttls.Decision); err != nil {
		slog.WarnContext(ctx, "decision cache write failed",
			logger.Component("authz"), logger.CacheKey(key), logger.Error(err))
	}
}

// record logs the decision and appends it to the audit chain. Audit
// failures never alter the returned decision; they surface on the error
// channel and the audit error counter only.
func (e *Evaluator) record(ctx context.Context, req *Request, resp *Response, stage string, meta map[string]any) {
	e.metrics.RecordDecision(ctx, req.TenantID, stage, resp.Allowed)

	slog.InfoContext(ctx, "authorization decision",
		logger.Component("authz"),
		logger.TenantID(req.TenantID),
		logger.PrincipalID(req.PrincipalID),
		logger.Action(req.Action),
		logger.Resource(req.Resource.Type, req.Resource.ID),
		logger.Decision(resp.Allowed),
		logger.Reason(resp.Reason),
		logger.String("stage", stage))

	if e.chain == nil {
		return
	}
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["stage"] = stage
	entry := &audit.Entry{
		TenantID:     req.TenantID,
		PrincipalID:  req.PrincipalID,
		Action:       req.Action,
		ResourceType: req.Resource.Type,
		ResourceID:   req.Resource.ID,
		Allowed:      resp.Allowed,
		Reason:       resp.Reason,
		Metadata:     meta,
	}
	if err := e.chain.Append(ctx, entry); err != nil {
		e.metrics.RecordAuditError(ctx, req.TenantID)
		slog.ErrorContext(ctx, "audit append failed",
			logger.Component("authz"),
			logger.TenantID(req.TenantID),
			logger.PrincipalID(req.PrincipalID),
			logger.Error(err))
	}
}
