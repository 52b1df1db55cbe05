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

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionMetrics holds the instruments recorded on the authorization
// decision path. All methods are safe on a zero-value-free instance and
// never fail the caller.
type DecisionMetrics struct {
	decisions   metric.Int64Counter
	cacheHits   metric.Int64Counter
	sodAlerts   metric.Int64Counter
	auditErrors metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewDecisionMetrics registers the decision-path instruments on the meter.
func NewDecisionMetrics(m *Meter) (*DecisionMetrics, error) {
	decisions, err := m.CreateCounter("authzd.decisions", "Authorization decisions by outcome and stage")
	if err != nil {
		return nil, err
	}
	cacheHits, err := m.CreateCounter("authzd.decisions.cache_hits", "Decisions served from cache (reduced-fidelity audit record)")
	if err != nil {
		return nil, err
	}
	sodAlerts, err := m.CreateCounter("authzd.sod_alerts", "Separation-of-duty constraint violations with alert action")
	if err != nil {
		return nil, err
	}
	auditErrors, err := m.CreateCounter("authzd.audit_errors", "Audit append failures swallowed on the decision path")
	if err != nil {
		return nil, err
	}
	latency, err := m.CreateHistogram("authzd.evaluation.duration", "End-to-end evaluation latency", "ms")
	if err != nil {
		return nil, err
	}
	return &DecisionMetrics{
		decisions:   decisions,
		cacheHits:   cacheHits,
		sodAlerts:   sodAlerts,
		auditErrors: auditErrors,
		latency:     latency,
	}, nil
}

func (d *DecisionMetrics) RecordDecision(ctx context.Context, tenantID, stage string, allowed bool) {
	if d == nil {
		return
	}
	d.decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("stage", stage),
			attribute.Bool("allowed", allowed),
		),
	)
}

func (d *DecisionMetrics) RecordCacheHit(ctx context.Context, tenantID string) {
	if d == nil {
		return
	}
	d.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (d *DecisionMetrics) RecordSoDAlert(ctx context.Context, tenantID, constraintID string) {
	if d == nil {
		return
	}
	d.sodAlerts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("constraint_id", constraintID),
		),
	)
}

func (d *DecisionMetrics) RecordAuditError(ctx context.Context, tenantID string) {
	if d == nil {
		return
	}
	d.auditErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (d *DecisionMetrics) RecordLatency(ctx context.Context, start time.Time) {
	if d == nil {
		return
	}
	d.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
}
